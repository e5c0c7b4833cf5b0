package resolver

import (
	"context"
	"fmt"
	"net/http"

	simplejson "github.com/bitly/go-simplejson"
	"go.uber.org/zap"
)

// apiProbe queries the hard-coded catalog of API endpoint shapes for a video
// id. Several path shapes have existed over time; all are tried in priority
// order because the live shape is not guaranteed. Per-endpoint failures are
// logged and skipped, never propagated.
type apiProbe struct {
	templates []string
	markers   []string
	transport *Transport
	logger    *zap.Logger
}

func newAPIProbe(templates, markers []string, transport *Transport, logger *zap.Logger) *apiProbe {
	return &apiProbe{
		templates: templates,
		markers:   markers,
		transport: transport,
		logger:    logger,
	}
}

// run probes each endpoint template with the id substituted, feeding JSON
// bodies to the structured-data scanner. Iteration stops as soon as any
// endpoint yields at least one candidate.
func (p *apiProbe) run(ctx context.Context, videoID string, diag *Diagnostics) *urlSet {
	acc := newURLSet()
	for _, template := range p.templates {
		endpoint := fmt.Sprintf(template, videoID)
		diag.recordEndpoint(endpoint)

		resp, err := p.transport.Fetch(ctx, endpoint)
		if err != nil {
			p.logger.Warn("api probe fetch failed",
				zap.String("endpoint", endpoint), zap.Error(err))
			diag.record(Attempt{Strategy: StrategyAPI, Endpoint: endpoint, Outcome: OutcomeTransportError, Detail: err.Error()})
			continue
		}
		if resp.Status != http.StatusOK {
			p.logger.Debug("api probe non-200",
				zap.String("endpoint", endpoint), zap.Int("status", resp.Status))
			diag.record(Attempt{Strategy: StrategyAPI, Endpoint: endpoint, Outcome: OutcomeEmpty, Detail: fmt.Sprintf("status %d", resp.Status)})
			continue
		}

		payload, err := simplejson.NewJson(resp.Body)
		if err != nil {
			p.logger.Debug("api probe body is not JSON",
				zap.String("endpoint", endpoint), zap.Error(err))
			diag.record(Attempt{Strategy: StrategyAPI, Endpoint: endpoint, Outcome: OutcomeParseError, Detail: err.Error()})
			continue
		}

		// Scan the raw body rather than the decoded value: the payload's
		// document order decides the default selection.
		before := acc.len()
		if err := scanJSON(resp.Body, p.markers, acc); err != nil {
			diag.record(Attempt{Strategy: StrategyAPI, Endpoint: endpoint, Outcome: OutcomeParseError, Detail: err.Error()})
			continue
		}
		if acc.len() > before {
			p.logger.Info("api probe found candidates",
				zap.String("endpoint", endpoint), zap.Int("count", acc.len()))
			diag.record(Attempt{Strategy: StrategyAPI, Endpoint: endpoint, Outcome: OutcomeFound})
			break
		}
		p.logger.Debug("api probe empty",
			zap.String("endpoint", endpoint),
			zap.String("api_message", payload.Get("message").MustString()))
		diag.record(Attempt{Strategy: StrategyAPI, Endpoint: endpoint, Outcome: OutcomeEmpty})
	}
	return acc
}
