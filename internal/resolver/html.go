package resolver

import (
	"bytes"
	"context"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// htmlFetcher fetches the page itself and mines the raw source: the pattern
// battery over the full body, video/source elements in the server-rendered
// DOM, and the embedded page-state blob. A fetch or extraction failure
// yields an empty set; this strategy never errors to its caller.
type htmlFetcher struct {
	transport *Transport
	extractor *patternExtractor
	markers   []string
	logger    *zap.Logger
}

func newHTMLFetcher(transport *Transport, markers []string, logger *zap.Logger) *htmlFetcher {
	return &htmlFetcher{
		transport: transport,
		extractor: newPatternExtractor(markers),
		markers:   markers,
		logger:    logger,
	}
}

// run fetches the mobile page first. When that yields nothing and the
// original URL differs, the desktop page gets a second attempt.
func (f *htmlFetcher) run(ctx context.Context, primaryURL, originalURL string, diag *Diagnostics) *urlSet {
	acc := newURLSet()
	f.fetchInto(ctx, primaryURL, diag, acc)
	if acc.len() == 0 && originalURL != "" && originalURL != primaryURL {
		f.fetchInto(ctx, originalURL, diag, acc)
	}
	return acc
}

func (f *htmlFetcher) fetchInto(ctx context.Context, pageURL string, diag *Diagnostics, acc *urlSet) {
	resp, err := f.transport.Fetch(ctx, pageURL)
	if err != nil {
		f.logger.Warn("html fetch failed", zap.String("url", pageURL), zap.Error(err))
		diag.record(Attempt{Strategy: StrategyHTML, Endpoint: pageURL, Outcome: OutcomeTransportError, Detail: err.Error()})
		return
	}
	if resp.Status != http.StatusOK {
		f.logger.Debug("html fetch non-200", zap.String("url", pageURL), zap.Int("status", resp.Status))
		diag.record(Attempt{Strategy: StrategyHTML, Endpoint: pageURL, Outcome: OutcomeEmpty, Detail: http.StatusText(resp.Status)})
		return
	}

	body := string(resp.Body)
	before := acc.len()

	f.extractor.extract(body, acc)
	f.harvestMediaElements(resp.Body, acc)
	f.extractor.extractState(body, acc)

	outcome := OutcomeEmpty
	if acc.len() > before {
		outcome = OutcomeFound
		f.logger.Info("html extraction found candidates",
			zap.String("url", pageURL), zap.Int("count", acc.len()-before))
	}
	diag.record(Attempt{Strategy: StrategyHTML, Endpoint: pageURL, Outcome: outcome})
}

// harvestMediaElements parses the server-rendered DOM for video and source
// tags. Parse failures are swallowed; the regex battery has already seen the
// same bytes.
func (f *htmlFetcher) harvestMediaElements(body []byte, acc *urlSet) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return
	}
	doc.Find("video, source").Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range []string{"src", "data-src"} {
			if src, ok := sel.Attr(attr); ok {
				if hasHTTPScheme(src) && matchesAnyMarker(src, f.markers) {
					acc.add(src)
				}
			}
		}
	})
}
