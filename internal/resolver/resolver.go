package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jayleecn/dongchedi-video-downloader/internal/config"
)

// Resolver runs the extraction chain for one page URL: API probing, then
// HTML fetching, then browser rendering, each strategy cheaper than the
// next. The chain short-circuits on the first non-empty result; ordering is
// a correctness requirement, not an optimization, because the browser must
// not launch when a cheap strategy already succeeded.
type Resolver struct {
	cfg    *config.Config
	logger *zap.Logger

	// DisableBrowser skips the rendering strategy entirely. Useful for
	// environments without a Chrome binary.
	DisableBrowser bool

	// Strategy seams, replaceable in tests.
	probeAPIs func(ctx context.Context, videoID string, diag *Diagnostics) *urlSet
	fetchHTML func(ctx context.Context, primaryURL, originalURL string, diag *Diagnostics) *urlSet
	render    func(ctx context.Context, pageURL, videoID string, diag *Diagnostics) renderOutcome
}

// New wires a Resolver with the real strategies. A nil logger is replaced
// with a no-op one.
func New(cfg *config.Config, logger *zap.Logger) *Resolver {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := NewTransport(cfg)
	probe := newAPIProbe(cfg.Site.APITemplates, cfg.Markers.Strict, transport, logger)
	fetcher := newHTMLFetcher(transport, cfg.Markers.Strict, logger)
	browser := newBrowserStrategy(cfg, logger)
	return &Resolver{
		cfg:       cfg,
		logger:    logger,
		probeAPIs: probe.run,
		fetchHTML: fetcher.run,
		render:    browser.run,
	}
}

// Resolve validates and normalizes the input, then walks the strategy chain.
// Invalid input returns a CategoryInvalidURL error before any network I/O.
// Every other failure mode is absorbed into the chain: Resolve returns a
// Result (possibly not found), never a strategy error.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Result, error) {
	if rawURL == "" {
		return nil, wrapCategory(CategoryInvalidURL, fmt.Errorf("no URL provided"))
	}
	if err := ValidateInput(&r.cfg.Site, rawURL); err != nil {
		return nil, err
	}

	normalized := Normalize(&r.cfg.Site, rawURL)
	videoID := VideoID(normalized.URL)
	diag := &Diagnostics{
		VideoID:     videoID,
		MobileURL:   normalized.URL,
		OriginalURL: rawURL,
	}
	r.logger.Info("resolving",
		zap.String("url", rawURL),
		zap.String("normalized", normalized.URL),
		zap.String("video_id", videoID))

	merged := newURLSet()
	strategy := ""
	finalURL := ""

	if set := r.probeAPIs(ctx, videoID, diag); set.len() > 0 {
		merged.merge(set)
		strategy = StrategyAPI
	}
	if merged.len() == 0 {
		if set := r.fetchHTML(ctx, normalized.URL, rawURL, diag); set.len() > 0 {
			merged.merge(set)
			strategy = StrategyHTML
		}
	}
	if merged.len() == 0 && !r.DisableBrowser {
		outcome := r.render(ctx, normalized.URL, videoID, diag)
		finalURL = outcome.finalURL
		if outcome.urls.len() > 0 {
			merged.merge(outcome.urls)
			strategy = StrategyBrowser
		}
	}

	result := &Result{
		OriginalURL:   rawURL,
		NormalizedURL: normalized.URL,
		Converted:     normalized.Converted,
		FinalURL:      finalURL,
	}
	// Merge, dedupe, filter to HTTP(S) entries, preserve first-seen order.
	// The first survivor is the default recommended source.
	for _, u := range merged.values() {
		if hasHTTPScheme(u) {
			result.URLs = append(result.URLs, u)
		}
	}
	if len(result.URLs) > 0 {
		result.Found = true
		result.Strategy = strategy
		r.logger.Info("resolved",
			zap.String("url", rawURL),
			zap.String("strategy", strategy),
			zap.Int("count", len(result.URLs)))
		return result, nil
	}

	// Finding nothing is a valid terminal outcome, not an error: the page
	// may simply carry no extractable media.
	result.Diagnostics = diag
	r.logger.Info("no media found",
		zap.String("url", rawURL),
		zap.Strings("apis_tried", diag.APIsTried))
	return result, nil
}

// Config exposes the resolver's effective configuration.
func (r *Resolver) Config() *config.Config {
	return r.cfg
}
