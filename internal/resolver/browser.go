package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jayleecn/dongchedi-video-downloader/internal/config"
)

// maxObservedAPIResponses caps how many API-shaped responses are kept for a
// later body read.
const maxObservedAPIResponses = 16

// renderOutcome carries what the browser saw: candidates from every harvest
// path plus the page's post-navigation location.
type renderOutcome struct {
	urls     *urlSet
	finalURL string
}

// browserStrategy launches one isolated headless browser per resolution
// attempt. The instance is torn down unconditionally when run returns,
// including on error, so sustained load cannot leak OS processes.
type browserStrategy struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newBrowserStrategy(cfg *config.Config, logger *zap.Logger) *browserStrategy {
	return &browserStrategy{cfg: cfg, logger: logger}
}

func (b *browserStrategy) run(ctx context.Context, pageURL, videoID string, diag *Diagnostics) renderOutcome {
	out := renderOutcome{urls: newURLSet()}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("mute-audio", true),
		chromedp.UserAgent(b.cfg.Headers.MobileUserAgent),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()

	navCtx, cancelNav := context.WithTimeout(tabCtx, b.cfg.Timeouts.Navigation)
	defer cancelNav()

	observed := newResponseObserver(
		append(append([]string{}, b.cfg.Markers.Strict...), b.cfg.Markers.Loose...),
		b.cfg.Site.APIPathMarker,
	)
	chromedp.ListenTarget(navCtx, observed.listen)

	var rawPayload, finalURL string
	err := chromedp.Run(navCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		// DOM-ready, not network idle: bounded latency over completeness.
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.cfg.Timeouts.SettleDelay),
		chromedp.Evaluate(b.harvestScript(), &rawPayload),
		chromedp.Location(&finalURL),
	)
	out.urls.merge(observed.candidates())
	out.finalURL = finalURL
	if err != nil {
		b.logger.Warn("browser navigation failed", zap.String("url", pageURL), zap.Error(err))
		diag.record(Attempt{Strategy: StrategyBrowser, Endpoint: pageURL, Outcome: OutcomeRenderError, Detail: err.Error()})
		return out
	}

	b.mergeHarvest(rawPayload, out.urls)
	b.readObservedAPIBodies(navCtx, observed, out.urls)

	if out.urls.len() == 0 {
		b.probeAPIsInPage(tabCtx, videoID, diag, out.urls)
	}

	outcome := OutcomeEmpty
	if out.urls.len() > 0 {
		outcome = OutcomeFound
	}
	diag.record(Attempt{Strategy: StrategyBrowser, Endpoint: pageURL, Outcome: outcome})
	return out
}

// harvestPayload mirrors the JSON built by the in-page harvest script.
type harvestPayload struct {
	VideoElements []struct {
		Src        string `json:"src"`
		CurrentSrc string `json:"currentSrc"`
		Poster     string `json:"poster"`
	} `json:"videoElements"`
	InitialState json.RawMessage `json:"initialState"`
	Matches      []string        `json:"matches"`
}

// mergeHarvest folds the in-page harvest into acc: media element sources,
// pattern matches over the rendered HTML, and the client framework's state
// object run through the structured-data scanner.
func (b *browserStrategy) mergeHarvest(rawPayload string, acc *urlSet) {
	if rawPayload == "" {
		return
	}
	var payload harvestPayload
	if err := json.Unmarshal([]byte(rawPayload), &payload); err != nil {
		b.logger.Debug("harvest payload parse failed", zap.Error(err))
		return
	}
	strict := b.cfg.Markers.Strict
	for _, el := range payload.VideoElements {
		for _, src := range []string{el.Src, el.CurrentSrc, el.Poster} {
			if hasHTTPScheme(src) && matchesAnyMarker(src, strict) {
				acc.add(src)
			}
		}
	}
	for _, m := range payload.Matches {
		cleaned := cleanMatch(m)
		if hasHTTPScheme(cleaned) {
			acc.add(cleaned)
		}
	}
	if len(payload.InitialState) > 0 && string(payload.InitialState) != "null" {
		if err := scanJSON(payload.InitialState, strict, acc); err != nil {
			b.logger.Debug("page state scan failed", zap.Error(err))
		}
	}
}

// readObservedAPIBodies pulls the bodies of API-shaped responses recorded by
// the observer and scans any that parse as JSON. Best effort: bodies may be
// gone from the browser cache by now.
func (b *browserStrategy) readObservedAPIBodies(ctx context.Context, observed *responseObserver, acc *urlSet) {
	refs := observed.apiRefs()
	if len(refs) == 0 {
		return
	}
	action := chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ref := range refs {
			body, err := network.GetResponseBody(ref.requestID).Do(ctx)
			if err != nil {
				continue
			}
			_ = scanJSON(body, b.cfg.Markers.Strict, acc)
		}
		return nil
	})
	if err := chromedp.Run(ctx, action); err != nil {
		b.logger.Debug("reading observed api bodies failed", zap.Error(err))
	}
}

// probeAPIsInPage is the last resort: drive the same browser page to each
// API endpoint and parse the response text as JSON. Useful when the site
// serves the API only to a full browser.
func (b *browserStrategy) probeAPIsInPage(tabCtx context.Context, videoID string, diag *Diagnostics, acc *urlSet) {
	for _, template := range b.cfg.Site.APITemplates {
		endpoint := fmt.Sprintf(template, videoID)
		probeCtx, cancel := context.WithTimeout(tabCtx, b.cfg.Timeouts.BrowserProbe)
		var text string
		err := chromedp.Run(probeCtx,
			chromedp.Navigate(endpoint),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(`document.body.textContent`, &text),
		)
		cancel()
		if err != nil {
			b.logger.Debug("in-page api probe failed", zap.String("endpoint", endpoint), zap.Error(err))
			diag.record(Attempt{Strategy: StrategyBrowser, Endpoint: endpoint, Outcome: OutcomeRenderError, Detail: err.Error()})
			continue
		}
		before := acc.len()
		if err := scanJSON([]byte(text), b.cfg.Markers.Strict, acc); err != nil {
			diag.record(Attempt{Strategy: StrategyBrowser, Endpoint: endpoint, Outcome: OutcomeParseError, Detail: err.Error()})
			continue
		}
		if acc.len() > before {
			diag.record(Attempt{Strategy: StrategyBrowser, Endpoint: endpoint, Outcome: OutcomeFound})
			return
		}
		diag.record(Attempt{Strategy: StrategyBrowser, Endpoint: endpoint, Outcome: OutcomeEmpty})
	}
}

// harvestScript returns the in-page script that gathers media elements, the
// page-state global, and media-suffix matches over the rendered HTML. The
// rendered DOM can differ from the server-fetched HTML, so the pattern pass
// runs client-side too.
func (b *browserStrategy) harvestScript() string {
	suffixes := make([]string, 0, len(b.cfg.Markers.Strict))
	for _, m := range b.cfg.Markers.Strict {
		suffixes = append(suffixes, regexp.QuoteMeta(strings.TrimPrefix(m, ".")))
	}
	alt := strings.Join(suffixes, "|")
	return fmt.Sprintf(`(function () {
	var data = { videoElements: [], initialState: null, matches: [] };
	var elements = document.querySelectorAll('video, source');
	for (var i = 0; i < elements.length; i++) {
		var el = elements[i];
		data.videoElements.push({
			src: el.src || '',
			currentSrc: el.currentSrc || '',
			poster: el.poster || ''
		});
	}
	var stateKeys = ['__INITIAL_STATE__', 'INITIAL_STATE', 'initialState'];
	for (var j = 0; j < stateKeys.length; j++) {
		if (window[stateKeys[j]]) {
			data.initialState = window[stateKeys[j]];
			break;
		}
	}
	var html = document.documentElement.innerHTML;
	var re = /["'](https?:(?:\\\/|[^"'])*?\.(?:%s)[^"']*?)["']/g;
	var m;
	while ((m = re.exec(html)) !== null) {
		data.matches.push(m[1]);
	}
	try {
		return JSON.stringify(data);
	} catch (e) {
		data.initialState = null;
		return JSON.stringify(data);
	}
})()`, alt)
}

type apiResponseRef struct {
	requestID network.RequestID
	url       string
}

// responseObserver inspects every network response the page triggers,
// streaming media-like URLs into a set as they arrive and remembering
// API-shaped responses for a later body read.
type responseObserver struct {
	markers   []string
	apiMarker string

	mu      sync.Mutex
	urls    *urlSet
	apiSeen []apiResponseRef
}

func newResponseObserver(markers []string, apiMarker string) *responseObserver {
	return &responseObserver{
		markers:   markers,
		apiMarker: apiMarker,
		urls:      newURLSet(),
	}
}

// listen is registered with chromedp.ListenTarget before navigation.
func (o *responseObserver) listen(ev interface{}) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok {
		return
	}
	respURL := e.Response.URL
	mime := strings.ToLower(e.Response.MimeType)

	o.mu.Lock()
	defer o.mu.Unlock()
	if strings.Contains(mime, "video") || matchesAnyMarker(respURL, o.markers) {
		if hasHTTPScheme(respURL) {
			o.urls.add(respURL)
		}
		return
	}
	if o.apiMarker != "" && strings.Contains(respURL, o.apiMarker) &&
		len(o.apiSeen) < maxObservedAPIResponses {
		o.apiSeen = append(o.apiSeen, apiResponseRef{requestID: e.RequestID, url: respURL})
	}
}

func (o *responseObserver) candidates() *urlSet {
	o.mu.Lock()
	defer o.mu.Unlock()
	snapshot := newURLSet()
	snapshot.merge(o.urls)
	return snapshot
}

func (o *responseObserver) apiRefs() []apiResponseRef {
	o.mu.Lock()
	defer o.mu.Unlock()
	refs := make([]apiResponseRef, len(o.apiSeen))
	copy(refs, o.apiSeen)
	return refs
}
