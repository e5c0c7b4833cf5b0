package resolver

import "strings"

// MediaKind classifies a candidate by delivery mechanism.
type MediaKind string

const (
	// KindProgressive is a single-file direct download (MP4).
	KindProgressive MediaKind = "progressive"
	// KindStreaming is a manifest-based adaptive stream (HLS playlist).
	KindStreaming MediaKind = "streaming"
	// KindUnknown is a candidate that matched a loose marker only.
	KindUnknown MediaKind = "unknown"
)

// ClassifyMedia inspects a candidate URL's suffix markers.
func ClassifyMedia(rawURL string) MediaKind {
	switch {
	case strings.Contains(rawURL, ".m3u8"):
		return KindStreaming
	case strings.Contains(rawURL, ".mp4"):
		return KindProgressive
	default:
		return KindUnknown
	}
}

// Attempt outcomes.
const (
	OutcomeFound          = "found"
	OutcomeEmpty          = "empty"
	OutcomeTransportError = "transport_error"
	OutcomeParseError     = "parse_error"
	OutcomeRenderError    = "render_error"
)

// Strategy names recorded in diagnostics.
const (
	StrategyAPI     = "api"
	StrategyHTML    = "html"
	StrategyBrowser = "browser"
)

// Attempt records one strategy execution against one endpoint. Attempts only
// live for the duration of a resolution request and feed the diagnostics
// object on total failure.
type Attempt struct {
	Strategy string `json:"strategy"`
	Endpoint string `json:"endpoint"`
	Outcome  string `json:"outcome"`
	Detail   string `json:"detail,omitempty"`
}

// Diagnostics explains a NotFound outcome to an operator.
type Diagnostics struct {
	VideoID     string    `json:"videoId"`
	APIsTried   []string  `json:"apisTried"`
	MobileURL   string    `json:"mobileUrl"`
	OriginalURL string    `json:"originalUrl"`
	Attempts    []Attempt `json:"attempts,omitempty"`
}

func (d *Diagnostics) record(a Attempt) {
	d.Attempts = append(d.Attempts, a)
}

func (d *Diagnostics) recordEndpoint(endpoint string) {
	d.APIsTried = append(d.APIsTried, endpoint)
}

// Result is the terminal outcome of one resolution request.
type Result struct {
	Found bool `json:"found"`
	// URLs is deduplicated and insertion-ordered; the first entry is the
	// default selection.
	URLs        []string `json:"urls,omitempty"`
	OriginalURL string   `json:"originalUrl"`
	// NormalizedURL differs from OriginalURL when the desktop host was
	// rewritten to the mobile host.
	NormalizedURL string `json:"normalizedUrl"`
	Converted     bool   `json:"converted"`
	// Strategy names the chain link that produced the candidates.
	Strategy string `json:"strategy,omitempty"`
	// FinalURL is the browser's post-navigation location, when rendering ran.
	FinalURL    string       `json:"finalUrl,omitempty"`
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`
}

// urlSet is a deduplicated string set that preserves first-seen order.
// Order matters: the first entry becomes the default UI selection.
type urlSet struct {
	order []string
	seen  map[string]struct{}
}

func newURLSet() *urlSet {
	return &urlSet{seen: make(map[string]struct{})}
}

func (s *urlSet) add(u string) bool {
	if u == "" {
		return false
	}
	if _, ok := s.seen[u]; ok {
		return false
	}
	s.seen[u] = struct{}{}
	s.order = append(s.order, u)
	return true
}

func (s *urlSet) merge(other *urlSet) {
	if other == nil {
		return
	}
	for _, u := range other.order {
		s.add(u)
	}
}

func (s *urlSet) len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *urlSet) values() []string {
	if s == nil || len(s.order) == 0 {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func hasHTTPScheme(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func matchesAnyMarker(u string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(u, m) {
			return true
		}
	}
	return false
}
