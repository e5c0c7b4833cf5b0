package resolver

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jayleecn/dongchedi-video-downloader/internal/config"
)

// NormalizedURL is the accepted input rewritten to the mobile host when the
// desktop host was supplied. Converted drives the user-facing notice.
type NormalizedURL struct {
	URL       string
	Converted bool
}

// ValidateInput accepts a URL only when its hostname belongs to the site and
// its path contains the video path marker. Malformed URLs are rejected, not
// thrown; validation never performs network I/O.
func ValidateInput(site *config.SiteConfig, raw string) error {
	parsed, err := url.Parse(ensureScheme(raw))
	if err != nil {
		return wrapCategory(CategoryInvalidURL, fmt.Errorf("invalid URL: %w", err))
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return wrapCategory(CategoryInvalidURL, fmt.Errorf("invalid URL: missing host"))
	}
	known := false
	for _, h := range site.Hosts {
		if host == h {
			known = true
			break
		}
	}
	if !known {
		return wrapCategory(CategoryInvalidURL, fmt.Errorf("not a recognized site host: %s", host))
	}
	if !strings.Contains(parsed.Path, site.PathMarker) {
		return wrapCategory(CategoryInvalidURL, fmt.Errorf("URL path does not contain %q", site.PathMarker))
	}
	return nil
}

// Normalize rewrites desktop hostnames to the mobile host, preserving path
// and query. It never fails the caller: unparsable input passes through
// unchanged.
func Normalize(site *config.SiteConfig, raw string) NormalizedURL {
	withScheme := ensureScheme(raw)
	parsed, err := url.Parse(withScheme)
	if err != nil {
		return NormalizedURL{URL: raw}
	}
	host := strings.ToLower(parsed.Hostname())
	for _, desktop := range site.DesktopHosts {
		if host == desktop {
			parsed.Host = site.MobileHost
			return NormalizedURL{URL: parsed.String(), Converted: true}
		}
	}
	return NormalizedURL{URL: withScheme, Converted: withScheme != raw}
}

// VideoID extracts the content identifier: the final non-empty path segment
// with any query string stripped. The value is passed through untouched —
// it is not required to be numeric.
func VideoID(rawURL string) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func ensureScheme(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + raw
}
