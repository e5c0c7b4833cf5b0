package resolver

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jayleecn/dongchedi-video-downloader/internal/config"
)

// maxBodyBytes caps how much of a response body is read. Pages and API
// payloads are well under this; media files are never fetched here.
const maxBodyBytes = 8 << 20

var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout:   10 * time.Second,
	ResponseHeaderTimeout: 15 * time.Second,
	IdleConnTimeout:       90 * time.Second,
}

// Response is the subset of an HTTP exchange the strategies care about.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Transport issues GET requests with a mobile browser identity and follows
// redirects itself so relative Location headers resolve against the request
// URL. Transport errors carry CategoryTransport; callers treat them as
// non-fatal and move on to the next endpoint or strategy.
type Transport struct {
	client       *http.Client
	headers      config.HeaderConfig
	maxRedirects int
}

// NewTransport builds a Transport from the site configuration.
func NewTransport(cfg *config.Config) *Transport {
	return &Transport{
		client: &http.Client{
			Transport: sharedTransport,
			Timeout:   cfg.Timeouts.HTTP,
			// Redirects are followed manually in Fetch.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		headers:      cfg.Headers,
		maxRedirects: cfg.Timeouts.MaxRedirects,
	}
}

// Fetch performs a GET against rawURL, following 301/302/307/308 redirects
// up to the configured bound.
func (t *Transport) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	target := rawURL
	for hop := 0; hop <= t.maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, wrapCategory(CategoryTransport, fmt.Errorf("building request: %w", err))
		}
		t.applyHeaders(req)

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, wrapCategory(CategoryTransport, err)
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			resp.Body.Close()
			if location == "" {
				return nil, wrapCategory(CategoryTransport, fmt.Errorf("redirect %d without Location from %s", resp.StatusCode, target))
			}
			next, err := resolveLocation(req.URL, location)
			if err != nil {
				return nil, wrapCategory(CategoryTransport, fmt.Errorf("resolving redirect target %q: %w", location, err))
			}
			target = next
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			return nil, wrapCategory(CategoryTransport, fmt.Errorf("reading body: %w", err))
		}
		return &Response{Status: resp.StatusCode, Headers: resp.Header, Body: body}, nil
	}
	return nil, wrapCategory(CategoryTransport, fmt.Errorf("redirect limit (%d) exceeded for %s", t.maxRedirects, rawURL))
}

// applyHeaders fills the browser-like identity without clobbering headers a
// caller may have set.
func (t *Transport) applyHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.headers.MobileUserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", t.headers.Accept)
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", t.headers.AcceptLanguage)
	}
	if req.Header.Get("Referer") == "" && t.headers.Referer != "" {
		req.Header.Set("Referer", t.headers.Referer)
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// resolveLocation resolves a possibly-relative Location header against the
// URL of the request that produced it.
func resolveLocation(base *url.URL, location string) (string, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
