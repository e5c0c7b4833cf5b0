// Package download saves a resolved progressive video URL to disk.
// Streaming manifests (m3u8) are out of scope; callers should check
// resolver.ClassifyMedia before asking for a download.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jayleecn/dongchedi-video-downloader/internal/config"
	"github.com/jayleecn/dongchedi-video-downloader/internal/resolver"
)

const partSuffix = ".part"

// Progress is invoked as bytes arrive. total is -1 when the server
// did not send a Content-Length.
type Progress func(written, total int64)

// Options controls a single download.
type Options struct {
	// OutputPath is the destination file. When empty, a name is
	// derived from the video URL (falling back to "video.mp4").
	OutputPath string
	// Dir is the directory for derived file names. Ignored when
	// OutputPath is set. Defaults to the working directory.
	Dir string
	// Overwrite replaces an existing destination file. Without it,
	// an existing file is an error.
	Overwrite bool
	Timeout   time.Duration
	Progress  Progress
}

// Downloader fetches progressive media files with the same request
// identity the site's pages use, so the CDN accepts the request.
type Downloader struct {
	client  *http.Client
	headers config.HeaderConfig
	logger  *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		client:  &http.Client{Timeout: 0},
		headers: cfg.Headers,
		logger:  logger,
	}
}

// Save streams videoURL into the destination chosen by opts and
// returns the final path and the number of bytes written. The file is
// written to a .part sibling and renamed after the copy completes, so
// a failed download never leaves a truncated destination behind.
func (d *Downloader) Save(ctx context.Context, videoURL string, opts Options) (string, int64, error) {
	if resolver.ClassifyMedia(videoURL) == resolver.KindStreaming {
		return "", 0, fmt.Errorf("%s is a streaming manifest, not a progressive file", videoURL)
	}
	outputPath, err := d.resolvePath(videoURL, opts)
	if err != nil {
		return "", 0, err
	}
	if !opts.Overwrite {
		if _, err := os.Stat(outputPath); err == nil {
			return "", 0, fmt.Errorf("%s already exists (use overwrite to replace)", outputPath)
		}
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", 0, fmt.Errorf("creating output directory: %w", err)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, videoURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("invalid video URL: %w", err)
	}
	req.Header.Set("User-Agent", d.headers.DesktopUserAgent)
	req.Header.Set("Referer", d.headers.Referer)
	req.Header.Set("Accept", "*/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetching video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("unexpected status %d fetching video", resp.StatusCode)
	}

	partPath := outputPath + partSuffix
	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("opening temp file: %w", err)
	}

	total := resp.ContentLength
	var writer io.Writer = file
	if opts.Progress != nil {
		writer = io.MultiWriter(file, &progressWriter{total: total, fn: opts.Progress})
	}
	written, err := io.Copy(writer, resp.Body)
	if err != nil {
		file.Close()
		os.Remove(partPath)
		return "", 0, fmt.Errorf("download failed after %d bytes: %w", written, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(partPath)
		return "", 0, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(partPath, outputPath); err != nil {
		os.Remove(partPath)
		return "", 0, fmt.Errorf("renaming output: %w", err)
	}
	d.logger.Info("download complete",
		zap.String("path", outputPath),
		zap.Int64("bytes", written))
	return outputPath, written, nil
}

func (d *Downloader) resolvePath(videoURL string, opts Options) (string, error) {
	if opts.OutputPath != "" {
		return opts.OutputPath, nil
	}
	name := nameFromURL(videoURL)
	if opts.Dir != "" {
		return filepath.Join(opts.Dir, name), nil
	}
	return name, nil
}

var invalidPathChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

func nameFromURL(rawURL string) string {
	base := "video"
	if parsed, err := url.Parse(rawURL); err == nil {
		if b := strings.TrimSpace(path.Base(parsed.Path)); b != "" && b != "/" && b != "." {
			base = b
		}
	}
	base = invalidPathChars.ReplaceAllString(base, "-")
	if filepath.Ext(base) == "" {
		base += ".mp4"
	}
	return base
}

type progressWriter struct {
	total   int64
	written int64
	fn      Progress
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	total := p.total
	if total <= 0 {
		total = -1
	}
	p.fn(p.written, total)
	return len(b), nil
}
