package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jayleecn/dongchedi-video-downloader/internal/app"
	"github.com/jayleecn/dongchedi-video-downloader/internal/config"
	"github.com/jayleecn/dongchedi-video-downloader/internal/download"
	"github.com/jayleecn/dongchedi-video-downloader/internal/resolver"
	"github.com/jayleecn/dongchedi-video-downloader/internal/web"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file (defaults built in)")
		jsonOut    = flag.Bool("json", false, "emit results as JSON")
		timeout    = flag.Duration("timeout", 0, "overall budget per URL (0 = config default)")
		noBrowser  = flag.Bool("no-browser", false, "skip the headless-browser fallback")
		doDownload = flag.Bool("download", false, "download the first resolved video of each URL")
		output     = flag.String("o", "", "output path for -download (single URL) or directory (multiple URLs)")
		serve      = flag.Bool("serve", false, "run the HTTP API instead of resolving CLI arguments")
		addr       = flag.String("addr", "", "listen address for -serve (overrides config)")
		jobs       = flag.Int("jobs", 1, "number of concurrent resolutions")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
		quiet      = flag.Bool("quiet", false, "suppress log output (results still printed)")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *timeout > 0 {
		cfg.Timeouts.OverallBudget = *timeout
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	logger, err := buildLogger(*logLevel, *quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	res := resolver.New(cfg, logger)
	res.DisableBrowser = *noBrowser

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		server := web.NewServer(cfg, res, logger)
		if err := server.ListenAndServe(ctx); err != nil {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	urls := flag.Args()
	if len(urls) == 0 {
		err := resolver.CategorizedError{
			Category: resolver.CategoryInvalidURL,
			Err:      errors.New("no url provided"),
		}
		if *jsonOut {
			writeJSONError("", err)
		} else {
			fmt.Fprintf(os.Stderr, "usage: %s [options] <url> [url...]\n", os.Args[0])
			flag.PrintDefaults()
		}
		os.Exit(resolver.ExitCode(err))
	}

	results, exitCode := app.Run(ctx, res, urls, *jobs, logger)
	for _, r := range results {
		switch {
		case *jsonOut:
			writeJSONResult(r)
		case r.Err != nil:
			fmt.Fprintf(os.Stderr, "error: %s: %v\n", r.URL, r.Err)
		case !r.Resolution.Found:
			fmt.Fprintf(os.Stderr, "no video found for %s (tried %d strategies)\n",
				r.URL, len(r.Resolution.Diagnostics.Attempts))
		default:
			for _, u := range r.Resolution.URLs {
				fmt.Println(u)
			}
		}
	}

	if *doDownload {
		if code := downloadResults(ctx, cfg, logger, results, *output, len(urls) == 1); code > exitCode {
			exitCode = code
		}
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildLogger(level string, quiet bool) (*zap.Logger, error) {
	if quiet {
		return zap.NewNop(), nil
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(parsed)
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// downloadResults saves the first resolved URL of each found result.
// Streaming manifests are skipped with a warning since they need an
// HLS-capable player, not a file copy.
func downloadResults(ctx context.Context, cfg *config.Config, logger *zap.Logger, results []app.Result, output string, single bool) int {
	d := download.New(cfg, logger)
	exitCode := 0
	for _, r := range results {
		if r.Err != nil || r.Resolution == nil || !r.Resolution.Found {
			continue
		}
		videoURL := r.Resolution.URLs[0]
		if resolver.ClassifyMedia(videoURL) == resolver.KindStreaming {
			logger.Warn("skipping streaming manifest", zap.String("url", videoURL))
			continue
		}
		opts := download.Options{Timeout: 10 * time.Minute}
		if single {
			opts.OutputPath = output
		} else {
			opts.Dir = output
		}
		opts.Progress = progressPrinter(videoURL)
		path, written, err := d.Save(ctx, videoURL, opts)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: downloading %s: %v\n", videoURL, err)
			if exitCode < 1 {
				exitCode = 1
			}
			continue
		}
		fmt.Fprintf(os.Stderr, "saved %s (%d bytes)\n", path, written)
	}
	return exitCode
}

func progressPrinter(url string) download.Progress {
	return func(written, total int64) {
		if total > 0 {
			fmt.Fprintf(os.Stderr, "\r%s: %d/%d bytes (%.1f%%)", url, written, total,
				float64(written)/float64(total)*100)
		} else {
			fmt.Fprintf(os.Stderr, "\r%s: %d bytes", url, written)
		}
	}
}

func writeJSONResult(r app.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(r)
}

func writeJSONError(url string, err error) {
	payload := struct {
		Type  string `json:"type"`
		URL   string `json:"url,omitempty"`
		Error string `json:"error"`
	}{
		Type:  "error",
		URL:   url,
		Error: err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
