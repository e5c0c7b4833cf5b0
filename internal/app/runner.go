// Package app runs resolutions for a batch of page URLs on a bounded
// worker pool and aggregates an exit code from the failures.
package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jayleecn/dongchedi-video-downloader/internal/resolver"
)

// Resolver is the single operation the runner needs. *resolver.Resolver
// satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*resolver.Result, error)
}

type Result struct {
	URL        string           `json:"url"`
	Resolution *resolver.Result `json:"resolution,omitempty"`
	Err        error            `json:"-"`
	Error      string           `json:"error,omitempty"`
}

// Run resolves every URL with up to jobs concurrent workers and
// returns per-URL results in input order, plus the process exit code
// derived from the worst failure. A failed URL never stops the batch.
func Run(ctx context.Context, res Resolver, urls []string, jobs int, logger *zap.Logger) ([]Result, int) {
	if jobs < 1 {
		jobs = 1
	}
	if jobs > len(urls) {
		jobs = len(urls)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	type task struct {
		index int
		url   string
	}
	tasks := make(chan task)
	output := make([]Result, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-tasks:
					if !ok {
						return
					}
					resolution, err := res.Resolve(ctx, t.url)
					result := Result{URL: t.url, Err: err}
					if err != nil {
						result.Error = err.Error()
						logger.Warn("resolution failed",
							zap.String("url", t.url), zap.Error(err))
					} else {
						result.Resolution = resolution
					}
					output[t.index] = result
				}
			}
		}()
	}

	submitted := 0
	for i, url := range urls {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case tasks <- task{index: i, url: url}:
			submitted++
		}
	}
	close(tasks)
	wg.Wait()

	output = output[:submitted]
	exitCode := 0
	for _, r := range output {
		if r.Err == nil {
			continue
		}
		if code := resolver.ExitCode(r.Err); code > exitCode {
			exitCode = code
		}
	}
	if ctx.Err() != nil && exitCode == 0 {
		exitCode = 130
	}
	return output, exitCode
}
