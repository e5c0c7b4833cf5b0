package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jayleecn/dongchedi-video-downloader/internal/resolver"
)

type fakeResolver struct {
	mu      sync.Mutex
	calls   []string
	results map[string]*resolver.Result
	errs    map[string]error
}

func (f *fakeResolver) Resolve(ctx context.Context, rawURL string) (*resolver.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.mu.Unlock()
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	if res, ok := f.results[rawURL]; ok {
		return res, nil
	}
	return &resolver.Result{}, nil
}

func TestRunPreservesInputOrder(t *testing.T) {
	urls := []string{
		"https://www.dongchedi.com/video/1",
		"https://www.dongchedi.com/video/2",
		"https://www.dongchedi.com/video/3",
	}
	fake := &fakeResolver{results: map[string]*resolver.Result{
		urls[0]: {Found: true, URLs: []string{"https://cdn/a.mp4"}},
		urls[1]: {Found: true, URLs: []string{"https://cdn/b.mp4"}},
		urls[2]: {Found: true, URLs: []string{"https://cdn/c.mp4"}},
	}}

	results, exitCode := Run(context.Background(), fake, urls, 3, nil)
	if exitCode != 0 {
		t.Fatalf("exit code = %d, want 0", exitCode)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, r := range results {
		if r.URL != urls[i] {
			t.Errorf("results[%d].URL = %q, want %q", i, r.URL, urls[i])
		}
		if r.Resolution == nil || !r.Resolution.Found {
			t.Errorf("results[%d] missing resolution", i)
		}
	}
}

func TestRunFailureDoesNotStopBatch(t *testing.T) {
	urls := []string{
		"https://www.dongchedi.com/video/1",
		"not-a-dongchedi-url",
		"https://www.dongchedi.com/video/3",
	}
	fake := &fakeResolver{
		results: map[string]*resolver.Result{
			urls[0]: {Found: true, URLs: []string{"https://cdn/a.mp4"}},
			urls[2]: {Found: true, URLs: []string{"https://cdn/c.mp4"}},
		},
		errs: map[string]error{
			urls[1]: resolver.CategorizedError{
				Category: resolver.CategoryInvalidURL,
				Err:      errors.New("unsupported URL"),
			},
		},
	}

	results, exitCode := Run(context.Background(), fake, urls, 1, nil)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[1].Err == nil || results[1].Error == "" {
		t.Fatal("expected error recorded for rejected URL")
	}
	if results[0].Resolution == nil || results[2].Resolution == nil {
		t.Fatal("failure should not stop other URLs")
	}
	if want := resolver.ExitCode(results[1].Err); exitCode != want {
		t.Fatalf("exit code = %d, want %d", exitCode, want)
	}
}

func TestRunBoundsWorkers(t *testing.T) {
	urls := []string{"a", "b", "c", "d"}
	fake := &fakeResolver{results: map[string]*resolver.Result{}}

	results, _ := Run(context.Background(), fake, urls, 2, nil)
	if len(results) != len(urls) {
		t.Fatalf("got %d results, want %d", len(results), len(urls))
	}
	fake.mu.Lock()
	calls := len(fake.calls)
	fake.mu.Unlock()
	if calls != len(urls) {
		t.Fatalf("resolver called %d times, want %d", calls, len(urls))
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeResolver{results: map[string]*resolver.Result{}}
	results, exitCode := Run(ctx, fake, []string{"a", "b"}, 1, nil)
	if exitCode != 130 {
		t.Fatalf("exit code = %d, want 130", exitCode)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0 after pre-cancelled context", len(results))
	}
}

func TestRunEmptyInput(t *testing.T) {
	fake := &fakeResolver{}
	results, exitCode := Run(context.Background(), fake, nil, 4, nil)
	if len(results) != 0 || exitCode != 0 {
		t.Fatalf("results = %v, exit = %d; want empty, 0", results, exitCode)
	}
}
