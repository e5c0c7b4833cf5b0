package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/jayleecn/dongchedi-video-downloader/internal/config"
)

func TestSaveWritesFileWithSiteHeaders(t *testing.T) {
	cfg := config.Default()
	var gotReferer, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("fake mp4 payload"))
	}))
	defer server.Close()

	dir := t.TempDir()
	d := New(cfg, nil)
	outPath, written, err := d.Save(context.Background(), server.URL+"/clips/12345.mp4", Options{Dir: dir})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if want := filepath.Join(dir, "12345.mp4"); outPath != want {
		t.Fatalf("output path = %q, want %q", outPath, want)
	}
	if written != int64(len("fake mp4 payload")) {
		t.Fatalf("written = %d, want %d", written, len("fake mp4 payload"))
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "fake mp4 payload" {
		t.Fatalf("file contents = %q", data)
	}
	if gotReferer != cfg.Headers.Referer {
		t.Fatalf("Referer = %q, want %q", gotReferer, cfg.Headers.Referer)
	}
	if gotUA != cfg.Headers.DesktopUserAgent {
		t.Fatalf("User-Agent = %q, want %q", gotUA, cfg.Headers.DesktopUserAgent)
	}
	if _, err := os.Stat(outPath + partSuffix); !os.IsNotExist(err) {
		t.Fatalf("part file left behind")
	}
}

func TestSaveReportsProgress(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write([]byte(payload))
	}))
	defer server.Close()

	var lastWritten, lastTotal int64
	var calls int
	d := New(config.Default(), nil)
	_, _, err := d.Save(context.Background(), server.URL+"/a.mp4", Options{
		OutputPath: filepath.Join(t.TempDir(), "a.mp4"),
		Progress: func(written, total int64) {
			calls++
			lastWritten, lastTotal = written, total
		},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if calls == 0 {
		t.Fatal("progress callback never invoked")
	}
	if lastWritten != int64(len(payload)) {
		t.Fatalf("final written = %d, want %d", lastWritten, len(payload))
	}
	if lastTotal != int64(len(payload)) {
		t.Fatalf("final total = %d, want %d", lastTotal, len(payload))
	}
}

func TestSaveRejectsStreamingManifest(t *testing.T) {
	d := New(config.Default(), nil)
	if _, _, err := d.Save(context.Background(), "https://cdn.example.com/live/play.m3u8", Options{}); err == nil {
		t.Fatal("expected error for streaming manifest")
	}
}

func TestSaveRefusesToOverwrite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("new"))
	}))
	defer server.Close()

	outPath := filepath.Join(t.TempDir(), "existing.mp4")
	if err := os.WriteFile(outPath, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := New(config.Default(), nil)
	if _, _, err := d.Save(context.Background(), server.URL+"/v.mp4", Options{OutputPath: outPath}); err == nil {
		t.Fatal("expected error for existing destination")
	}

	_, _, err := d.Save(context.Background(), server.URL+"/v.mp4", Options{OutputPath: outPath, Overwrite: true})
	if err != nil {
		t.Fatalf("Save with overwrite: %v", err)
	}
	data, _ := os.ReadFile(outPath)
	if string(data) != "new" {
		t.Fatalf("file contents = %q, want %q", data, "new")
	}
}

func TestSaveCleansUpPartFileOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	outPath := filepath.Join(t.TempDir(), "denied.mp4")
	d := New(config.Default(), nil)
	if _, _, err := d.Save(context.Background(), server.URL+"/v.mp4", Options{OutputPath: outPath}); err == nil {
		t.Fatal("expected error for 403 response")
	}
	if _, err := os.Stat(outPath); !os.IsNotExist(err) {
		t.Fatal("destination file should not exist after failure")
	}
	if _, err := os.Stat(outPath + partSuffix); !os.IsNotExist(err) {
		t.Fatal("part file should not exist after failure")
	}
}

func TestNameFromURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://cdn.example.com/media/7012345.mp4", "7012345.mp4"},
		{"https://cdn.example.com/media/clip.mp4?sig=abc", "clip.mp4"},
		{"https://cdn.example.com/", "video.mp4"},
		{"https://cdn.example.com/media/noext", "noext.mp4"},
	}
	for _, tc := range cases {
		if got := nameFromURL(tc.in); got != tc.want {
			t.Errorf("nameFromURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
