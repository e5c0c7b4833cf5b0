package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/jayleecn/dongchedi-video-downloader/internal/config"
)

func newTestProbe(templates []string) *apiProbe {
	return newAPIProbe(templates, testMarkers, NewTransport(config.Default()), zap.NewNop())
}

func TestAPIProbeShortCircuitsOnFirstHit(t *testing.T) {
	hits := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		switch r.URL.Path {
		case "/first":
			fmt.Fprintf(w, `{"video_url": "https://v.example/%s.mp4"}`, r.URL.Query().Get("video_id"))
		default:
			fmt.Fprint(w, `{"video_url": "https://v.example/other.mp4"}`)
		}
	}))
	defer server.Close()

	probe := newTestProbe([]string{
		server.URL + "/first?video_id=%s",
		server.URL + "/second?video_id=%s",
	})
	diag := &Diagnostics{}
	got := probe.run(context.Background(), "123", diag)
	if want := []string{"https://v.example/123.mp4"}; !reflect.DeepEqual(got.values(), want) {
		t.Fatalf("probe = %v, want %v", got.values(), want)
	}
	if hits["/second"] != 0 {
		t.Fatalf("second endpoint was probed %d times after first hit", hits["/second"])
	}
	if len(diag.APIsTried) != 1 {
		t.Fatalf("APIsTried = %v, want only the first endpoint", diag.APIsTried)
	}
}

func TestAPIProbeSkipsFailuresAndContinues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			http.Error(w, "gone", http.StatusGone)
		case "/not-json":
			fmt.Fprint(w, "<html>definitely not json</html>")
		case "/good":
			fmt.Fprint(w, `{"data": {"play_url": "https://v.example/found.m3u8"}}`)
		}
	}))
	defer server.Close()

	probe := newTestProbe([]string{
		server.URL + "/down?video_id=%s",
		server.URL + "/not-json?video_id=%s",
		server.URL + "/good?video_id=%s",
	})
	diag := &Diagnostics{}
	got := probe.run(context.Background(), "9", diag)
	if want := []string{"https://v.example/found.m3u8"}; !reflect.DeepEqual(got.values(), want) {
		t.Fatalf("probe = %v, want %v", got.values(), want)
	}
	if len(diag.APIsTried) != 3 {
		t.Fatalf("APIsTried = %v, want all three endpoints", diag.APIsTried)
	}

	outcomes := map[string]string{}
	for _, a := range diag.Attempts {
		outcomes[a.Endpoint] = a.Outcome
	}
	if outcomes[fmt.Sprintf(server.URL+"/not-json?video_id=%s", "9")] != OutcomeParseError {
		t.Fatalf("expected parse_error attempt, got %v", diag.Attempts)
	}
}

func TestAPIProbeAllEmptyReturnsEmptySet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "ok", "data": {}}`)
	}))
	defer server.Close()

	probe := newTestProbe([]string{
		server.URL + "/a?video_id=%s",
		server.URL + "/b?video_id=%s",
	})
	diag := &Diagnostics{}
	if got := probe.run(context.Background(), "1", diag); got.len() != 0 {
		t.Fatalf("probe = %v, want empty", got.values())
	}
	if len(diag.APIsTried) != 2 {
		t.Fatalf("APIsTried = %v, want both endpoints recorded", diag.APIsTried)
	}
}
