package resolver

import (
	"reflect"
	"strings"
	"testing"
)

var testMarkers = []string{".mp4", ".m3u8"}

func scanStrings(t *testing.T, raw string) []string {
	t.Helper()
	acc := newURLSet()
	if err := scanJSON([]byte(raw), testMarkers, acc); err != nil {
		t.Fatalf("scanJSON: %v", err)
	}
	return acc.values()
}

func TestScanJSONCollectsNestedURLs(t *testing.T) {
	payload := `{
		"data": {
			"video_info": {
				"main_url": "https://v.example/a.mp4",
				"backup": ["https://v.example/b.m3u8", {"deep": "https://v.example/c.mp4"}]
			},
			"title": "not a url",
			"count": 3,
			"flag": true,
			"nothing": null
		}
	}`
	got := scanStrings(t, payload)
	want := []string{
		"https://v.example/a.mp4",
		"https://v.example/b.m3u8",
		"https://v.example/c.mp4",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("scanJSON = %v, want %v", got, want)
	}
}

func TestScanJSONPreservesDocumentOrder(t *testing.T) {
	// The first candidate becomes the default selection, so the payload's
	// own key order must win even when it disagrees with sorted order.
	payload := `{
		"main_url": "https://v.example/main.mp4",
		"backup": "https://v.example/backup.mp4"
	}`
	got := scanStrings(t, payload)
	want := []string{
		"https://v.example/main.mp4",
		"https://v.example/backup.mp4",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("scanJSON = %v, want %v", got, want)
	}
}

func TestScanJSONDeduplicates(t *testing.T) {
	payload := `["https://v.example/a.mp4", "https://v.example/a.mp4", ["https://v.example/a.mp4"]]`
	got := scanStrings(t, payload)
	if len(got) != 1 || got[0] != "https://v.example/a.mp4" {
		t.Fatalf("scanJSON = %v, want one entry", got)
	}
}

func TestScanJSONIgnoresNonQualifyingStrings(t *testing.T) {
	payload := `{
		"relative": "/path/a.mp4",
		"no_marker": "https://v.example/a.jpg",
		"scheme_less": "v.example/a.mp4"
	}`
	if got := scanStrings(t, payload); len(got) != 0 {
		t.Fatalf("scanJSON = %v, want empty", got)
	}
}

func TestScanJSONIgnoresObjectKeys(t *testing.T) {
	payload := `{"https://v.example/key.mp4": "just a value"}`
	if got := scanStrings(t, payload); len(got) != 0 {
		t.Fatalf("scanJSON = %v, want keys ignored", got)
	}
}

func TestScanJSONMalformedPayload(t *testing.T) {
	acc := newURLSet()
	if err := scanJSON([]byte(`{"broken": }`), testMarkers, acc); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if acc.len() != 0 {
		t.Fatalf("accumulator polluted: %v", acc.values())
	}
}

func TestScanJSONDepthGuardTerminates(t *testing.T) {
	depth := maxScanDepth + 32
	payload := strings.Repeat(`{"k":`, depth) + `"https://v.example/deep.mp4"` + strings.Repeat("}", depth)
	// The qualifying string sits past the depth guard; the walk must
	// terminate without finding it.
	if got := scanStrings(t, payload); len(got) != 0 {
		t.Fatalf("scanJSON = %v, want empty past depth guard", got)
	}
}

func TestScanJSONAccumulatorThreading(t *testing.T) {
	acc := newURLSet()
	if err := scanJSON([]byte(`{"u": "https://v.example/a.mp4"}`), testMarkers, acc); err != nil {
		t.Fatal(err)
	}
	if err := scanJSON([]byte(`["https://v.example/b.m3u8", "https://v.example/a.mp4"]`), testMarkers, acc); err != nil {
		t.Fatal(err)
	}
	want := []string{"https://v.example/a.mp4", "https://v.example/b.m3u8"}
	if !reflect.DeepEqual(acc.values(), want) {
		t.Fatalf("threaded accumulator = %v, want %v", acc.values(), want)
	}
}
