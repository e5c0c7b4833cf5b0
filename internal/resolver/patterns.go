package resolver

import (
	"fmt"
	"regexp"
	"strings"
)

// patternExtractor runs a fixed battery of text patterns over raw HTML/JS
// source. The battery covers quoted absolute URLs, key/value assignments
// (url, src, video_url, play_url and the camel-case variants the site has
// shipped over time), and bare unquoted URLs. Results from all patterns are
// unioned into one deduplicated, insertion-ordered set.
type patternExtractor struct {
	patterns []*regexp.Regexp
	markers  []string
}

// statePattern locates an embedded page-state assignment under any of the
// global names the site has used. The non-greedy body stops at the first
// closing brace preceding a semicolon; the blob size is capped separately
// in extractState.
var statePattern = regexp.MustCompile(
	`(?s)window\.(?:__INITIAL_STATE__|INITIAL_STATE|initialState)\s*=\s*(\{.*?\})\s*;`)

// maxStateBlobBytes bounds the state blob fed to the scanner so broken
// markup cannot turn into an unbounded parse.
const maxStateBlobBytes = 512 << 10

// The site embeds slashes as \u002F or \/ inside server-rendered JSON.
var escapedSlashReplacer = strings.NewReplacer(`\u002F`, "/", `\u002f`, "/", `\/`, "/")

func newPatternExtractor(markers []string) *patternExtractor {
	suffixes := make([]string, 0, len(markers))
	for _, m := range markers {
		suffixes = append(suffixes, regexp.QuoteMeta(strings.TrimPrefix(m, ".")))
	}
	alt := strings.Join(suffixes, "|")
	keys := `url|src|video_url|play_url|playUrl|videoUrl|main_url`
	return &patternExtractor{
		markers: markers,
		patterns: []*regexp.Regexp{
			// Quoted absolute URLs, including ones with escaped slashes.
			regexp.MustCompile(fmt.Sprintf(`["'](https?:[^"']*?\.(?:%s)[^"']*?)["']`, alt)),
			// key: "value" assignments in JSON or inline JS.
			regexp.MustCompile(fmt.Sprintf(`["']?(?:%s)["']?\s*:\s*["'](https?:[^"']*?\.(?:%s)[^"']*?)["']`, keys, alt)),
			// src attributes on media elements.
			regexp.MustCompile(fmt.Sprintf(`src\s*=\s*["'](https?:[^"']*?\.(?:%s)[^"']*?)["']`, alt)),
			// Bare unquoted URLs.
			regexp.MustCompile(fmt.Sprintf(`https?://[^\s"'<>\\]+\.(?:%s)[^\s"'<>\\]*`, alt)),
		},
	}
}

// extract applies every pattern in sequence and unions the cleaned matches
// into acc. Overlapping matches from different patterns dedupe to one entry.
func (e *patternExtractor) extract(text string, acc *urlSet) {
	for _, re := range e.patterns {
		for _, match := range re.FindAllStringSubmatch(text, -1) {
			raw := match[0]
			if len(match) > 1 {
				raw = match[1]
			}
			cleaned := cleanMatch(raw)
			if hasHTTPScheme(cleaned) {
				acc.add(cleaned)
			}
		}
	}
}

// extractState locates an embedded page-state JSON blob and feeds it to the
// structured-data scanner. This is a best-effort secondary path: a missing
// blob or a JSON parse failure is swallowed.
func (e *patternExtractor) extractState(text string, acc *urlSet) bool {
	match := statePattern.FindStringSubmatch(text)
	if match == nil || len(match[1]) > maxStateBlobBytes {
		return false
	}
	return scanJSON([]byte(match[1]), e.markers, acc) == nil
}

// cleanMatch strips surrounding quotes and stray key prefixes, then undoes
// the escaped-slash sequences the site embeds in server-rendered JSON. Any
// backslash left after unescaping (doubly-escaped input) is dropped.
func cleanMatch(raw string) string {
	cleaned := strings.Trim(raw, `"'`)
	for _, prefix := range []string{"url:", "src:"} {
		cleaned = strings.TrimPrefix(cleaned, prefix)
	}
	cleaned = strings.TrimSpace(cleaned)
	cleaned = escapedSlashReplacer.Replace(cleaned)
	return strings.ReplaceAll(cleaned, `\`, "")
}
