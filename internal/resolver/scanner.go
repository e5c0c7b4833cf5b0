package resolver

import (
	"bytes"
	"encoding/json"
)

// maxScanDepth bounds the recursive walk. Observed API payloads nest a
// handful of levels; the guard only exists so a pathological or
// cyclic-looking payload cannot recurse without bound.
const maxScanDepth = 64

// scanJSON walks raw JSON and collects strings that qualify as candidate
// media URLs into acc, preserving document order: the order keys appear in
// the payload decides which candidate becomes the default selection, so the
// walk reads the token stream instead of a decoded (unordered) map. Object
// keys themselves are ignored: every value is visited regardless of its key.
// Returns an error only for malformed JSON; values nested past the depth
// guard are skipped, not errors.
func scanJSON(data []byte, markers []string, acc *urlSet) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	return scanTokens(dec, markers, acc, 0)
}

// scanTokens consumes exactly one JSON value from the stream.
func scanTokens(dec *json.Decoder, markers []string, acc *urlSet, depth int) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		if depth >= maxScanDepth {
			return skipNested(dec)
		}
		switch t {
		case '{':
			for dec.More() {
				if _, err := dec.Token(); err != nil { // key
					return err
				}
				if err := scanTokens(dec, markers, acc, depth+1); err != nil {
					return err
				}
			}
		case '[':
			for dec.More() {
				if err := scanTokens(dec, markers, acc, depth+1); err != nil {
					return err
				}
			}
		}
		_, err := dec.Token() // closing delim
		return err
	case string:
		if hasHTTPScheme(t) && matchesAnyMarker(t, markers) {
			acc.add(t)
		}
	}
	return nil
}

// skipNested consumes the remainder of an already-opened composite value
// without recursing, so over-deep payloads terminate in constant stack.
func skipNested(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
