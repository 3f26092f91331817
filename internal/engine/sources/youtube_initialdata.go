package sources

import (
	"bytes"
	"encoding/json"
	"regexp"
)

const (
	ytInitialDataMarker           = "var ytInitialData = "
	ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "
)

// InitialDataExtractor pulls the embedded ytInitialData object out of page markup.
type InitialDataExtractor interface {
	Extract(markup []byte) (json.RawMessage, bool)
}

// ExtractorFunc adapts a plain function to InitialDataExtractor.
type ExtractorFunc func(markup []byte) (json.RawMessage, bool)

func (f ExtractorFunc) Extract(markup []byte) (json.RawMessage, bool) { return f(markup) }

var initialDataRE = regexp.MustCompile(`(?s)var ytInitialData = ({.*?});`)

// DefaultExtractor tries the non-greedy assignment regex first. The shortest
// match usually stops inside the object, so when it does not parse the
// brace-balanced scanner takes over from the same marker.
var DefaultExtractor InitialDataExtractor = ExtractorFunc(extractInitialData)

func extractInitialData(markup []byte) (json.RawMessage, bool) {
	if m := initialDataRE.FindSubmatch(markup); len(m) >= 2 && json.Valid(m[1]) {
		return json.RawMessage(m[1]), true
	}
	return extractAfterMarker(markup, ytInitialDataMarker)
}

// extractAfterMarker returns the JSON object that immediately follows marker.
func extractAfterMarker(markup []byte, marker string) (json.RawMessage, bool) {
	idx := bytes.Index(markup, []byte(marker))
	if idx < 0 {
		return nil, false
	}
	obj := extractJSON(markup[idx+len(marker):])
	if obj == nil || !json.Valid(obj) {
		return nil, false
	}
	return json.RawMessage(obj), true
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr, escaped := false, false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
