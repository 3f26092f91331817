// Package transcript renders caption segments into the two text forms the
// ledger stores: a timestamped listing and a sentence-per-line listing.
package transcript

import (
	"fmt"
	"iter"
	"math"
	"strings"
)

// Segment is one caption cue.
type Segment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

const timestampedHeader = "start - text\n"

// FormatTimestamp renders an offset in seconds as MM:SS. Seconds are rounded to
// two decimals and then truncated; 59.999 therefore renders as 00:60.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := int(math.Floor(seconds / 60))
	rem := math.Round(math.Mod(seconds, 60)*100) / 100
	return fmt.Sprintf("%02d:%02d", minutes, int(rem))
}

// RenderTimestamped returns the header line followed by one `MM:SS - "text"`
// line per segment.
func RenderTimestamped(segs []Segment) string {
	var sb strings.Builder
	sb.WriteString(timestampedHeader)
	for _, s := range segs {
		fmt.Fprintf(&sb, "%s - \"%s\"\n", FormatTimestamp(s.Start), s.Text)
	}
	return sb.String()
}

// Sentences yields sentences in order. Segment texts accumulate until one ends
// with a period; the run is joined with single spaces and newlines inside it
// become spaces. A trailing unterminated run is yielded once at the end.
// Each range over the sequence starts again from the first segment.
func Sentences(segs []Segment) iter.Seq[string] {
	return func(yield func(string) bool) {
		var current []string
		for _, s := range segs {
			current = append(current, s.Text)
			if strings.HasSuffix(s.Text, ".") {
				if !yield(joinSentence(current)) {
					return
				}
				current = current[:0]
			}
		}
		if len(current) > 0 {
			yield(joinSentence(current))
		}
	}
}

func joinSentence(parts []string) string {
	return strings.ReplaceAll(strings.Join(parts, " "), "\n", " ")
}

// RenderSentences joins every sentence with a newline.
func RenderSentences(segs []Segment) string {
	var sb strings.Builder
	first := true
	for s := range Sentences(segs) {
		if !first {
			sb.WriteByte('\n')
		}
		sb.WriteString(s)
		first = false
	}
	return sb.String()
}

// Render produces both renderings. ok is false when there are no segments,
// which callers treat as "no transcript available".
func Render(segs []Segment) (timestamped, sentences string, ok bool) {
	if len(segs) == 0 {
		return "", "", false
	}
	return RenderTimestamped(segs), RenderSentences(segs), true
}
