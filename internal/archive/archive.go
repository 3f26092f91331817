// Package archive writes flat text copies of ledger records to an object sink.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
	"github.com/anatolykoptev/go_ytledger/internal/ledger"
)

const (
	// DefaultPrefix holds title+transcript+summary documents.
	DefaultPrefix = "youtube_transcripts_with_summary/"
	// TranscriptPrefix holds the transcript-only documents.
	TranscriptPrefix = "youtube_transcripts/"

	contentType = "text/plain"
)

var nonAlnumRE = regexp.MustCompile(`[^A-Za-z0-9]+`)

// SanitizeTitle collapses every run of non-alphanumerics into one underscore
// and trims underscores from both ends.
func SanitizeTitle(title string) string {
	return strings.Trim(nonAlnumRE.ReplaceAllString(title, "_"), "_")
}

// videoParam is the raw text between the first "v=" of a watch URL and the
// next "v=", if any. URLs without a v= parameter fall back to the last path
// segment.
func videoParam(videoURL string) string {
	if _, after, ok := strings.Cut(videoURL, "v="); ok {
		id, _, _ := strings.Cut(after, "v=")
		return id
	}
	if i := strings.LastIndexByte(videoURL, '/'); i >= 0 {
		return videoURL[i+1:]
	}
	return videoURL
}

// videoKeyID is videoParam cut at the first "&", without one leading
// underscore.
func videoKeyID(videoURL string) string {
	id, _, _ := strings.Cut(videoParam(videoURL), "&")
	return strings.TrimPrefix(id, "_")
}

// ObjectKey is prefix + sanitized title + "_" + video ID + ".txt".
func ObjectKey(prefix, title, videoURL string) string {
	return fmt.Sprintf("%s%s_%s.txt", prefix, SanitizeTitle(title), videoKeyID(videoURL))
}

// FormatDocument renders the archived text. An empty summary drops the
// summary section.
func FormatDocument(title, transcript, summary string) string {
	if summary == "" {
		return fmt.Sprintf("Title: %s\n\nTranscript: %s", title, transcript)
	}
	return fmt.Sprintf("Title: %s\n\nTranscript: %s\n\nSummary: %s", title, transcript, summary)
}

// Archiver writes records to a Sink. Failures are logged, never returned.
type Archiver struct {
	sink   Sink
	prefix string
}

func NewArchiver(sink Sink, prefix string) *Archiver {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Archiver{sink: sink, prefix: prefix}
}

// Archive uploads title, transcript and summary for rec. It reports whether the
// object was written.
func (a *Archiver) Archive(ctx context.Context, rec ledger.VideoRecord) bool {
	key := ObjectKey(a.prefix, rec.Title, rec.VideoURL)
	body := FormatDocument(rec.Title, rec.Transcript, rec.SummaryText())
	return a.put(ctx, key, body)
}

// TranscriptKey is the transcript-only object key. The video parameter is
// kept verbatim so existing youtube_transcripts/ objects keep their names.
func TranscriptKey(videoURL string) string {
	return TranscriptPrefix + "video-" + videoParam(videoURL) + ".txt"
}

// ArchiveTranscript uploads the transcript-only variant as video-<id>.txt.
func (a *Archiver) ArchiveTranscript(ctx context.Context, rec ledger.VideoRecord) bool {
	key := TranscriptKey(rec.VideoURL)
	body := fmt.Sprintf("Title: %s\n\nTranscript:\n%s", rec.Title, rec.Transcript)
	return a.put(ctx, key, body)
}

func (a *Archiver) put(ctx context.Context, key, body string) bool {
	if err := a.sink.Put(ctx, key, []byte(body), contentType); err != nil {
		engine.IncrArchiveErrors()
		slog.Warn("archive: upload failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	engine.IncrArchiveWrites()
	slog.Info("archive: uploaded", slog.String("key", key))
	return true
}
