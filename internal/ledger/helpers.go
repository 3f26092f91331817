package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// ScanAll walks every page matching filter, calling fn per record. pace > 0
// spaces page requests apart. A non-nil error from fn aborts the walk.
func ScanAll(ctx context.Context, s Store, filter Filter, pace time.Duration, fn func(VideoRecord) error) error {
	limit := rate.Inf
	if pace > 0 {
		limit = rate.Every(pace)
	}
	limiter := rate.NewLimiter(limit, 1)

	cursor := ""
	for page := 1; ; page++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		p, err := s.Scan(ctx, filter, cursor)
		if err != nil {
			return fmt.Errorf("ledger: scan page %d: %w", page, err)
		}
		slog.Debug("ledger: scan page", slog.Int("page", page), slog.Int("items", len(p.Items)))
		for _, r := range p.Items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(r); err != nil {
				return err
			}
		}
		if p.Next == "" {
			return nil
		}
		cursor = p.Next
	}
}

// HasTranscriptSentences reports whether a record exists and already carries
// sentence-form transcript text. Lookup errors count as "no".
func HasTranscriptSentences(ctx context.Context, s Store, videoURL string) bool {
	r, err := s.Get(ctx, videoURL)
	if err != nil {
		slog.Warn("ledger: existence check failed", slog.String("url", videoURL), slog.Any("error", err))
		return false
	}
	return r != nil && r.TranscriptSentences != nil
}
