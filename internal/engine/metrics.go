package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the pipeline.
var metrics struct {
	FetchRequests      atomic.Int64
	FetchErrors        atomic.Int64
	CacheHits          atomic.Int64
	CacheMisses        atomic.Int64
	ListingPages       atomic.Int64
	DetailRequests     atomic.Int64
	TranscriptRequests atomic.Int64
	TranscriptMisses   atomic.Int64
	ModelCalls         atomic.Int64
	ModelErrors        atomic.Int64
	ModelThrottled     atomic.Int64
	LedgerWrites       atomic.Int64
	ArchiveWrites      atomic.Int64
	ArchiveErrors      atomic.Int64
}

var metricKeys = []string{
	"fetch_requests", "fetch_errors",
	"cache_hits", "cache_misses",
	"listing_pages", "detail_requests",
	"transcript_requests", "transcript_misses",
	"model_calls", "model_errors", "model_throttled",
	"ledger_writes",
	"archive_writes", "archive_errors",
}

// GetMetrics returns a snapshot of all counters.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"fetch_requests":      metrics.FetchRequests.Load(),
		"fetch_errors":        metrics.FetchErrors.Load(),
		"cache_hits":          metrics.CacheHits.Load(),
		"cache_misses":        metrics.CacheMisses.Load(),
		"listing_pages":       metrics.ListingPages.Load(),
		"detail_requests":     metrics.DetailRequests.Load(),
		"transcript_requests": metrics.TranscriptRequests.Load(),
		"transcript_misses":   metrics.TranscriptMisses.Load(),
		"model_calls":         metrics.ModelCalls.Load(),
		"model_errors":        metrics.ModelErrors.Load(),
		"model_throttled":     metrics.ModelThrottled.Load(),
		"ledger_writes":       metrics.LedgerWrites.Load(),
		"archive_writes":      metrics.ArchiveWrites.Load(),
		"archive_errors":      metrics.ArchiveErrors.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for the HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sources/ sub-package.
func IncrListingPages()       { metrics.ListingPages.Add(1) }
func IncrDetailRequests()     { metrics.DetailRequests.Add(1) }
func IncrTranscriptRequests() { metrics.TranscriptRequests.Add(1) }
func IncrTranscriptMisses()   { metrics.TranscriptMisses.Add(1) }

// Incrementors for enrich/, ledger/ and archive/.
func IncrModelCalls()     { metrics.ModelCalls.Add(1) }
func IncrModelErrors()    { metrics.ModelErrors.Add(1) }
func IncrModelThrottled() { metrics.ModelThrottled.Add(1) }
func IncrLedgerWrites()   { metrics.LedgerWrites.Add(1) }
func IncrArchiveWrites()  { metrics.ArchiveWrites.Add(1) }
func IncrArchiveErrors()  { metrics.ArchiveErrors.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
