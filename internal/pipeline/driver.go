// Package pipeline runs the four batch flows over the ledger. Every flow is
// idempotent: a rerun redoes cheap existence checks and only the missing work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
	"github.com/anatolykoptev/go_ytledger/internal/engine/sources"
	"github.com/anatolykoptev/go_ytledger/internal/enrich"
	"github.com/anatolykoptev/go_ytledger/internal/ledger"
	"github.com/anatolykoptev/go_ytledger/internal/transcript"
)

// Flow names accepted by Run.
const (
	ModeGetPlaylistDetails = "get_playlist_details"
	ModeGenerateSummary    = "generate_summary"
	ModeUploadSummary      = "upload_summary"
	ModeUpdateViewCount    = "update_view_count"
)

// Modes lists the flows in menu order.
var Modes = []string{ModeGetPlaylistDetails, ModeGenerateSummary, ModeUploadSummary, ModeUpdateViewCount}

// ErrUnknownMode is returned by Run for an unrecognised flow name.
var ErrUnknownMode = errors.New("pipeline: unknown mode")

// updatedDateLayout matches the ledger's existing updated_date values.
const updatedDateLayout = "2006-01-02T15:04:05"

type Lister interface {
	Discover(ctx context.Context, q sources.ListingQuery) []sources.Listing
}

type DetailSource interface {
	Details(ctx context.Context, url string) (sources.VideoDetails, error)
	ViewCount(ctx context.Context, url string) (int64, error)
}

type TranscriptSource interface {
	Fetch(ctx context.Context, videoID string) []transcript.Segment
}

type Enricher interface {
	Enrich(ctx context.Context, transcript string) (*enrich.Insights, bool)
}

type Archiver interface {
	Archive(ctx context.Context, rec ledger.VideoRecord) bool
	ArchiveTranscript(ctx context.Context, rec ledger.VideoRecord) bool
}

// Deps are the collaborators a Driver works with. Flows that do not need a
// collaborator tolerate it being nil.
type Deps struct {
	Store       ledger.Store
	Lister      Lister
	Details     DetailSource
	Transcripts TranscriptSource
	Enricher    Enricher
	Archiver    Archiver
}

// Report counts what a flow did.
type Report struct {
	Scanned   int
	Processed int
	Skipped   int
	Failed    int
}

func (r Report) log(flow string) {
	slog.Info("pipeline: flow finished",
		slog.String("flow", flow),
		slog.Int("scanned", r.Scanned),
		slog.Int("processed", r.Processed),
		slog.Int("skipped", r.Skipped),
		slog.Int("failed", r.Failed))
}

// Driver owns the collaborators and the event configuration.
type Driver struct {
	deps Deps
	cfg  engine.Config
	now  func() time.Time

	// TranscriptsOnly switches upload_summary to the transcript-only documents.
	TranscriptsOnly bool
}

func New(deps Deps, cfg engine.Config) *Driver {
	return &Driver{deps: deps, cfg: cfg, now: time.Now}
}

// Run dispatches one flow by name.
func (d *Driver) Run(ctx context.Context, mode string) (Report, error) {
	var (
		rep Report
		err error
	)
	switch mode {
	case ModeGetPlaylistDetails:
		rep, err = d.GetPlaylistDetails(ctx)
	case ModeGenerateSummary:
		rep, err = d.GenerateSummary(ctx)
	case ModeUploadSummary:
		rep, err = d.UploadSummary(ctx)
	case ModeUpdateViewCount:
		rep, err = d.UpdateViewCount(ctx)
	default:
		return Report{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	rep.log(mode)
	return rep, err
}

// GetPlaylistDetails discovers listings and writes metadata plus both
// transcript renderings for every video the ledger does not have yet. Videos
// without a retrievable transcript are left for the next run.
func (d *Driver) GetPlaylistDetails(ctx context.Context) (Report, error) {
	var rep Report
	listings := d.deps.Lister.Discover(ctx, sources.ListingQuery{
		Locator:  d.cfg.ListingLocator(),
		Match:    sources.TitleContains(d.cfg.TitleMatch),
		MaxPages: d.cfg.MaxPages,
	})
	slog.Info("pipeline: listings discovered", slog.Int("count", len(listings)))

	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Scanned++
		if ledger.HasTranscriptSentences(ctx, d.deps.Store, l.URL) {
			rep.Skipped++
			continue
		}
		switch d.ingest(ctx, l) {
		case outcomeWritten:
			rep.Processed++
		case outcomeSkipped:
			rep.Skipped++
		default:
			rep.Failed++
		}
	}
	return rep, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSkipped
	outcomeWritten
)

func (d *Driver) ingest(ctx context.Context, l sources.Listing) outcome {
	slog.Info("pipeline: processing", slog.String("url", l.URL))
	det, err := d.deps.Details.Details(ctx, l.URL)
	if err != nil {
		slog.Warn("pipeline: details unavailable, skipping", slog.String("url", l.URL), slog.Any("error", err))
		return outcomeFailed
	}

	id := l.VideoID
	if id == "" {
		id = sources.VideoIDFromURL(l.URL)
	}
	timestamped, sentences, ok := transcript.Render(d.deps.Transcripts.Fetch(ctx, id))
	if !ok {
		slog.Info("pipeline: no transcript, retry next run", slog.String("url", l.URL))
		return outcomeSkipped
	}

	err = d.write(ctx, l.URL, ledger.Fields{
		ledger.FieldPlaylistURL:         d.cfg.PlaylistURL(),
		ledger.FieldTitle:               det.Title,
		ledger.FieldEventName:           d.cfg.EventName,
		ledger.FieldEventYear:           d.cfg.EventYear,
		ledger.FieldChannelName:         det.ChannelName,
		ledger.FieldUploadDate:          det.UploadDate,
		ledger.FieldDuration:            det.Duration,
		ledger.FieldTranscript:          timestamped,
		ledger.FieldTranscriptSentences: sentences,
		ledger.FieldUpdatedDate:         d.now().In(d.cfg.Location()).Format(updatedDateLayout),
	})
	if err != nil {
		slog.Warn("pipeline: ledger write failed", slog.String("url", l.URL), slog.Any("error", err))
		return outcomeFailed
	}
	slog.Info("pipeline: stored", slog.String("url", l.URL), slog.String("title", det.Title))
	return outcomeWritten
}

// GenerateSummary enriches every record of the event year that has a
// transcript and no enrichment yet.
func (d *Driver) GenerateSummary(ctx context.Context) (Report, error) {
	var rep Report
	filter := ledger.Filter{EventYear: d.cfg.EventYear, WithoutEnrichment: true}
	err := ledger.ScanAll(ctx, d.deps.Store, filter, 0, func(rec ledger.VideoRecord) error {
		rep.Scanned++
		if rec.HasEnrichment() || !rec.HasTranscript() {
			rep.Skipped++
			return nil
		}
		slog.Info("pipeline: enriching", slog.String("url", rec.VideoURL))
		insights, ok := d.deps.Enricher.Enrich(ctx, rec.Transcript)
		if !ok {
			slog.Info("pipeline: no insights, retry next run", slog.String("url", rec.VideoURL))
			rep.Failed++
			return nil
		}
		if err := d.write(ctx, rec.VideoURL, insights.Fields()); err != nil {
			slog.Warn("pipeline: ledger write failed", slog.String("url", rec.VideoURL), slog.Any("error", err))
			rep.Failed++
			return nil
		}
		rep.Processed++
		return nil
	})
	return rep, err
}

// UploadSummary archives every record that has a URL, a title and a
// transcript.
func (d *Driver) UploadSummary(ctx context.Context) (Report, error) {
	var rep Report
	err := ledger.ScanAll(ctx, d.deps.Store, ledger.Filter{}, 0, func(rec ledger.VideoRecord) error {
		rep.Scanned++
		if rec.VideoURL == "" || rec.Title == "" || !rec.HasTranscript() {
			rep.Skipped++
			return nil
		}
		var ok bool
		if d.TranscriptsOnly {
			ok = d.deps.Archiver.ArchiveTranscript(ctx, rec)
		} else {
			ok = d.deps.Archiver.Archive(ctx, rec)
		}
		if ok {
			rep.Processed++
		} else {
			rep.Failed++
		}
		return nil
	})
	return rep, err
}

// UpdateViewCount refreshes view_count for every record of the event year,
// pacing between scan pages.
func (d *Driver) UpdateViewCount(ctx context.Context) (Report, error) {
	var rep Report
	filter := ledger.Filter{EventYear: d.cfg.EventYear}
	err := ledger.ScanAll(ctx, d.deps.Store, filter, d.cfg.PageDelay, func(rec ledger.VideoRecord) error {
		rep.Scanned++
		if rec.VideoURL == "" {
			rep.Skipped++
			return nil
		}
		views, err := d.deps.Details.ViewCount(ctx, rec.VideoURL)
		if err != nil {
			slog.Warn("pipeline: view count fetch failed", slog.String("url", rec.VideoURL), slog.Any("error", err))
			rep.Failed++
			return nil
		}
		if err := d.write(ctx, rec.VideoURL, ledger.Fields{ledger.FieldViewCount: views}); err != nil {
			slog.Warn("pipeline: view count write failed", slog.String("url", rec.VideoURL), slog.Any("error", err))
			rep.Failed++
			return nil
		}
		slog.Info("pipeline: view count updated", slog.String("url", rec.VideoURL), slog.Int64("views", views))
		rep.Processed++
		return nil
	})
	return rep, err
}

func (d *Driver) write(ctx context.Context, videoURL string, fields ledger.Fields) error {
	if err := d.deps.Store.Upsert(ctx, videoURL, fields); err != nil {
		return err
	}
	engine.IncrLedgerWrites()
	return nil
}
