// Package ledgerserver exposes the ledger read-only over MCP.
package ledgerserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
	"github.com/anatolykoptev/go_ytledger/internal/ledger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type VideoGetInput struct {
	VideoURL string `json:"video_url" jsonschema:"Watch URL of the video, e.g. https://www.youtube.com/watch?v=ID"`
}

type VideoGetOutput struct {
	Found  bool                `json:"found"`
	Record *ledger.VideoRecord `json:"record,omitempty"`
}

type VideoListInput struct {
	EventYear         string `json:"event_year,omitempty" jsonschema:"Only videos of this event year (default: all years)"`
	PendingEnrichment bool   `json:"pending_enrichment,omitempty" jsonschema:"Only videos that have not been enriched yet"`
	Limit             int    `json:"limit,omitempty" jsonschema:"Maximum number of videos to return (default 50, max 500)"`
}

// VideoSummary is the compact list view of one record.
type VideoSummary struct {
	VideoURL    string `json:"video_url"`
	Title       string `json:"title,omitempty"`
	EventYear   string `json:"event_year,omitempty"`
	ViewCount   int64  `json:"view_count"`
	Transcript  bool   `json:"has_transcript"`
	Enriched    bool   `json:"enriched"`
	SummaryHead string `json:"summary,omitempty"`
}

type VideoListOutput struct {
	Videos    []VideoSummary `json:"videos"`
	Truncated bool           `json:"truncated"`
}

// RegisterTools registers video_get and video_list backed by store.
func RegisterTools(server *mcp.Server, store ledger.Store) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_get",
		Description: "Get one ledger record by video URL: metadata, view count, transcript and enrichment fields (customers, presenters, industries, AWS services, summary, key points).",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoGetInput) (*mcp.CallToolResult, VideoGetOutput, error) {
		out, err := getVideo(ctx, store, input)
		return nil, out, err
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_list",
		Description: "List ledger records in URL order. Filter by event year and by whether enrichment is still pending. Returns compact summaries; use video_get for the full record.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoListInput) (*mcp.CallToolResult, VideoListOutput, error) {
		out, err := listVideos(ctx, store, input)
		return nil, out, err
	})
}

func getVideo(ctx context.Context, store ledger.Store, input VideoGetInput) (VideoGetOutput, error) {
	if input.VideoURL == "" {
		return VideoGetOutput{}, errors.New("video_url is required")
	}
	rec, err := store.Get(ctx, input.VideoURL)
	if err != nil {
		return VideoGetOutput{}, fmt.Errorf("video_get: %w", err)
	}
	return VideoGetOutput{Found: rec != nil, Record: rec}, nil
}

var errLimitReached = errors.New("limit reached")

func listVideos(ctx context.Context, store ledger.Store, input VideoListInput) (VideoListOutput, error) {
	limit := input.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	filter := ledger.Filter{EventYear: input.EventYear, WithoutEnrichment: input.PendingEnrichment}

	out := VideoListOutput{Videos: []VideoSummary{}}
	err := ledger.ScanAll(ctx, store, filter, 0, func(rec ledger.VideoRecord) error {
		if len(out.Videos) == limit {
			out.Truncated = true
			return errLimitReached
		}
		out.Videos = append(out.Videos, VideoSummary{
			VideoURL:    rec.VideoURL,
			Title:       rec.Title,
			EventYear:   rec.EventYear,
			ViewCount:   rec.ViewCount,
			Transcript:  rec.HasTranscript(),
			Enriched:    rec.HasEnrichment(),
			SummaryHead: engine.Snippet(rec.SummaryText()),
		})
		return nil
	})
	if err != nil && !errors.Is(err, errLimitReached) {
		return VideoListOutput{}, fmt.Errorf("video_list: %w", err)
	}
	return out, nil
}
