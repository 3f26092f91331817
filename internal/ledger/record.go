// Package ledger is the durable per-video record store. Records are keyed by
// video URL and only ever merged into; nothing is deleted.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Attribute names. Stages write only the ones they own.
const (
	FieldPlaylistURL         = "playlist_url"
	FieldTitle               = "title"
	FieldEventName           = "event_name"
	FieldEventYear           = "event_year"
	FieldChannelName         = "channel_name"
	FieldUploadDate          = "upload_date"
	FieldDuration            = "duration"
	FieldViewCount           = "view_count"
	FieldTranscript          = "transcript"
	FieldTranscriptSentences = "transcript_sentences"
	FieldUpdatedDate         = "updated_date"

	FieldCustomerNames     = "customer_names"
	FieldPresenterDetails  = "presenter_details"
	FieldIndustries        = "industries"
	FieldUseCases          = "use_cases"
	FieldProblemStatements = "problem_statements"
	FieldSolutions         = "solutions"
	FieldAWSServices       = "aws_services"
	FieldSummary           = "summary"
	FieldKeyPoints         = "key_points"
)

// EnrichmentFields are written together by the enrichment flow. The first one
// doubles as the "already enriched" marker.
var EnrichmentFields = []string{
	FieldCustomerNames, FieldPresenterDetails, FieldIndustries, FieldUseCases,
	FieldProblemStatements, FieldSolutions, FieldAWSServices, FieldSummary, FieldKeyPoints,
}

var knownFields = append([]string{
	FieldPlaylistURL, FieldTitle, FieldEventName, FieldEventYear, FieldChannelName,
	FieldUploadDate, FieldDuration, FieldViewCount, FieldTranscript,
	FieldTranscriptSentences, FieldUpdatedDate,
}, EnrichmentFields...)

var (
	// ErrUnknownField is returned by Upsert for attribute names outside the record schema.
	ErrUnknownField = errors.New("ledger: unknown field")
	// ErrEmptyKey is returned when a video URL is empty.
	ErrEmptyKey = errors.New("ledger: empty video url")
)

type Presenter struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

type ServiceMention struct {
	TimeStamp    string `json:"time_stamp"`
	TimeDuration string `json:"time_duration"`
	ServiceName  string `json:"service_name"`
}

type KeyPoint struct {
	TimeStamp    string `json:"time_stamp"`
	TimeDuration string `json:"time_duration"`
	Point        string `json:"point"`
}

// VideoRecord is the read view of one ledger entry. Enrichment fields stay nil
// until the enrichment flow has written them.
type VideoRecord struct {
	VideoURL            string  `json:"video_url"`
	PlaylistURL         string  `json:"playlist_url,omitempty"`
	Title               string  `json:"title,omitempty"`
	EventName           string  `json:"event_name,omitempty"`
	EventYear           string  `json:"event_year,omitempty"`
	ChannelName         string  `json:"channel_name,omitempty"`
	UploadDate          string  `json:"upload_date,omitempty"`
	Duration            string  `json:"duration,omitempty"`
	ViewCount           int64   `json:"view_count"`
	Transcript          string  `json:"transcript,omitempty"`
	TranscriptSentences *string `json:"transcript_sentences,omitempty"`
	UpdatedDate         string  `json:"updated_date,omitempty"`

	CustomerNames     []string         `json:"customer_names,omitempty"`
	PresenterDetails  []Presenter      `json:"presenter_details,omitempty"`
	Industries        []string         `json:"industries,omitempty"`
	UseCases          []string         `json:"use_cases,omitempty"`
	ProblemStatements []string         `json:"problem_statements,omitempty"`
	Solutions         []string         `json:"solutions,omitempty"`
	AWSServices       []ServiceMention `json:"aws_services,omitempty"`
	Summary           *string          `json:"summary,omitempty"`
	KeyPoints         []KeyPoint       `json:"key_points,omitempty"`
}

// HasEnrichment reports whether the enrichment flow has written this record.
func (r VideoRecord) HasEnrichment() bool { return r.CustomerNames != nil }

// HasTranscript reports whether a timestamped transcript is stored.
func (r VideoRecord) HasTranscript() bool { return r.Transcript != "" }

// SummaryText returns the summary or "".
func (r VideoRecord) SummaryText() string {
	if r.Summary == nil {
		return ""
	}
	return *r.Summary
}

// Fields is a partial write: attribute name → value.
type Fields map[string]any

// Validate rejects names outside the record schema.
func (f Fields) Validate() error {
	for k := range f {
		if !slices.Contains(knownFields, k) {
			return fmt.Errorf("%w: %q", ErrUnknownField, k)
		}
	}
	return nil
}

// Names returns the field names in sorted order.
func (f Fields) Names() []string {
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// normalize round-trips every value through JSON so backends store plain
// strings, numbers, lists and maps. Nil values are dropped.
func (f Fields) normalize() (map[string]any, error) {
	out := make(map[string]any, len(f))
	for k, v := range f {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("ledger: encode %s: %w", k, err)
		}
		if string(raw) == "null" {
			continue
		}
		var plain any
		if err := json.Unmarshal(raw, &plain); err != nil {
			return nil, fmt.Errorf("ledger: encode %s: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}

// Filter narrows a Scan. The zero Filter matches everything.
type Filter struct {
	EventYear         string
	WithoutEnrichment bool
}

// Match applies the filter to a plain document.
func (f Filter) Match(doc map[string]any) bool {
	if f.EventYear != "" {
		if y, _ := doc[FieldEventYear].(string); y != f.EventYear {
			return false
		}
	}
	if f.WithoutEnrichment {
		if _, ok := doc[FieldCustomerNames]; ok {
			return false
		}
	}
	return true
}

// Page is one Scan result. Next is "" when the scan is exhausted.
type Page struct {
	Items []VideoRecord
	Next  string
}

// Store is the ledger contract every backend implements.
type Store interface {
	// Get returns nil, nil when no record exists for videoURL.
	Get(ctx context.Context, videoURL string) (*VideoRecord, error)
	// Upsert merges fields into the record, creating it if needed.
	Upsert(ctx context.Context, videoURL string, fields Fields) error
	// Scan returns the page after cursor; "" starts from the beginning.
	Scan(ctx context.Context, filter Filter, cursor string) (Page, error)
	Close() error
}

// decodeRecord builds a VideoRecord from a stored JSON document.
func decodeRecord(videoURL string, doc []byte) (VideoRecord, error) {
	var r VideoRecord
	if err := json.Unmarshal(doc, &r); err != nil {
		return VideoRecord{}, fmt.Errorf("ledger: decode %s: %w", videoURL, err)
	}
	r.VideoURL = videoURL
	return r, nil
}

func checkUpsert(videoURL string, fields Fields) error {
	if videoURL == "" {
		return ErrEmptyKey
	}
	return fields.Validate()
}
