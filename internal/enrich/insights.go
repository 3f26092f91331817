package enrich

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"slices"

	"github.com/anatolykoptev/go_ytledger/internal/ledger"
)

// Insights is the typed enrichment schema. Lists tolerate a bare value in
// place of a one-element list.
type Insights struct {
	CustomerNames     flexList[string]                `json:"customer_names"`
	PresenterDetails  flexList[ledger.Presenter]      `json:"presenter_details"`
	Industries        flexList[string]                `json:"industries"`
	UseCases          flexList[string]                `json:"use_cases"`
	ProblemStatements flexList[string]                `json:"problem_statements"`
	Solutions         flexList[string]                `json:"solutions"`
	AWSServices       flexList[ledger.ServiceMention] `json:"aws_services"`
	Summary           string                          `json:"summary"`
	KeyPoints         flexList[ledger.KeyPoint]       `json:"key_points"`
}

// Fields converts the insights into one combined ledger write. Every list is
// non-nil so the record is marked enriched even when the model found nothing.
func (in *Insights) Fields() ledger.Fields {
	return ledger.Fields{
		ledger.FieldCustomerNames:     orEmpty(in.CustomerNames),
		ledger.FieldPresenterDetails:  orEmpty(in.PresenterDetails),
		ledger.FieldIndustries:        orEmpty(in.Industries),
		ledger.FieldUseCases:          orEmpty(in.UseCases),
		ledger.FieldProblemStatements: orEmpty(in.ProblemStatements),
		ledger.FieldSolutions:         orEmpty(in.Solutions),
		ledger.FieldAWSServices:       orEmpty(in.AWSServices),
		ledger.FieldSummary:           in.Summary,
		ledger.FieldKeyPoints:         orEmpty(in.KeyPoints),
	}
}

func orEmpty[T any](l flexList[T]) []T {
	if l == nil {
		return []T{}
	}
	return []T(l)
}

// flexList decodes a JSON list, a single value, or null. Entries that do not
// fit T (a "Not Available" string where an object belongs) are dropped.
type flexList[T any] []T

func (l *flexList[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = flexList[T]{}
		return nil
	}
	if b[0] != '[' {
		*l = appendLenient(flexList[T]{}, b)
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(flexList[T], 0, len(raw))
	for _, item := range raw {
		out = appendLenient(out, item)
	}
	*l = out
	return nil
}

func appendLenient[T any](l flexList[T], raw json.RawMessage) flexList[T] {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Debug("enrich: dropping list entry", slog.String("raw", string(raw)))
		return l
	}
	return append(l, v)
}

var (
	escapedControlRE = regexp.MustCompile(`\\[ntrbf]`)
	controlByteRE    = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	jsonObjectRE     = regexp.MustCompile(`(?s)\{.*\}`)
)

// CleanReply strips escaped and raw control characters and returns the
// outermost {...} span, or "" when there is none.
func CleanReply(reply string) string {
	s := escapedControlRE.ReplaceAllString(reply, "")
	s = controlByteRE.ReplaceAllString(s, "")
	return jsonObjectRE.FindString(s)
}

// ParseReply turns a raw model reply into Insights. Keys outside the schema
// are logged and ignored.
func ParseReply(reply string) (*Insights, error) {
	obj := CleanReply(reply)
	if obj == "" {
		return nil, ErrNoJSON
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	for k := range keys {
		if !slices.Contains(ledger.EnrichmentFields, k) {
			slog.Debug("enrich: ignoring unknown key", slog.String("key", k))
		}
	}
	var in Insights
	if err := json.Unmarshal([]byte(obj), &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return &in, nil
}
