package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories lists every backend that runs without external services.
func storeFactories(t *testing.T) map[string]func(pageSize int) Store {
	t.Helper()
	return map[string]func(int) Store{
		"memory": func(n int) Store { return NewMemoryStore(n) },
		"sqlite": func(n int) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger", "test.db"), n)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			r, err := open(10).Get(context.Background(), "https://www.youtube.com/watch?v=none")
			require.NoError(t, err)
			assert.Nil(t, r)
		})
	}
}

func TestStoreUpsertMergesFields(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(10)
			ctx := context.Background()
			url := "https://www.youtube.com/watch?v=a"

			require.NoError(t, s.Upsert(ctx, url, Fields{
				FieldTitle:               "Keynote",
				FieldEventYear:           "2024",
				FieldDuration:            "1H 2M",
				FieldTranscript:          "start - text\n",
				FieldTranscriptSentences: "Hello.",
			}))
			require.NoError(t, s.Upsert(ctx, url, Fields{FieldViewCount: int64(42)}))
			require.NoError(t, s.Upsert(ctx, url, Fields{
				FieldCustomerNames:    []string{"Acme"},
				FieldPresenterDetails: []Presenter{{Name: "Ann", Title: "CTO"}},
				FieldSummary:          "Short.",
			}))

			r, err := s.Get(ctx, url)
			require.NoError(t, err)
			require.NotNil(t, r)
			assert.Equal(t, url, r.VideoURL)
			assert.Equal(t, "Keynote", r.Title)
			assert.Equal(t, "1H 2M", r.Duration)
			assert.Equal(t, int64(42), r.ViewCount)
			require.NotNil(t, r.TranscriptSentences)
			assert.Equal(t, "Hello.", *r.TranscriptSentences)
			assert.Equal(t, []string{"Acme"}, r.CustomerNames)
			assert.Equal(t, []Presenter{{Name: "Ann", Title: "CTO"}}, r.PresenterDetails)
			assert.Equal(t, "Short.", r.SummaryText())
			assert.True(t, r.HasEnrichment())
			assert.True(t, r.HasTranscript())
		})
	}
}

func TestStoreUpsertIsIdempotent(t *testing.T) {
	fields := Fields{
		FieldTitle:            "Keynote",
		FieldViewCount:        int64(42),
		FieldCustomerNames:    []string{"Acme", "Globex"},
		FieldPresenterDetails: []Presenter{{Name: "Ann", Title: "CTO"}},
		FieldSummary:          "Short.",
	}
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(10)
			ctx := context.Background()
			url := "https://www.youtube.com/watch?v=twice"

			require.NoError(t, s.Upsert(ctx, url, fields))
			once, err := s.Get(ctx, url)
			require.NoError(t, err)
			require.NoError(t, s.Upsert(ctx, url, fields))
			twice, err := s.Get(ctx, url)
			require.NoError(t, err)

			assert.Equal(t, once, twice)
			assert.Equal(t, []string{"Acme", "Globex"}, twice.CustomerNames)
		})
	}
}

func TestStoreEmptyEnrichmentListStillMarksEnriched(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(10)
			ctx := context.Background()
			url := "https://www.youtube.com/watch?v=e"
			require.NoError(t, s.Upsert(ctx, url, Fields{FieldEventYear: "2024", FieldCustomerNames: []string{}}))

			r, err := s.Get(ctx, url)
			require.NoError(t, err)
			assert.True(t, r.HasEnrichment())

			p, err := s.Scan(ctx, Filter{EventYear: "2024", WithoutEnrichment: true}, "")
			require.NoError(t, err)
			assert.Empty(t, p.Items)
		})
	}
}

func TestStoreRejectsUnknownField(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			err := open(10).Upsert(context.Background(), "u", Fields{"bogus": 1})
			assert.ErrorIs(t, err, ErrUnknownField)
			assert.ErrorIs(t, open(10).Upsert(context.Background(), "", Fields{FieldTitle: "x"}), ErrEmptyKey)
		})
	}
}

func TestStoreScanPagesAndFilters(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(3)
			ctx := context.Background()
			for i := range 10 {
				f := Fields{FieldEventYear: "2024", FieldTitle: fmt.Sprintf("t%d", i)}
				if i%2 == 0 {
					f[FieldCustomerNames] = []string{"Not Available"}
				}
				require.NoError(t, s.Upsert(ctx, fmt.Sprintf("https://www.youtube.com/watch?v=%02d", i), f))
			}
			require.NoError(t, s.Upsert(ctx, "https://www.youtube.com/watch?v=old", Fields{FieldEventYear: "2023"}))

			var all []string
			require.NoError(t, ScanAll(ctx, s, Filter{}, 0, func(r VideoRecord) error {
				all = append(all, r.VideoURL)
				return nil
			}))
			assert.Len(t, all, 11)
			assert.IsIncreasing(t, all)

			var year []string
			require.NoError(t, ScanAll(ctx, s, Filter{EventYear: "2024"}, 0, func(r VideoRecord) error {
				year = append(year, r.VideoURL)
				return nil
			}))
			assert.Len(t, year, 10)

			var pending []string
			require.NoError(t, ScanAll(ctx, s, Filter{EventYear: "2024", WithoutEnrichment: true}, 0, func(r VideoRecord) error {
				assert.False(t, r.HasEnrichment())
				pending = append(pending, r.VideoURL)
				return nil
			}))
			assert.Len(t, pending, 5)
		})
	}
}

func TestScanAllAbortsOnCallbackError(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, s.Upsert(ctx, fmt.Sprintf("u%d", i), Fields{FieldTitle: "t"}))
	}
	stop := fmt.Errorf("stop")
	seen := 0
	err := ScanAll(ctx, s, Filter{}, 0, func(VideoRecord) error {
		seen++
		if seen == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, seen)
}

type scanTimes struct {
	Store
	at []time.Time
}

func (s *scanTimes) Scan(ctx context.Context, filter Filter, cursor string) (Page, error) {
	s.at = append(s.at, time.Now())
	return s.Store.Scan(ctx, filter, cursor)
}

func TestScanAllPacesPages(t *testing.T) {
	mem := NewMemoryStore(2)
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, mem.Upsert(ctx, fmt.Sprintf("u%d", i), Fields{FieldTitle: "t"}))
	}
	s := &scanTimes{Store: mem}
	const pace = 30 * time.Millisecond

	start := time.Now()
	seen := 0
	require.NoError(t, ScanAll(ctx, s, Filter{}, pace, func(VideoRecord) error {
		seen++
		return nil
	}))
	elapsed := time.Since(start)

	assert.Equal(t, 5, seen)
	require.Len(t, s.at, 3)
	assert.GreaterOrEqual(t, elapsed, time.Duration(len(s.at)-1)*pace-time.Millisecond)
}

func TestHasTranscriptSentences(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "with", Fields{FieldTranscriptSentences: "Hi."}))
	require.NoError(t, s.Upsert(ctx, "without", Fields{FieldViewCount: int64(3)}))

	assert.True(t, HasTranscriptSentences(ctx, s, "with"))
	assert.False(t, HasTranscriptSentences(ctx, s, "without"))
	assert.False(t, HasTranscriptSentences(ctx, s, "absent"))
}
