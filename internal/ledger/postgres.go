package ledger

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// PostgresStore keeps each record as a jsonb document and merges writes with ||.
type PostgresStore struct {
	pool     *pgxpool.Pool
	pageSize int
}

// ConnectPostgres creates a pgx pool and runs schema migrations.
func ConnectPostgres(ctx context.Context, databaseURL string, pageSize int) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("ledger postgres: DATABASE_URL is required")
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("ledger postgres: parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("ledger postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger postgres: ping: %w", err)
	}

	s := &PostgresStore{pool: pool, pageSize: pageSize}
	if s.pageSize <= 0 {
		s.pageSize = 100
	}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger postgres: migrations: %w", err)
	}
	slog.Info("ledger postgres connected", slog.String("addr", config.ConnConfig.Host))
	return s, nil
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, videoURL string) (*VideoRecord, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM video_records WHERE video_url = $1`, videoURL).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger postgres: get: %w", err)
	}
	r, err := decodeRecord(videoURL, doc)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, videoURL string, fields Fields) error {
	if err := checkUpsert(videoURL, fields); err != nil {
		return err
	}
	plain, err := fields.normalize()
	if err != nil {
		return err
	}
	if len(plain) == 0 {
		return nil
	}
	patch, err := json.Marshal(plain)
	if err != nil {
		return fmt.Errorf("ledger postgres: encode: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO video_records (video_url, doc) VALUES ($1, $2::jsonb)
		ON CONFLICT (video_url) DO UPDATE SET doc = video_records.doc || EXCLUDED.doc, updated_at = now()`,
		videoURL, string(patch))
	if err != nil {
		return fmt.Errorf("ledger postgres: upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Scan(ctx context.Context, filter Filter, cursor string) (Page, error) {
	query, args := postgresScanQuery(filter, cursor, s.pageSize)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("ledger postgres: scan: %w", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var url string
		var doc []byte
		if err := rows.Scan(&url, &doc); err != nil {
			return Page{}, fmt.Errorf("ledger postgres: scan row: %w", err)
		}
		r, err := decodeRecord(url, doc)
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, r)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("ledger postgres: scan rows: %w", err)
	}
	if len(page.Items) == s.pageSize {
		page.Next = page.Items[len(page.Items)-1].VideoURL
	}
	return page, nil
}

// postgresScanQuery builds the keyset-paginated scan for filter.
func postgresScanQuery(filter Filter, cursor string, limit int) (string, []any) {
	where := []string{"video_url > $1"}
	args := []any{cursor}
	if filter.EventYear != "" {
		args = append(args, filter.EventYear)
		where = append(where, fmt.Sprintf("doc->>'event_year' = $%d", len(args)))
	}
	if filter.WithoutEnrichment {
		where = append(where, "NOT (doc ? 'customer_names')")
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT video_url, doc FROM video_records WHERE %s ORDER BY video_url LIMIT $%d`,
		strings.Join(where, " AND "), len(args))
	return query, args
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
