package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps each record as a JSON document in a single table and
// merges writes with json_patch.
type SQLiteStore struct {
	db       *sql.DB
	pageSize int
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string, pageSize int) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("ledger sqlite: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger sqlite: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS video_records (
		video_url  TEXT PRIMARY KEY,
		doc        TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger sqlite: init schema: %w", err)
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &SQLiteStore{db: db, pageSize: pageSize}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, videoURL string) (*VideoRecord, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM video_records WHERE video_url = ?`, videoURL).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger sqlite: get: %w", err)
	}
	r, err := decodeRecord(videoURL, []byte(doc))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, videoURL string, fields Fields) error {
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
		return fmt.Errorf("ledger sqlite: encode: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO video_records (video_url, doc) VALUES (?, json(?))
		ON CONFLICT(video_url) DO UPDATE SET
			doc = json_patch(video_records.doc, excluded.doc),
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		videoURL, string(patch))
	if err != nil {
		return fmt.Errorf("ledger sqlite: upsert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Scan(ctx context.Context, filter Filter, cursor string) (Page, error) {
	where := []string{"video_url > ?"}
	args := []any{cursor}
	if filter.EventYear != "" {
		where = append(where, "json_extract(doc, '$.event_year') = ?")
		args = append(args, filter.EventYear)
	}
	if filter.WithoutEnrichment {
		where = append(where, "json_type(doc, '$.customer_names') IS NULL")
	}
	args = append(args, s.pageSize)

	rows, err := s.db.QueryContext(ctx,
		`SELECT video_url, doc FROM video_records WHERE `+strings.Join(where, " AND ")+` ORDER BY video_url LIMIT ?`,
		args...)
	if err != nil {
		return Page{}, fmt.Errorf("ledger sqlite: scan: %w", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var url, doc string
		if err := rows.Scan(&url, &doc); err != nil {
			return Page{}, fmt.Errorf("ledger sqlite: scan row: %w", err)
		}
		r, err := decodeRecord(url, []byte(doc))
		if err != nil {
			return Page{}, err
		}
		page.Items = append(page.Items, r)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("ledger sqlite: scan rows: %w", err)
	}
	if len(page.Items) == s.pageSize {
		page.Next = page.Items[len(page.Items)-1].VideoURL
	}
	return page, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
