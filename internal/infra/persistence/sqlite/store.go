// Package sqlite persists report metadata to a SQLite file through the pure Go
// modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"rocklandcensus/internal/infra/persistence/memory"
	"rocklandcensus/internal/reports"
)

var _ reports.Store = (*Store)(nil)

const defaultPath = "rockland-reports.db"

// Store serves reads from memory and writes each saved report through to the
// reports table.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens path, creates the schema and loads existing rows.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create reports table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM reports`)
	if err != nil {
		return fmt.Errorf("select reports: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var loaded []reports.Report
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var r reports.Report
		if err := json.Unmarshal(payload, &r); err != nil {
			return fmt.Errorf("decode report %s: %w", id, err)
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate reports: %w", err)
	}
	s.Import(loaded)
	return nil
}

// Save writes r to the table, then to memory.
func (s *Store) Save(ctx context.Context, r reports.Report) error {
	if r.ID == "" {
		return errors.New("report id required")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO reports(id,created_at,payload) VALUES(?,?,?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`,
		r.ID, r.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"), payload); err != nil {
		return fmt.Errorf("upsert report %s: %w", r.ID, err)
	}
	return s.Store.Save(ctx, r)
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for tests.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database path.
func (s *Store) Path() string { return s.path }
