package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// ErrRunNotFound is returned by Store.Load for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Store persists run summaries to a SQLite table as JSON blobs.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the results database at path.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		path = "oscsim.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		seed INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &Store{db: db}, nil
}

// Save upserts the summaries keyed by run id in one transaction.
func (s *Store) Save(ctx context.Context, runs map[string]Summary) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO runs(run_id, mode, seed, payload) VALUES(?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET mode=excluded.mode, seed=excluded.seed, payload=excluded.payload`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for id, sum := range runs {
		payload, err := json.Marshal(sum)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, string(sum.Mode), sum.Seed, payload); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the summary stored under id.
func (s *Store) Load(ctx context.Context, id string) (Summary, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("select %s: %w", id, err)
	}
	var sum Summary
	if err := json.Unmarshal(payload, &sum); err != nil {
		return Summary{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return sum, nil
}

// List returns the stored run ids in ascending order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
