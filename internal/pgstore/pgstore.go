// Package pgstore keeps thread histories in PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalambet/recap/internal/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS thread_histories (
	thread_id  TEXT PRIMARY KEY,
	history    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is a memory.HistoryStore backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and creates the history table if needed.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating thread_histories: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Load(ctx context.Context, threadID string) (*memory.ThreadHistory, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT history FROM thread_histories WHERE thread_id = $1`, threadID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading thread %q: %w", threadID, err)
	}
	var h memory.ThreadHistory
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("decoding thread %q: %w", threadID, err)
	}
	return &h, nil
}

// Save upserts the history in one statement.
func (s *Store) Save(ctx context.Context, threadID string, h memory.ThreadHistory) error {
	b, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encoding thread %q: %w", threadID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO thread_histories (thread_id, history, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (thread_id) DO UPDATE SET history = EXCLUDED.history, updated_at = EXCLUDED.updated_at`,
		threadID, b)
	if err != nil {
		return fmt.Errorf("saving thread %q: %w", threadID, err)
	}
	return nil
}

func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT thread_id FROM thread_histories ORDER BY thread_id`)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning threads: %w", err)
	}
	return ids, nil
}
