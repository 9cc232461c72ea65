package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/recap/internal/memory"
)

// --- Thread histories ---

// Load returns the saved history of a thread, or (nil, nil) if none exists.
func (s *Store) Load(ctx context.Context, threadID string) (*memory.ThreadHistory, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT history_json FROM thread_histories WHERE thread_id = ?`, threadID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading thread %q: %w", threadID, err)
	}
	var h memory.ThreadHistory
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("decoding thread %q: %w", threadID, err)
	}
	return &h, nil
}

// Save replaces the stored history of a thread in a single statement.
func (s *Store) Save(ctx context.Context, threadID string, h memory.ThreadHistory) error {
	b, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encoding thread %q: %w", threadID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO thread_histories (thread_id, history_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET history_json = excluded.history_json, updated_at = excluded.updated_at`,
		threadID, string(b), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("saving thread %q: %w", threadID, err)
	}
	return nil
}

// ListThreads returns the ids of all saved threads.
func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id FROM thread_histories ORDER BY thread_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
