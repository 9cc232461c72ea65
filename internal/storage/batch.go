package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// --- Batch extractions ---

// SaveExtraction stores (or replaces) the batch result for key.
func (s *Store) SaveExtraction(ctx context.Context, e Extraction) error {
	b, err := json.Marshal(e.Record)
	if err != nil {
		return fmt.Errorf("encoding extraction %s: %w", e.Key, err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO extractions (key, thread_id, record_json, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET thread_id = excluded.thread_id, record_json = excluded.record_json, created_at = excluded.created_at`,
		e.Key, e.ThreadID, string(b), formatTime(e.CreatedAt),
	)
	return err
}

// ListExtractions returns all batch results ordered by key.
func (s *Store) ListExtractions(ctx context.Context) ([]Extraction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, thread_id, record_json, created_at FROM extractions ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Extraction
	for rows.Next() {
		var e Extraction
		var raw, createdAt string
		if err := rows.Scan(&e.Key, &e.ThreadID, &raw, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Record); err != nil {
			return nil, fmt.Errorf("decoding extraction %s: %w", e.Key, err)
		}
		e.Record.Normalize()
		if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Sync state ---

// SyncState returns the external objects recorded by the last sync.
func (s *Store) SyncState(ctx context.Context) ([]SyncItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, external_id FROM sync_state ORDER BY kind, created_at, external_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncItem
	for rows.Next() {
		var it SyncItem
		if err := rows.Scan(&it.Kind, &it.ExternalID); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ReplaceSyncState atomically swaps the recorded sync state for items.
func (s *Store) ReplaceSyncState(ctx context.Context, items []SyncItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning sync state transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sync_state`); err != nil {
		return fmt.Errorf("clearing sync state: %w", err)
	}
	now := formatTime(time.Now())
	for _, it := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO sync_state (kind, external_id, created_at) VALUES (?, ?, ?)`,
			it.Kind, it.ExternalID, now,
		); err != nil {
			return fmt.Errorf("recording sync item: %w", err)
		}
	}
	return tx.Commit()
}
