package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// --- Meeting log ---

// SaveMeeting writes a meeting together with its action items and
// decisions. A missing id is generated and returned.
func (s *Store) SaveMeeting(ctx context.Context, m Meeting) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	b, err := json.Marshal(m.Record)
	if err != nil {
		return "", fmt.Errorf("encoding meeting record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning meeting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meetings (id, thread_id, title, tldr, record_json, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ThreadID, m.Title, m.Record.TLDR, string(b), m.LatencyMs, formatTime(m.CreatedAt),
	); err != nil {
		return "", fmt.Errorf("inserting meeting: %w", err)
	}

	for _, a := range m.Record.ActionItems {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO action_items (meeting_id, task, owner, due_date) VALUES (?, ?, ?, ?)`,
			m.ID, a.Task, a.Owner, a.DueDate,
		); err != nil {
			return "", fmt.Errorf("inserting action item: %w", err)
		}
	}
	for _, d := range m.Record.Decisions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO decisions (meeting_id, decision, owner, context) VALUES (?, ?, ?, ?)`,
			m.ID, d.Decision, d.Owner, d.Context,
		); err != nil {
			return "", fmt.Errorf("inserting decision: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing meeting: %w", err)
	}
	return m.ID, nil
}

// ListMeetings returns logged meetings, newest first. An empty threadID
// lists all threads.
func (s *Store) ListMeetings(ctx context.Context, threadID string, limit, offset int) ([]Meeting, error) {
	query := `SELECT id, thread_id, title, record_json, latency_ms, created_at FROM meetings`
	var args []any
	if threadID != "" {
		query += ` WHERE thread_id = ?`
		args = append(args, threadID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Meeting
	for rows.Next() {
		var m Meeting
		var raw, createdAt string
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Title, &raw, &m.LatencyMs, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &m.Record); err != nil {
			return nil, fmt.Errorf("decoding meeting %s: %w", m.ID, err)
		}
		m.Record.Normalize()
		if m.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
