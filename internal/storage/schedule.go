package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// --- Local schedule ---

func (s *Store) SaveLocalEvent(ctx context.Context, e LocalEvent) error {
	attendees := e.Attendees
	if attendees == nil {
		attendees = []string{}
	}
	b, err := json.Marshal(attendees)
	if err != nil {
		return fmt.Errorf("encoding attendees: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO local_events (id, title, description, start_at, end_at, time_zone, attendees_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, formatTime(e.Start), formatTime(e.End), e.TimeZone, string(b), formatTime(e.CreatedAt),
	)
	return err
}

// ListLocalEvents returns events starting in [from, to), ordered by start.
// Zero bounds are open.
func (s *Store) ListLocalEvents(ctx context.Context, from, to time.Time) ([]LocalEvent, error) {
	query := `SELECT id, title, description, start_at, end_at, time_zone, attendees_json, created_at FROM local_events WHERE 1 = 1`
	var args []any
	if !from.IsZero() {
		query += ` AND start_at >= ?`
		args = append(args, formatTime(from))
	}
	if !to.IsZero() {
		query += ` AND start_at < ?`
		args = append(args, formatTime(to))
	}
	query += ` ORDER BY start_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LocalEvent
	for rows.Next() {
		var e LocalEvent
		var start, end, attendees, createdAt string
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &start, &end, &e.TimeZone, &attendees, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attendees), &e.Attendees); err != nil {
			return nil, fmt.Errorf("decoding attendees of %s: %w", e.ID, err)
		}
		if e.Start, err = parseTime("start_at", start); err != nil {
			return nil, err
		}
		if e.End, err = parseTime("end_at", end); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteLocalEvent(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "local_events", id)
}

func (s *Store) SaveLocalTask(ctx context.Context, t LocalTask) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_tasks (id, title, notes, owner, due, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, notes = excluded.notes, owner = excluded.owner,
			due = excluded.due, status = excluded.status, updated_at = excluded.updated_at`,
		t.ID, t.Title, t.Notes, t.Owner, t.Due, t.Status, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	return err
}

const localTaskColumns = `id, title, notes, owner, due, status, created_at, updated_at`

func scanLocalTask(row rowScanner) (LocalTask, error) {
	var t LocalTask
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Title, &t.Notes, &t.Owner, &t.Due, &t.Status, &createdAt, &updatedAt); err != nil {
		return LocalTask{}, err
	}
	var err error
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return LocalTask{}, err
	}
	if t.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return LocalTask{}, err
	}
	return t, nil
}

func (s *Store) GetLocalTask(ctx context.Context, id string) (LocalTask, error) {
	t, err := scanLocalTask(s.db.QueryRowContext(ctx, `SELECT `+localTaskColumns+` FROM local_tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return LocalTask{}, ErrNotFound
	}
	return t, err
}

// ListLocalTasks returns tasks in creation order. An empty status matches
// every task.
func (s *Store) ListLocalTasks(ctx context.Context, status string) ([]LocalTask, error) {
	query := `SELECT ` + localTaskColumns + ` FROM local_tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LocalTask
	for rows.Next() {
		t, err := scanLocalTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteLocalTask(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "local_tasks", id)
}

func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
