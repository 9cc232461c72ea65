package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// --- Sessions ---

// CreateSession stores a new session. ID and CreatedAt must be set.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	meta := sess.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding session metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, thread_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.ThreadID, string(b), formatTime(sess.CreatedAt),
	)
	return err
}

const sessionQuery = `
	SELECT s.id, s.user_id, s.thread_id, s.metadata_json, s.created_at,
		(SELECT COUNT(*) FROM session_requests r WHERE r.session_id = s.id)
	FROM sessions s`

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var meta, createdAt string
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.ThreadID, &meta, &createdAt, &sess.Requests); err != nil {
		return Session{}, err
	}
	if err := json.Unmarshal([]byte(meta), &sess.Metadata); err != nil {
		return Session{}, fmt.Errorf("decoding session metadata: %w", err)
	}
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return Session{}, err
	}
	sess.CreatedAt = t
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, sessionQuery+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// ListSessions returns sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, sessionQuery+` ORDER BY s.created_at DESC, s.rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its request log.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
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

// AddSessionRequest appends a request to the session's log.
func (s *Store) AddSessionRequest(ctx context.Context, sessionID string, r SessionRequest) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_requests (session_id, success, latency_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, r.Success, r.LatencyMs, r.Error, formatTime(r.Timestamp),
	)
	return err
}

// SessionRequests returns the session's request log in call order.
func (s *Store) SessionRequests(ctx context.Context, sessionID string) ([]SessionRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT success, latency_ms, error, created_at
		FROM session_requests WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRequest
	for rows.Next() {
		var r SessionRequest
		var createdAt string
		if err := rows.Scan(&r.Success, &r.LatencyMs, &r.Error, &createdAt); err != nil {
			return nil, err
		}
		if r.Timestamp, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
