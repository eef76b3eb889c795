package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateSession inserts a new session in the queued state.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	now := time.Now().UTC()
	if sess.Status == "" {
		sess.Status = StatusQueued
	}
	if sess.PlanJSON == "" {
		sess.PlanJSON = "[]"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, updated_at, request_json, plan_json, reasoning, plan_source, expected_count, status, summary_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, formatTime(now), formatTime(now), sess.RequestJSON, sess.PlanJSON,
		sess.Reasoning, sess.PlanSource, sess.ExpectedCount, sess.Status, sess.SummaryJSON,
	)
	if err != nil {
		return fmt.Errorf("creating session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession returns a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, updated_at, request_json, plan_json, reasoning, plan_source, expected_count, status, summary_json
		FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at, request_json, plan_json, reasoning, plan_source, expected_count, status, summary_json
		FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
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

// UpdateSessionStatus sets the status of a session.
func (s *Store) UpdateSessionStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// FinishSession stores the generation summary and the final status.
func (s *Store) FinishSession(ctx context.Context, id, status, summaryJSON string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ?, summary_json = ?, updated_at = ? WHERE id = ?`,
		status, summaryJSON, formatTime(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// RecordComponentEvent appends a component outcome to the session history.
func (s *Store) RecordComponentEvent(ctx context.Context, ev ComponentEvent) error {
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO component_events (session_id, component_id, source, attempts, save_error, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.ComponentID, ev.Source, ev.Attempts, ev.SaveError, ev.Error, formatTime(created),
	)
	return err
}

// ListComponentEvents returns a session's component events in insertion order.
func (s *Store) ListComponentEvents(ctx context.Context, sessionID string) ([]ComponentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, component_id, source, attempts, save_error, error, created_at
		FROM component_events WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ComponentEvent
	for rows.Next() {
		var (
			ev      ComponentEvent
			created string
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.ComponentID, &ev.Source, &ev.Attempts, &ev.SaveError, &ev.Error, &created); err != nil {
			return nil, err
		}
		if ev.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess             Session
		created, updated string
	)
	err := row.Scan(&sess.ID, &created, &updated, &sess.RequestJSON, &sess.PlanJSON, &sess.Reasoning,
		&sess.PlanSource, &sess.ExpectedCount, &sess.Status, &sess.SummaryJSON)
	if err != nil {
		return Session{}, err
	}
	if sess.CreatedAt, err = parseTime(created); err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updated); err != nil {
		return Session{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return sess, nil
}
