package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clipscope/clipscope/internal/provider"
	"github.com/clipscope/clipscope/internal/state"
)

// SessionStore is the SQL-backed session store. It satisfies
// state.Sessions and creates sessions on first touch.
type SessionStore struct {
	db          *DB
	maxMessages int // 0 = no cap
}

func NewSessionStore(db *DB, maxMessages int) *SessionStore {
	return &SessionStore{db: db, maxMessages: maxMessages}
}

// Ensure loads the session, inserting a fresh row if none exists.
func (s *SessionStore) Ensure(id string) (*state.Session, error) {
	sess, err := s.get(id)
	if err == nil {
		return sess, nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.exec(
		`INSERT INTO sessions (id, messages, reclarify_count, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, "[]", 0, now, now); err != nil {
		// Lost a create race; the row is there now.
		if existing, e := s.get(id); e == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("session ensure: %w", err)
	}
	return s.get(id)
}

func (s *SessionStore) get(id string) (*state.Session, error) {
	var messagesJSON, createdAt, updatedAt string
	var reclarify int
	err := s.db.queryRow(
		`SELECT messages, reclarify_count, created_at, updated_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&messagesJSON, &reclarify, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("session %q not found", id)
	}
	var messages []provider.Message
	if messagesJSON != "" {
		_ = json.Unmarshal([]byte(messagesJSON), &messages)
	}
	ca, _ := time.Parse(time.RFC3339, createdAt)
	ua, _ := time.Parse(time.RFC3339, updatedAt)
	return &state.Session{
		ID:             id,
		Messages:       messages,
		ReclarifyCount: reclarify,
		CreatedAt:      ca,
		UpdatedAt:      ua,
	}, nil
}

// AddMessage appends a message and persists. If maxMessages > 0, trims to
// the last maxMessages.
func (s *SessionStore) AddMessage(id string, msg provider.Message) error {
	sess, err := s.Ensure(id)
	if err != nil {
		return err
	}
	sess.Messages = append(sess.Messages, msg)
	if s.maxMessages > 0 && len(sess.Messages) > s.maxMessages {
		sess.Messages = sess.Messages[len(sess.Messages)-s.maxMessages:]
	}
	messagesJSON, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("session persist: marshal messages: %w", err)
	}
	_, err = s.db.exec(
		`UPDATE sessions SET messages = ?, updated_at = ? WHERE id = ?`,
		string(messagesJSON), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("session persist: %w", err)
	}
	return nil
}

func (s *SessionStore) History(id string) ([]provider.Message, error) {
	sess, err := s.get(id)
	if err != nil {
		return nil, nil
	}
	return sess.Messages, nil
}

func (s *SessionStore) ReclarifyCount(id string) (int, error) {
	var n int
	err := s.db.queryRow(`SELECT reclarify_count FROM sessions WHERE id = ?`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *SessionStore) SetReclarifyCount(id string, n int) error {
	if _, err := s.Ensure(id); err != nil {
		return err
	}
	_, err := s.db.exec(
		`UPDATE sessions SET reclarify_count = ?, updated_at = ? WHERE id = ?`,
		n, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("session persist: %w", err)
	}
	return nil
}

// List returns all session ids, for admin surfaces and tests.
func (s *SessionStore) List() ([]string, error) {
	rows, err := s.db.query(`SELECT id FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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

// Delete removes a session.
func (s *SessionStore) Delete(id string) error {
	_, err := s.db.exec(`DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// PruneIdle deletes sessions not updated within maxIdle and returns how
// many rows went away.
func (s *SessionStore) PruneIdle(maxIdle time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxIdle).UTC().Format(time.RFC3339)
	res, err := s.db.exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}
