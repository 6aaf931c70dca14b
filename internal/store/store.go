package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one stored conversation episode.
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Task      string    `json:"task"`
	Model     string    `json:"model"`
}

// Record is one stored act.
type Record struct {
	Turn        int       `json:"turn"`
	Speaker     string    `json:"speaker"`
	Content     string    `json:"content"`
	EpisodeDone bool      `json:"episode_done"`
	Timestamp   time.Time `json:"timestamp"`
}

// Store persists conversations in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating when needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time DATETIME,
		task TEXT,
		model TEXT
	);`

	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		turn INTEGER,
		speaker TEXT,
		content TEXT,
		episode_done BOOLEAN,
		timestamp DATETIME,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	for _, stmt := range []string{createSessionsTable, createMessagesTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// NewSession returns a session with a fresh ID, not yet persisted.
func NewSession(task, model string) Session {
	return Session{
		ID:        uuid.NewString(),
		StartTime: time.Now(),
		Task:      task,
		Model:     model,
	}
}

// CreateSession persists the session header.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sessions (id, start_time, task, model) VALUES (?, ?, ?, ?)",
		sess.ID, sess.StartTime, sess.Task, sess.Model,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// AppendMessages stores records for a session in one transaction.
func (s *Store) AppendMessages(ctx context.Context, sessionID string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		ts := r.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO messages (session_id, turn, speaker, content, episode_done, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
			sessionID, r.Turn, r.Speaker, r.Content, r.EpisodeDone, ts,
		)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, start_time, task, model FROM sessions ORDER BY start_time DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.StartTime, &sess.Task, &sess.Model); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Messages loads a session's records in turn order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]Record, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM sessions WHERE id = ?", sessionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT turn, speaker, content, episode_done, timestamp FROM messages WHERE session_id = ? ORDER BY turn, id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Turn, &r.Speaker, &r.Content, &r.EpisodeDone, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
