// Package sqlite is the local message cache: every message a session
// accepts is written through here, so the CLI can show recent history for
// a room even before the backend fetch lands (or without a connection).
package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ageniuscoder/mmchat/client/internal/chat"
)

type Sqlite struct {
	Db *sql.DB
}

func New(dsn string) (*Sqlite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, err
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Enable WAL for better concurrency
	_, _ = db.Exec(`PRAGMA journal_mode=WAL;`)

	// Wait up to 5s if locked
	_, _ = db.Exec(`PRAGMA busy_timeout = 5000;`)

	return &Sqlite{
		Db: db,
	}, nil
}

func (s *Sqlite) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

// SaveMessage upserts one message by id; replaying the same id is a no-op.
func (s *Sqlite) SaveMessage(m chat.Message) error {
	_, err := s.Db.Exec(
		`INSERT OR IGNORE INTO messages (id, room_id, sender_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Room, m.Sender, m.Text, m.Timestamp.UTC().Format(time.RFC3339))
	return err
}

// History returns the newest `limit` cached messages for a room, oldest
// first. localID marks the IsMe flag on the way out.
func (s *Sqlite) History(roomID, localID string, limit int) ([]chat.Message, error) {
	rows, err := s.Db.Query(
		`SELECT id, room_id, sender_id, text, created_at FROM (
		   SELECT * FROM messages WHERE room_id=? ORDER BY created_at DESC LIMIT ?
		 ) ORDER BY created_at ASC`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		var created string
		if err := rows.Scan(&m.ID, &m.Room, &m.Sender, &m.Text, &created); err != nil {
			return nil, err
		}
		m.Timestamp, _ = time.Parse(time.RFC3339, created)
		m.IsMe = m.Sender == localID
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
