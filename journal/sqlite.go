package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// One writer avoids "database is locked" between the accept loop and
	// the watchers recording disconnects.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordConnect(s Session) error {
	_, err := j.db.Exec(`
		INSERT INTO sessions (session_id, remote_addr, connected_at)
		VALUES (?, ?, ?)`,
		s.ID, s.RemoteAddr, s.ConnectedAt.UTC(),
	)
	return err
}

func (j *SQLite) RecordDisconnect(s Session) error {
	res, err := j.db.Exec(`
		UPDATE sessions
		SET disconnected_at = ?, reason = ?, bytes_sent = ?, lines_sent = ?
		WHERE session_id = ?`,
		s.DisconnectedAt.UTC(), s.Reason, s.BytesSent, s.LinesSent, s.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %q not found", s.ID)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
