package journal

import (
	"database/sql"
	"errors"
	"fmt"
)

const sessionColumns = `session_id, remote_addr, connected_at, disconnected_at, reason, bytes_sent, lines_sent`

// GetSession returns a single session by ID.
func (j *SQLite) GetSession(id string) (Session, error) {
	row := j.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)

	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, fmt.Errorf("session %q not found", id)
		}
		return Session{}, err
	}
	return s, nil
}

// ListSessions returns the most recent sessions first. limit <= 0 means all.
func (j *SQLite) ListSessions(limit int, openOnly bool) ([]Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions`
	if openOnly {
		q += ` WHERE disconnected_at IS NULL`
	}
	q += ` ORDER BY connected_at DESC, session_id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Session, error) {
	var (
		s   Session
		end sql.NullTime
	)
	if err := r.Scan(
		&s.ID,
		&s.RemoteAddr,
		&s.ConnectedAt,
		&end,
		&s.Reason,
		&s.BytesSent,
		&s.LinesSent,
	); err != nil {
		return Session{}, err
	}
	if end.Valid {
		s.DisconnectedAt = end.Time
	}
	return s, nil
}
