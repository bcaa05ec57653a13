// journal/schema.go
package journal

const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	remote_addr TEXT NOT NULL,
	connected_at DATETIME NOT NULL,
	disconnected_at DATETIME,
	reason TEXT NOT NULL DEFAULT '',
	bytes_sent INTEGER NOT NULL DEFAULT 0,
	lines_sent INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_connected_at ON sessions(connected_at);
`
