package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Keep in sync with repo/postgres/schema.go.
const schema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    date DATETIME NOT NULL,
    location TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    organizer TEXT NOT NULL DEFAULT '',
    code TEXT NOT NULL,
    completed INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS events_code_uniq ON events(code);

CREATE TABLE IF NOT EXISTS attendees (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    linkedin_url TEXT NOT NULL DEFAULT '',
    registered_at DATETIME NOT NULL
);

-- one registration per address per event; anonymous attendees are exempt
CREATE UNIQUE INDEX IF NOT EXISTS attendees_event_email_uniq
    ON attendees(event_id, email) WHERE email <> '';

CREATE INDEX IF NOT EXISTS idx_attendees_event_id
    ON attendees(event_id, registered_at);
`

func initSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}
