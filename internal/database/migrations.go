package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS profiles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    email TEXT UNIQUE NOT NULL,
    display_name TEXT,
    timezone TEXT NOT NULL DEFAULT 'America/Los_Angeles',
    scan_hour INTEGER NOT NULL DEFAULT 8,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS connections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES profiles(id),
    provider TEXT NOT NULL DEFAULT 'gmail',
    email_address TEXT NOT NULL,
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL DEFAULT '',
    is_active INTEGER NOT NULL DEFAULT 1,
    last_sync_at TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE (user_id, email_address)
);

CREATE TABLE IF NOT EXISTS processed_emails (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES profiles(id),
    connection_id INTEGER NOT NULL REFERENCES connections(id),
    external_id TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    sender TEXT NOT NULL DEFAULT '',
    received_at TEXT NOT NULL,
    processed_at TEXT DEFAULT (datetime('now')),
    is_actionable INTEGER NOT NULL DEFAULT 0,
    raw_content TEXT,
    UNIQUE (connection_id, external_id)
);

CREATE TABLE IF NOT EXISTS action_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES profiles(id),
    email_id INTEGER NOT NULL REFERENCES processed_emails(id),
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    sender_name TEXT NOT NULL DEFAULT '',
    sender_email TEXT NOT NULL DEFAULT '',
    deadline TEXT,
    deadline_source TEXT NOT NULL DEFAULT 'none'
        CHECK(deadline_source IN ('explicit', 'inferred', 'none')),
    priority TEXT NOT NULL DEFAULT 'medium'
        CHECK(priority IN ('high', 'medium', 'low')),
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK(status IN ('pending', 'completed', 'dismissed', 'snoozed')),
    snoozed_until TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS daily_briefings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES profiles(id),
    briefing_date TEXT NOT NULL,
    summary TEXT NOT NULL,
    action_count INTEGER NOT NULL DEFAULT 0,
    generated_at TEXT DEFAULT (datetime('now')),
    UNIQUE (user_id, briefing_date)
);

CREATE TABLE IF NOT EXISTS scheduled_scans (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES profiles(id),
    connection_id INTEGER NOT NULL REFERENCES connections(id),
    scheduled_for TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending'
        CHECK(status IN ('pending', 'completed', 'failed')),
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_connections_user ON connections(user_id);
CREATE INDEX IF NOT EXISTS idx_processed_connection ON processed_emails(connection_id);
CREATE INDEX IF NOT EXISTS idx_actions_user_status ON action_items(user_id, status);
CREATE INDEX IF NOT EXISTS idx_actions_email ON action_items(email_id);
CREATE INDEX IF NOT EXISTS idx_briefings_user_date ON daily_briefings(user_id, briefing_date);
CREATE INDEX IF NOT EXISTS idx_scans_status_due ON scheduled_scans(status, scheduled_for);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
