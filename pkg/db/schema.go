package db

import (
	"fmt"
)

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS hosts (
    alias TEXT PRIMARY KEY,
    api_key TEXT NOT NULL,
    secret_key_encrypted TEXT NOT NULL,
    secret_key_version INTEGER DEFAULT 1,
    tg_group TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scheduled_tasks (
    request_id TEXT PRIMARY KEY,
    for_username TEXT NOT NULL,
    token_name TEXT NOT NULL,
    side TEXT NOT NULL,
    monitor_time_secs INTEGER NOT NULL,
    col_id TEXT,
    status INTEGER NOT NULL DEFAULT 0,
    task_type INTEGER NOT NULL DEFAULT 0,
    order_price TEXT NOT NULL DEFAULT '0',
    money TEXT NOT NULL DEFAULT '0',
    quantity TEXT NOT NULL DEFAULT '0',
    created_time DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_begin_time DATETIME,
    last_end_time DATETIME
);

CREATE TABLE IF NOT EXISTS chat_cache (
    name TEXT PRIMARY KEY,
    chat_id TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
