package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			health TEXT NOT NULL,
			ds_power_avg REAL,
			us_power_avg REAL,
			ds_uncorrectable INTEGER NOT NULL DEFAULT 0,
			ds_channel_count INTEGER NOT NULL,
			us_channel_count INTEGER NOT NULL,
			payload_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS watchdog_events (
			id TEXT PRIMARY KEY,
			ts DATETIME NOT NULL,
			event_type TEXT NOT NULL,
			channel_id INTEGER,
			direction TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			details_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_watchdog_events_ts ON watchdog_events(ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_watchdog_events_type_ts ON watchdog_events(event_type, ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return nil
}
