package storage

import (
	"database/sql"
	"fmt"
)

var migrations = []string{
	// Migration 1: switch history
	`CREATE TABLE IF NOT EXISTS switch_history (
		id            TEXT PRIMARY KEY,
		from_strategy TEXT NOT NULL DEFAULT '',
		to_strategy   TEXT NOT NULL,
		outcome       TEXT NOT NULL CHECK(outcome IN ('succeeded', 'failed', 'diverged')),
		stage         TEXT NOT NULL,
		error         TEXT NOT NULL DEFAULT '',
		automatic     INTEGER NOT NULL DEFAULT 0,
		timestamp     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_switch_to ON switch_history(to_strategy);
	CREATE INDEX IF NOT EXISTS idx_switch_timestamp ON switch_history(timestamp);`,

	// Migration 2: alert history
	`CREATE TABLE IF NOT EXISTS alert_history (
		id        TEXT PRIMARY KEY,
		provider  TEXT NOT NULL,
		level     TEXT NOT NULL,
		used_pct  REAL NOT NULL DEFAULT 0.0,
		message   TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_alert_provider ON alert_history(provider);
	CREATE INDEX IF NOT EXISTS idx_alert_timestamp ON alert_history(timestamp);`,
}

// runMigrations applies pending schema migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
