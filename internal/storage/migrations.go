package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS instruments (
					id TEXT PRIMARY KEY,
					wallet_id TEXT NOT NULL,
					name TEXT NOT NULL DEFAULT '',
					account_id TEXT,
					base_multiplier TEXT NOT NULL,
					point_value TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_instruments_wallet ON instruments(wallet_id)`,
				`CREATE UNIQUE INDEX idx_instruments_account ON instruments(account_id) WHERE account_id IS NOT NULL`,

				`CREATE TABLE IF NOT EXISTS reward_rules (
					id TEXT PRIMARY KEY,
					instrument_id TEXT NOT NULL,
					category TEXT NOT NULL,
					multiplier TEXT NOT NULL,
					position INTEGER NOT NULL,
					FOREIGN KEY (instrument_id) REFERENCES instruments(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_reward_rules_instrument ON reward_rules(instrument_id, position)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					wallet_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					merchant_name TEXT NOT NULL DEFAULT '',
					amount_cents INTEGER NOT NULL,
					instrument_used_id TEXT,
					category TEXT,
					category_source TEXT NOT NULL DEFAULT '',
					category_confidence REAL NOT NULL DEFAULT 0,
					category_reason TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_wallet_date ON transactions(wallet_id, date)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add estimation columns to transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`ALTER TABLE transactions ADD COLUMN earned_points INTEGER`,
				`ALTER TABLE transactions ADD COLUMN earned_value_cents INTEGER`,
				`ALTER TABLE transactions ADD COLUMN best_instrument_id TEXT`,
				`ALTER TABLE transactions ADD COLUMN missed_value_cents INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE transactions ADD COLUMN estimated_at DATETIME`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add job records",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS jobs (
					id TEXT PRIMARY KEY,
					kind TEXT NOT NULL,
					status TEXT NOT NULL,
					progress INTEGER NOT NULL DEFAULT 0,
					last_error TEXT NOT NULL DEFAULT '',
					started_at DATETIME NOT NULL,
					finished_at DATETIME
				)`,
				`CREATE INDEX idx_jobs_started ON jobs(started_at)`,
			})
		},
	},
	{
		Version:     4,
		Description: "Add categorizer status history",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS categorizer_status (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					mode TEXT NOT NULL,
					remote_mode TEXT NOT NULL DEFAULT '',
					reachable INTEGER NOT NULL DEFAULT 0,
					last_success DATETIME,
					last_failure DATETIME,
					last_error TEXT NOT NULL DEFAULT '',
					checked_at DATETIME NOT NULL
				)`,
			})
		},
	},
}

// SchemaVersion returns the current PRAGMA user_version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
