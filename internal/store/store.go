package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nmarkou/crewd/internal/config"
	"github.com/nmarkou/crewd/internal/vault"
	_ "modernc.org/sqlite"
)

type Store struct {
	db    *sql.DB
	vault *vault.Vault
}

// New opens the SQLite store and runs migrations. The vault is optional;
// when present, session snapshots are sealed at rest.
func New(cfg config.StoreConfig, v *vault.Vault) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db, vault: v}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS teams (
			id                    TEXT PRIMARY KEY,
			name                  TEXT NOT NULL,
			project_path          TEXT NOT NULL,
			created_at            DATETIME NOT NULL,
			created_by            TEXT NOT NULL DEFAULT 'user',
			status                TEXT NOT NULL DEFAULT 'active',
			last_active           DATETIME NOT NULL,
			auto_recovery         BOOLEAN NOT NULL DEFAULT TRUE,
			max_recovery_attempts INTEGER NOT NULL DEFAULT 3,
			recovery_delay_ms     INTEGER NOT NULL DEFAULT 5000,
			tags                  TEXT NOT NULL DEFAULT '[]',
			active_specs          TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_teams_project_name ON teams(project_path, name)`,
		`CREATE TABLE IF NOT EXISTS members (
			id                TEXT PRIMARY KEY,
			team_id           TEXT NOT NULL REFERENCES teams(id),
			role              TEXT NOT NULL,
			specialty         TEXT NOT NULL DEFAULT '',
			agent_type        TEXT NOT NULL,
			orchestrator      BOOLEAN NOT NULL DEFAULT FALSE,
			status            TEXT NOT NULL DEFAULT 'idle',
			terminal_id       TEXT NOT NULL DEFAULT '',
			claude_session_id TEXT NOT NULL DEFAULT '',
			current_task_id   TEXT NOT NULL DEFAULT '',
			current_spec_id   TEXT NOT NULL DEFAULT '',
			task_phase        TEXT NOT NULL DEFAULT '',
			task_progress     INTEGER NOT NULL DEFAULT 0,
			completed_steps   TEXT NOT NULL DEFAULT '[]',
			artifacts         TEXT NOT NULL DEFAULT '[]',
			failure_count     INTEGER NOT NULL DEFAULT 0,
			last_failure      TEXT NOT NULL DEFAULT '',
			last_failure_at   DATETIME,
			recovered_from    TEXT NOT NULL DEFAULT '',
			last_heartbeat    DATETIME,
			created_at        DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_members_team ON members(team_id)`,
		`CREATE TABLE IF NOT EXISTS recovery_events (
			id                    TEXT PRIMARY KEY,
			team_id               TEXT NOT NULL REFERENCES teams(id),
			timestamp             DATETIME NOT NULL,
			failed_member_id      TEXT NOT NULL,
			failed_member_role    TEXT NOT NULL,
			replacement_member_id TEXT NOT NULL DEFAULT '',
			reason                TEXT NOT NULL,
			spec_id               TEXT NOT NULL DEFAULT '',
			task_id               TEXT NOT NULL DEFAULT '',
			context               TEXT NOT NULL DEFAULT '',
			success               BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recovery_team ON recovery_events(team_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS session_snapshots (
			team_id  TEXT PRIMARY KEY REFERENCES teams(id),
			saved_at DATETIME NOT NULL,
			sealed   BOOLEAN NOT NULL DEFAULT FALSE,
			data     BLOB NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
