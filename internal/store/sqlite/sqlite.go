package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/buzzdeck/buzzdeck-host/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS teams (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	score        INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	last_used_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS clients (
	persistent_id TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL,
	team_id       TEXT NOT NULL DEFAULT '',
	joined_at     DATETIME NOT NULL,
	last_seen_at  DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS game_log (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	at      DATETIME NOT NULL,
	team_id TEXT NOT NULL DEFAULT '',
	kind    TEXT NOT NULL,
	detail  TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file (":memory:" for tests).
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTeam upserts a team row.
func (s *SQLiteStore) SaveTeam(ctx context.Context, t store.TeamRecord) error {
	query := `
		INSERT INTO teams (id, name, score, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			score = excluded.score,
			last_used_at = excluded.last_used_at
	`
	if _, err := s.db.ExecContext(ctx, query, t.ID, t.Name, t.Score, t.CreatedAt, t.LastUsedAt); err != nil {
		return fmt.Errorf("save team: %w", err)
	}
	return nil
}

// DeleteTeam removes a team row and clears references from clients.
func (s *SQLiteStore) DeleteTeam(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE clients SET team_id = '' WHERE team_id = ?`, id); err != nil {
		return fmt.Errorf("clear team refs: %w", err)
	}
	return nil
}

// LoadTeams returns all persisted teams, oldest first.
func (s *SQLiteStore) LoadTeams(ctx context.Context) ([]store.TeamRecord, error) {
	query := `
		SELECT id, name, score, created_at, last_used_at
		FROM teams
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	defer rows.Close()

	var teams []store.TeamRecord
	for rows.Next() {
		var t store.TeamRecord
		if err := rows.Scan(&t.ID, &t.Name, &t.Score, &t.CreatedAt, &t.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return teams, nil
}

// SaveClient upserts a client identity row.
func (s *SQLiteStore) SaveClient(ctx context.Context, c store.ClientRecord) error {
	query := `
		INSERT INTO clients (persistent_id, display_name, team_id, joined_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(persistent_id) DO UPDATE SET
			display_name = excluded.display_name,
			team_id = excluded.team_id,
			last_seen_at = excluded.last_seen_at
	`
	if _, err := s.db.ExecContext(ctx, query, c.PersistentID, c.DisplayName, c.TeamID, c.JoinedAt, c.LastSeenAt); err != nil {
		return fmt.Errorf("save client: %w", err)
	}
	return nil
}

// DeleteClient removes a client identity row.
func (s *SQLiteStore) DeleteClient(ctx context.Context, persistentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE persistent_id = ?`, persistentID); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return nil
}

// AppendGameLog adds one game history line.
func (s *SQLiteStore) AppendGameLog(ctx context.Context, e store.GameLogEntry) error {
	query := `INSERT INTO game_log (at, team_id, kind, detail) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, e.At, e.TeamID, e.Kind, e.Detail); err != nil {
		return fmt.Errorf("append game log: %w", err)
	}
	return nil
}
