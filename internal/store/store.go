package store

import (
	"context"
	"time"
)

// TeamRecord is the persisted shape of a team.
type TeamRecord struct {
	ID         string
	Name       string
	Score      int
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// ClientRecord is the persisted shape of a client identity.
type ClientRecord struct {
	PersistentID string
	DisplayName  string
	TeamID       string
	JoinedAt     time.Time
	LastSeenAt   time.Time
}

// GameLogEntry is one durable line of game history: a buzz that won a
// question, a score decision, a super-game bet.
type GameLogEntry struct {
	At     time.Time
	TeamID string
	Kind   string
	Detail string
}

// Store is the best-effort write-through persistence collaborator. The hub
// calls it after every team or client mutation; failures are logged by the
// caller and never propagate into game state.
type Store interface {
	SaveTeam(ctx context.Context, t TeamRecord) error
	DeleteTeam(ctx context.Context, id string) error
	LoadTeams(ctx context.Context) ([]TeamRecord, error)

	SaveClient(ctx context.Context, c ClientRecord) error
	DeleteClient(ctx context.Context, persistentID string) error

	AppendGameLog(ctx context.Context, e GameLogEntry) error

	Close() error
}
