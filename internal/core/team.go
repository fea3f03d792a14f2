package core

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Team is one scoring unit. The ledger is the sole writer of Score.
type Team struct {
	ID         string
	Name       string
	CreatedAt  time.Time
	LastUsedAt time.Time
	Score      int
}

// Ledger owns team membership counters, scores and lifecycle. It is plain
// data: only the hub goroutine touches it.
type Ledger struct {
	teams map[string]*Team
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{teams: make(map[string]*Team)}
}

// Create always succeeds with a fresh identifier.
func (l *Ledger) Create(name string, now time.Time) *Team {
	t := &Team{
		ID:         uuid.NewString(),
		Name:       name,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	l.teams[t.ID] = t
	return t
}

// Restore reinstates a previously persisted team under its old identifier.
func (l *Ledger) Restore(t Team) *Team {
	copied := t
	l.teams[copied.ID] = &copied
	return &copied
}

// Get looks a team up by id.
func (l *Ledger) Get(id string) (*Team, bool) {
	t, ok := l.teams[id]
	return t, ok
}

// Resolve maps an ambiguous team reference to a team: a known id wins,
// then a display-name match; otherwise the reference attributes to no team.
func (l *Ledger) Resolve(ref string) (*Team, bool) {
	if ref == "" {
		return nil, false
	}
	if t, ok := l.teams[ref]; ok {
		return t, true
	}
	for _, t := range l.Teams() {
		if t.Name == ref {
			return t, true
		}
	}
	return nil, false
}

// Delete removes a team and reports whether it existed.
func (l *Ledger) Delete(id string) (*Team, bool) {
	t, ok := l.teams[id]
	if !ok {
		return nil, false
	}
	delete(l.teams, id)
	return t, true
}

// Touch refreshes a team's last-used timestamp.
func (l *Ledger) Touch(id string, now time.Time) {
	if t, ok := l.teams[id]; ok {
		t.LastUsedAt = now
	}
}

// AdjustScore applies one scoring decision.
func (l *Ledger) AdjustScore(id string, delta int, now time.Time) (*Team, bool) {
	t, ok := l.teams[id]
	if !ok {
		return nil, false
	}
	t.Score += delta
	t.LastUsedAt = now
	return t, true
}

// Leader returns the strict score leader, if one exists. A tie at the top
// means no handicap applies.
func (l *Ledger) Leader() (*Team, bool) {
	var leader *Team
	strict := false
	for _, t := range l.teams {
		switch {
		case leader == nil || t.Score > leader.Score:
			leader = t
			strict = true
		case t.Score == leader.Score:
			strict = false
		}
	}
	if leader == nil || !strict {
		return nil, false
	}
	return leader, true
}

// Sweep removes teams with no members whose last use is older than ttl.
// A team referenced by any client record is never removed.
func (l *Ledger) Sweep(now time.Time, ttl time.Duration, inUse func(teamID string) bool) []*Team {
	var removed []*Team
	for id, t := range l.teams {
		if inUse(id) {
			continue
		}
		if now.Sub(t.LastUsedAt) > ttl {
			delete(l.teams, id)
			removed = append(removed, t)
		}
	}
	return removed
}

// Teams returns all teams ordered by creation time.
func (l *Ledger) Teams() []*Team {
	out := make([]*Team, 0, len(l.teams))
	for _, t := range l.teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len reports the number of teams.
func (l *Ledger) Len() int {
	return len(l.teams)
}
