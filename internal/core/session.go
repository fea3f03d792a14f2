package core

import "time"

// ClientRecord tracks one device across transport reconnects. It is owned
// by the SessionManager and mutated only through its API.
type ClientRecord struct {
	PersistentID string
	ConnID       string
	DisplayName  string
	TeamID       string
	JoinedAt     time.Time
	LastSeenAt   time.Time
	Health       Health
	Connected    bool

	// awaitingPong is set while a host ping is outstanding; a second ping
	// finding it still set counts as a lost sample.
	awaitingPong bool
	pingSentAt   time.Time
}

// Stale reports whether the record has gone quiet for longer than the
// liveness threshold. Stale is presentational; it never evicts by itself.
func (r *ClientRecord) Stale(now time.Time, after time.Duration) bool {
	return now.Sub(r.LastSeenAt) > after
}

// JoinResult describes what OnJoin decided.
type JoinResult struct {
	Record      *ClientRecord
	Reconnected bool
	PrevConnID  string
}

// SessionManager maps ephemeral transport connection ids to persistent
// client identities and runs the disconnect-grace eviction policy.
type SessionManager struct {
	byPersistent map[string]*ClientRecord
	byConn       map[string]string

	// pendingEviction holds disconnect timestamps keyed by persistent id;
	// the periodic sweep evicts entries older than the grace window.
	pendingEviction map[string]time.Time
}

// NewSessionManager returns an empty manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		byPersistent:    make(map[string]*ClientRecord),
		byConn:          make(map[string]string),
		pendingEviction: make(map[string]time.Time),
	}
}

// OnJoin installs or refreshes the identity behind a connection. A known
// persistent id makes this a reconnect: the old connection mapping is
// dropped, the eviction timer cancelled, and last-seen refreshed. Without a
// persistent id the connection id itself becomes the fallback identity.
func (m *SessionManager) OnJoin(connID, persistentID, displayName string, now time.Time) JoinResult {
	if persistentID == "" {
		persistentID = connID
	}

	if rec, ok := m.byPersistent[persistentID]; ok {
		prev := rec.ConnID
		if prev != "" {
			delete(m.byConn, prev)
		}
		rec.ConnID = connID
		rec.Connected = true
		rec.LastSeenAt = now
		rec.awaitingPong = false
		if displayName != "" {
			rec.DisplayName = displayName
		}
		m.byConn[connID] = persistentID
		delete(m.pendingEviction, persistentID)
		return JoinResult{Record: rec, Reconnected: true, PrevConnID: prev}
	}

	rec := &ClientRecord{
		PersistentID: persistentID,
		ConnID:       connID,
		DisplayName:  displayName,
		JoinedAt:     now,
		LastSeenAt:   now,
		Health:       NewHealth(),
		Connected:    true,
	}
	if rec.DisplayName == "" {
		rec.DisplayName = persistentID
	}
	m.byPersistent[persistentID] = rec
	m.byConn[connID] = persistentID
	return JoinResult{Record: rec}
}

// OnLeave removes the record behind an explicit goodbye. The caller decides
// what happens to the team the client was on.
func (m *SessionManager) OnLeave(connID string) (*ClientRecord, bool) {
	pid, ok := m.byConn[connID]
	if !ok {
		return nil, false
	}
	rec := m.byPersistent[pid]
	delete(m.byConn, connID)
	delete(m.byPersistent, pid)
	delete(m.pendingEviction, pid)
	return rec, true
}

// OnDisconnect marks a transport drop. The record survives; a pending
// eviction timestamp starts the grace window.
func (m *SessionManager) OnDisconnect(connID string, now time.Time) (*ClientRecord, bool) {
	pid, ok := m.byConn[connID]
	if !ok {
		return nil, false
	}
	rec := m.byPersistent[pid]
	delete(m.byConn, connID)
	rec.ConnID = ""
	rec.Connected = false
	m.pendingEviction[pid] = now
	return rec, true
}

// SweepEvictions removes records whose grace window has expired.
func (m *SessionManager) SweepEvictions(now time.Time, grace time.Duration) []*ClientRecord {
	var evicted []*ClientRecord
	for pid, since := range m.pendingEviction {
		if now.Sub(since) <= grace {
			continue
		}
		if rec, ok := m.byPersistent[pid]; ok {
			delete(m.byPersistent, pid)
			if rec.ConnID != "" {
				delete(m.byConn, rec.ConnID)
			}
			evicted = append(evicted, rec)
		}
		delete(m.pendingEviction, pid)
	}
	return evicted
}

// Kick removes a record immediately, bypassing the grace window.
func (m *SessionManager) Kick(persistentID string) (*ClientRecord, bool) {
	rec, ok := m.byPersistent[persistentID]
	if !ok {
		return nil, false
	}
	delete(m.byPersistent, persistentID)
	if rec.ConnID != "" {
		delete(m.byConn, rec.ConnID)
	}
	delete(m.pendingEviction, persistentID)
	return rec, true
}

// ByConn resolves a live connection id to its record.
func (m *SessionManager) ByConn(connID string) (*ClientRecord, bool) {
	pid, ok := m.byConn[connID]
	if !ok {
		return nil, false
	}
	rec, ok := m.byPersistent[pid]
	return rec, ok
}

// ByPersistent resolves a persistent id to its record.
func (m *SessionManager) ByPersistent(persistentID string) (*ClientRecord, bool) {
	rec, ok := m.byPersistent[persistentID]
	return rec, ok
}

// Records returns all records, connected or within grace.
func (m *SessionManager) Records() []*ClientRecord {
	out := make([]*ClientRecord, 0, len(m.byPersistent))
	for _, rec := range m.byPersistent {
		out = append(out, rec)
	}
	return out
}

// TeamInUse reports whether any record references the team.
func (m *SessionManager) TeamInUse(teamID string) bool {
	for _, rec := range m.byPersistent {
		if rec.TeamID == teamID {
			return true
		}
	}
	return false
}

// TeamMembers counts records referencing the team.
func (m *SessionManager) TeamMembers(teamID string) int {
	n := 0
	for _, rec := range m.byPersistent {
		if rec.TeamID == teamID {
			n++
		}
	}
	return n
}

// ClearTeam unsets the team reference on every record pointing at teamID.
func (m *SessionManager) ClearTeam(teamID string) []*ClientRecord {
	var cleared []*ClientRecord
	for _, rec := range m.byPersistent {
		if rec.TeamID == teamID {
			rec.TeamID = ""
			cleared = append(cleared, rec)
		}
	}
	return cleared
}
