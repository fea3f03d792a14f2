package core

import "github.com/buzzdeck/buzzdeck-host/internal/proto"

// Notifier receives presentation-layer callbacks from the hub. All calls
// happen on the owner goroutine; implementations must not call back into
// the hub synchronously.
type Notifier interface {
	// RosterChanged fires after any team or membership mutation.
	RosterChanged(teams []proto.TeamInfo)
	// BuzzerPhaseChanged fires on every phase transition.
	BuzzerPhaseChanged(phase Phase, state proto.BuzzerStateData)
	// AnswererChanged fires when the answering team is decided or overridden.
	AnswererChanged(teamID string)
}

// NopNotifier is used when no presentation layer is attached.
type NopNotifier struct{}

func (NopNotifier) RosterChanged([]proto.TeamInfo)                  {}
func (NopNotifier) BuzzerPhaseChanged(Phase, proto.BuzzerStateData) {}
func (NopNotifier) AnswererChanged(string)                          {}
