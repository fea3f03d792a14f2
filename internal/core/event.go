package core

import (
	"time"

	"github.com/buzzdeck/buzzdeck-host/internal/proto"
)

// EventKind describes what the transport observed.
type EventKind int

const (
	// EventPeerConnected reports a fresh transport-level connection.
	EventPeerConnected EventKind = iota
	// EventPeerDisconnected reports the transport dropping a connection.
	// Distinct from an explicit LEAVE message.
	EventPeerDisconnected
	// EventPeerMessage carries one decoded inbound envelope.
	EventPeerMessage
)

// Event is one item of the hub's serialized inbound stream. Everything that
// mutates state arrives as an Event or a Command; nothing else touches the
// hub's fields.
type Event struct {
	Kind     EventKind
	ConnID   string
	Envelope *proto.Envelope
}

// CommandKind describes what the presentation layer wants the hub to do.
type CommandKind int

const (
	// CommandOpenQuestion opens a question and starts a buzzer session.
	CommandOpenQuestion CommandKind = iota
	// CommandCloseQuestion destroys the buzzer session and returns to idle.
	CommandCloseQuestion
	// CommandScoreDecision applies correct/wrong against the answerer.
	CommandScoreDecision
	// CommandSetAnswerer overrides the answerer for the open session.
	CommandSetAnswerer
	// CommandSetNoTeamsMode toggles roster suppression.
	CommandSetNoTeamsMode
	// CommandCreateTeam creates a team from the board UI.
	CommandCreateTeam
	// CommandDeleteTeam removes a team from the board UI.
	CommandDeleteTeam
	// CommandKickClient evicts a client immediately.
	CommandKickClient
	// CommandStartSuperGame begins the final betting round.
	CommandStartSuperGame
)

// Command is a presentation-layer request, serialized into the same owner
// stream as transport events.
type Command struct {
	Kind CommandKind

	Question Question
	Timers   *TimerConfig

	Correct      bool
	Enabled      bool
	TeamID       string
	Name         string
	PersistentID string
	Reason       string
}

// TimerConfig is the per-question timing policy. The zero value of a field
// falls back to the host-wide game configuration.
type TimerConfig struct {
	LetterReadTime    time.Duration
	ResponseWindow    time.Duration
	HandicapEnabled   bool
	HandicapDelay     time.Duration
	ClashWindow       time.Duration
	ClashUnderdogWins bool
}

// Question is the board-side description of the currently open question.
type Question struct {
	ID    string
	Text  string
	Value int
}
