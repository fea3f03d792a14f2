package proto

import "encoding/json"

// Class is the reliability class of a message. Each class has a fixed
// delivery policy applied by the router:
//
//	state   — direct channel, relay fallback when the direct channel is down
//	event   — direct channel, sent once, droppable
//	sync    — periodic snapshot, droppable (next tick resends)
//	control — direct channel only; a missing response is a connectivity signal
type Class string

const (
	ClassState   Class = "state"
	ClassEvent   Class = "event"
	ClassSync    Class = "sync"
	ClassControl Class = "control"
)

// Message types crossing the host/client boundary.
const (
	TypeJoin      = "JOIN"
	TypeReconnect = "RECONNECT"
	TypeLeave     = "LEAVE"

	TypeGetTeams          = "GET_TEAMS"
	TypeTeamList          = "TEAM_LIST"
	TypeTeamStateRequest  = "TEAM_STATE_REQUEST"
	TypeTeamStateResponse = "TEAM_STATE_RESPONSE"
	TypeCreateTeam        = "CREATE_TEAM"
	TypeJoinTeam          = "JOIN_TEAM"
	TypeTeamDeleted       = "TEAM_DELETED"

	TypePing           = "PING"
	TypePong           = "PONG"
	TypeHealthCheck    = "HEALTH_CHECK"
	TypeHealthResponse = "HEALTH_RESPONSE"

	TypeBuzz        = "BUZZ"
	TypeBuzzAck     = "BUZZ_ACK"
	TypeBuzzerState = "BUZZER_STATE"

	TypeSuperGameBet        = "SUPER_GAME_BET"
	TypeSuperGameTeamAnswer = "SUPER_GAME_TEAM_ANSWER"
	TypeSuperGameStateSync  = "SUPER_GAME_STATE_SYNC"

	TypeKickClient = "KICK_CLIENT"
	TypeClearCache = "CLEAR_CACHE"
)

var classByType = map[string]Class{
	TypeJoin:      ClassControl,
	TypeReconnect: ClassControl,
	TypeLeave:     ClassControl,

	TypeGetTeams:          ClassState,
	TypeTeamList:          ClassState,
	TypeTeamStateRequest:  ClassState,
	TypeTeamStateResponse: ClassState,
	TypeCreateTeam:        ClassState,
	TypeJoinTeam:          ClassState,
	TypeTeamDeleted:       ClassState,

	TypePing:           ClassControl,
	TypePong:           ClassControl,
	TypeHealthCheck:    ClassControl,
	TypeHealthResponse: ClassControl,

	TypeBuzz:        ClassEvent,
	TypeBuzzAck:     ClassEvent,
	TypeBuzzerState: ClassState,

	TypeSuperGameBet:        ClassEvent,
	TypeSuperGameTeamAnswer: ClassEvent,
	TypeSuperGameStateSync:  ClassSync,

	TypeKickClient: ClassControl,
	TypeClearCache: ClassControl,
}

// ClassOf returns the reliability class for a message type. Unknown types
// are treated as droppable events.
func ClassOf(msgType string) Class {
	if c, ok := classByType[msgType]; ok {
		return c
	}
	return ClassEvent
}

// Envelope is the JSON wire frame for every message in either direction.
// Data is left raw so the router never interprets payloads.
type Envelope struct {
	Class  Class           `json:"class,omitempty"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data,omitempty"`
	Sender string          `json:"sender,omitempty"`
}

// NewEnvelope marshals payload and tags the envelope with the class
// registered for msgType.
func NewEnvelope(msgType string, payload any) (*Envelope, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return &Envelope{Class: ClassOf(msgType), Type: msgType, Data: data}, nil
}

// JoinData introduces a device to the host. PersistentID is chosen and
// cached by the client; it survives reconnects while the transport-level
// connection id does not.
type JoinData struct {
	PersistentID string `json:"persistent_id,omitempty"`
	DisplayName  string `json:"display_name"`
	TeamID       string `json:"team_id,omitempty"`
}

// LeaveData is an explicit goodbye, distinct from a transport drop.
type LeaveData struct {
	Reason string `json:"reason,omitempty"`
}

// CreateTeamData asks the host to create a team.
type CreateTeamData struct {
	Name string `json:"name"`
}

// JoinTeamData moves the sender onto a team.
type JoinTeamData struct {
	TeamID string `json:"team_id"`
}

// TeamInfo is one roster entry.
type TeamInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Members int    `json:"members"`
}

// TeamListData is the full roster broadcast.
type TeamListData struct {
	Teams []TeamInfo `json:"teams"`
}

// TeamDeletedData is sent before the refreshed roster so clients can tell
// "my team vanished" apart from an ordinary roster change.
type TeamDeletedData struct {
	TeamID string `json:"team_id"`
	Name   string `json:"name"`
}

// TeamStateData answers a TEAM_STATE_REQUEST with the requester's own
// placement alongside the roster.
type TeamStateData struct {
	Teams  []TeamInfo `json:"teams"`
	TeamID string     `json:"team_id,omitempty"`
}

// PingData carries the host's send timestamp; clients echo it back in PONG
// so the host can compute a round trip without trusting client clocks.
type PingData struct {
	SentAtMs int64 `json:"sent_at_ms"`
}

// PongData echoes PingData.
type PongData struct {
	SentAtMs int64 `json:"sent_at_ms"`
}

// HealthData reports the host's view of one client's connection quality.
type HealthData struct {
	LastRttMs   int64 `json:"last_rtt_ms"`
	HealthScore int   `json:"health_score"`
	Stale       bool  `json:"stale"`
}

// BuzzData is a buzzer press. Team may be a team id or, from older clients,
// a team display name; the host resolves id first, then name.
type BuzzData struct {
	Team string `json:"team"`
}

// BuzzAckData tells the pressing client whether its buzz was recognized as
// the answering buzz for the open question.
type BuzzAckData struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// BuzzerStateData is the phase broadcast clients resynchronize from; they
// never run timers of their own.
type BuzzerStateData struct {
	Phase               string `json:"phase"`
	Generation          string `json:"generation"`
	ReadingRemainingMs  int64  `json:"reading_remaining_ms"`
	ResponseRemainingMs int64  `json:"response_remaining_ms"`
	HandicapTeamID      string `json:"handicap_team_id,omitempty"`
	FirstBuzzTeamID     string `json:"first_buzz_team_id,omitempty"`
}

// SuperGameBetData places a final-round bet for the sender's team.
type SuperGameBetData struct {
	Bet int `json:"bet"`
}

// SuperGameAnswerData submits a final-round answer for the sender's team.
type SuperGameAnswerData struct {
	Answer string `json:"answer"`
}

// SuperGameEntry is one team's final-round standing.
type SuperGameEntry struct {
	TeamID   string `json:"team_id"`
	Bet      int    `json:"bet"`
	Answer   string `json:"answer,omitempty"`
	Answered bool   `json:"answered"`
}

// SuperGameStateData is the periodic final-round snapshot.
type SuperGameStateData struct {
	Entries []SuperGameEntry `json:"entries"`
}

// KickData tells a client it was removed by the host.
type KickData struct {
	Reason string `json:"reason,omitempty"`
}
