package core

// Error codes attached to protocol-visible failures in log output. Protocol
// errors never crash the owner loop; the offending message is logged with
// its code and dropped.
const (
	ErrCodeUnknownType   = "unknown_message_type"
	ErrCodeBadPayload    = "bad_payload"
	ErrCodeUnknownPeer   = "unknown_peer"
	ErrCodeUnknownTeam   = "unknown_team"
	ErrCodeNoOpenSession = "no_open_session"
)
