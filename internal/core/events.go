package core

import (
	"encoding/json"
	"time"

	"github.com/classpad/liveclass/internal/domain"
)

// Outbound event names. Clients depend on these strings verbatim.
const (
	EvUserList          = "user-list"
	EvUserJoined        = "user-joined"
	EvUserNameChanged   = "user-name-changed"
	EvUserVoiceActivity = "user-voice-activity"
	EvOffer             = "offer"
	EvAnswer            = "answer"
	EvICECandidate      = "ice-candidate"
	EvUserDisconnected  = "user-disconnected"
	EvModeratorLeft     = "moderator-left"
	EvModeratorReturned = "moderator-returned"
	EvRoomClosed        = "room-closed"
	EvClassEnded        = "class-ended"
	EvError             = "error"
	EvPong              = "pong"
)

// UserEntry is the read-only participant view carried by user-list and
// user-joined (no room field; the receiver already knows its room).
type UserEntry struct {
	SocketID domain.ConnID        `json:"socketId"`
	UserID   domain.ParticipantID `json:"userId"`
	Name     string               `json:"name"`
	Role     domain.Role          `json:"role"`
}

// NameChange is the user-name-changed payload.
type NameChange struct {
	SocketID domain.ConnID `json:"socketId"`
	Name     string        `json:"name"`
}

// VoiceActivity is the user-voice-activity payload.
type VoiceActivity struct {
	SocketID domain.ConnID `json:"socketId"`
	Active   bool          `json:"active"`
}

// SignalEnvelope wraps a relayed offer/answer/ice-candidate. The payload is
// opaque to this service and forwarded verbatim.
type SignalEnvelope struct {
	Payload json.RawMessage `json:"payload"`
	From    string          `json:"from"`
}

// ModeratorLeft is broadcast when the closure countdown starts.
type ModeratorLeft struct {
	Message   string    `json:"message"`
	Countdown int       `json:"countdown"`
	Deadline  time.Time `json:"deadline"`
}

// Notice carries a bare human-readable message (moderator-returned,
// room-closed, class-ended, error).
type Notice struct {
	Message string `json:"message"`
}
