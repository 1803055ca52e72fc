package domain

import "time"

// RoomID is the live-class access code a room is scoped by.
type RoomID string

// Phase is the moderator lifecycle phase of a room.
type Phase int

const (
	// NoModerator: the room has members but no moderator ever joined.
	NoModerator Phase = iota
	// ModeratorPresent: a moderator connection is tracked for the room.
	ModeratorPresent
	// ModeratorAbsentPending: the moderator disconnected; the room closes
	// when the grace deadline passes unless a moderator rejoins.
	ModeratorAbsentPending
)

func (p Phase) String() string {
	switch p {
	case ModeratorPresent:
		return "moderator_present"
	case ModeratorAbsentPending:
		return "moderator_absent_pending_close"
	default:
		return "no_moderator"
	}
}

// ClassStatus is the persisted status of a class record.
type ClassStatus string

const (
	ClassScheduled ClassStatus = "scheduled"
	ClassLive      ClassStatus = "live"
	ClassEnded     ClassStatus = "ended"
)

// Class is the persisted record behind a room's access code.
type Class struct {
	AccessCode RoomID      `json:"accessCode"`
	Status     ClassStatus `json:"status"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}
