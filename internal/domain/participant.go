// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxNameLen = 64

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
)

// ParticipantID identifies a person; stable across reconnects.
type ParticipantID string

// ConnID identifies one live transport connection, unique until disconnect.
type ConnID string

type Role string

const (
	RoleStudent   Role = "student"
	RoleModerator Role = "moderator"
)

func ParseRole(s string) Role {
	if s == string(RoleModerator) {
		return RoleModerator
	}
	return RoleStudent
}

// Participant is the presence record for one live connection.
type Participant struct {
	ID   ParticipantID `json:"userId"`
	Conn ConnID        `json:"socketId"`
	Name string        `json:"name"`
	Room RoomID        `json:"roomId"`
	Role Role          `json:"role"`
}

// NewParticipant keeps construction obvious and validates the display name.
func NewParticipant(id ParticipantID, conn ConnID, name string, room RoomID, role Role) (*Participant, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Participant{ID: id, Conn: conn, Name: name, Room: room, Role: role}, nil
}

func (p *Participant) SetName(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	p.Name = name
	return nil
}

func validateName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	return nil
}
