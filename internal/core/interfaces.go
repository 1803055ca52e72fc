// Package core defines the capability interfaces the coordinator is wired
// with. Adapters own transport resources; stores own persistence.
package core

import "github.com/classpad/liveclass/internal/domain"

// Gateway delivers outbound notices. Sends are fire-and-forget: delivery to a
// disconnected or slow target is dropped, never retried or blocked on.
type Gateway interface {
	// SendTo unicasts an event to one connection. Unknown handles are a no-op.
	SendTo(conn domain.ConnID, event string, payload any)
	// Broadcast fans an event out to every connection in a room, optionally
	// excluding one handle (pass "" to exclude nobody).
	Broadcast(room domain.RoomID, event string, payload any, except domain.ConnID)
}

// PresenceStore is the durable connection -> participant mapping. It is only
// consulted for display metadata; the room registry stays authoritative for
// membership.
type PresenceStore interface {
	// Upsert evicts any record keyed by the same connection handle or the
	// same participant id, then inserts the new record.
	Upsert(p *domain.Participant) error
	Get(conn domain.ConnID) (*domain.Participant, error)
	// Rename succeeds silently when the handle has no record.
	Rename(conn domain.ConnID, name string) error
	// Remove is idempotent.
	Remove(conn domain.ConnID) error
	// List resolves handles to records, silently dropping unresolvable ones.
	List(conns []domain.ConnID) ([]domain.Participant, error)
}

// ClassRecords is the persisted class-status collaborator.
type ClassRecords interface {
	MarkLive(code domain.RoomID) error
	MarkEnded(code domain.RoomID) error
	Get(code domain.RoomID) (*domain.Class, error)
}
