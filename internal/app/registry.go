package app

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/classpad/liveclass/internal/domain"
)

// Registry holds the authoritative in-memory membership set per room.
// Updated synchronously with connect/disconnect; presence rows may lag
// behind it, never the other way around.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.ConnID]struct{}
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]map[domain.ConnID]struct{})}
}

// Join adds the handle, creating the room implicitly on first join.
func (r *Registry) Join(room domain.RoomID, conn domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[room]
	if !ok {
		set = make(map[domain.ConnID]struct{})
		r.rooms[room] = set
	}
	set[conn] = struct{}{}
	log.Info().Str("module", "app.registry").Str("room", string(room)).Str("conn", string(conn)).Msg("joined room")
}

// Leave removes the handle and returns the remaining member count. The room
// entry is deleted once its set becomes empty.
func (r *Registry) Leave(room domain.RoomID, conn domain.ConnID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.rooms[room]
	if !ok {
		return 0
	}
	delete(set, conn)
	remaining := len(set)
	if remaining == 0 {
		delete(r.rooms, room)
	}
	log.Info().Str("module", "app.registry").Str("room", string(room)).Str("conn", string(conn)).Int("remaining", remaining).Msg("left room")
	return remaining
}

// Members returns a snapshot of the room's handles (empty if absent).
func (r *Registry) Members(room domain.RoomID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.rooms[room])
}

func (r *Registry) Count(room domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// RoomsContaining returns every room the handle belongs to. Normal flow
// keeps this to one room, but a handle is not restricted to it.
func (r *Registry) RoomsContaining(conn domain.ConnID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RoomID, 0, 1)
	for room, set := range r.rooms {
		if _, ok := set[conn]; ok {
			out = append(out, room)
		}
	}
	return out
}

// ForEachRoomContaining runs fn for every room the handle belongs to. The
// snapshot is taken up front so fn may mutate the registry.
func (r *Registry) ForEachRoomContaining(conn domain.ConnID, fn func(room domain.RoomID)) {
	for _, room := range r.RoomsContaining(conn) {
		fn(room)
	}
}

// Drop removes the room entry regardless of membership; idempotent.
func (r *Registry) Drop(room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, room)
}

func (r *Registry) List() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for room, set := range r.rooms {
		out = append(out, RoomInfo{ID: room, MemberCount: len(set)})
	}
	return out
}
