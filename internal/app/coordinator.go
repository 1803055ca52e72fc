package app

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/classpad/liveclass/internal/core"
	"github.com/classpad/liveclass/internal/domain"
)

// Coordinator orchestrates registry, presence, lifecycle and relay per
// inbound connection event. Mutations are serialized per room through a
// keyed lock; rooms stay independent of each other.
type Coordinator struct {
	Registry  *Registry
	Presence  core.PresenceStore
	Lifecycle *Lifecycle
	Relay     *Relay

	gateway core.Gateway

	mu        sync.Mutex
	roomLocks map[domain.RoomID]*sync.Mutex
}

func NewCoordinator(gw core.Gateway, presence core.PresenceStore, records core.ClassRecords, grace time.Duration) *Coordinator {
	c := &Coordinator{
		Registry:  NewRegistry(),
		Presence:  presence,
		Relay:     NewRelay(gw),
		gateway:   gw,
		roomLocks: make(map[domain.RoomID]*sync.Mutex),
	}
	c.Lifecycle = NewLifecycle(grace, gw, records, c.teardownRoom)
	return c
}

func (c *Coordinator) lockRoom(room domain.RoomID) func() {
	c.mu.Lock()
	m, ok := c.roomLocks[room]
	if !ok {
		m = &sync.Mutex{}
		c.roomLocks[room] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (c *Coordinator) teardownRoom(room domain.RoomID) {
	c.Registry.Drop(room)
	c.mu.Lock()
	delete(c.roomLocks, room)
	c.mu.Unlock()
}

// Join registers the connection in the room, upserts presence, drives the
// moderator lifecycle, hands the joiner the current user list and announces
// the join to everyone else.
func (c *Coordinator) Join(userID domain.ParticipantID, conn domain.ConnID, name string, room domain.RoomID, role domain.Role) {
	unlock := c.lockRoom(room)
	defer unlock()

	c.Registry.Join(room, conn)

	p, err := domain.NewParticipant(userID, conn, name, room, role)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("conn", string(conn)).Msg("join rejected")
		c.gateway.SendTo(conn, core.EvError, core.Notice{Message: err.Error()})
		return
	}
	if err := c.Presence.Upsert(p); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("conn", string(conn)).Msg("presence upsert failed")
		c.gateway.SendTo(conn, core.EvError, core.Notice{Message: "internal error"})
		return
	}

	if role == domain.RoleModerator {
		c.Lifecycle.ModeratorJoined(room, conn)
	}

	others := lo.Without(c.Registry.Members(room), conn)
	records, err := c.Presence.List(others)
	if err != nil {
		// Registry stays authoritative; the joiner just gets an empty list.
		log.Error().Err(err).Str("module", "app.coordinator").Str("room", string(room)).Msg("presence list failed")
		records = nil
	}
	entries := lo.Map(records, func(r domain.Participant, _ int) core.UserEntry {
		return core.UserEntry{SocketID: r.Conn, UserID: r.ID, Name: r.Name, Role: r.Role}
	})
	c.gateway.SendTo(conn, core.EvUserList, entries)

	c.gateway.Broadcast(room, core.EvUserJoined, core.UserEntry{
		SocketID: conn, UserID: userID, Name: name, Role: role,
	}, conn)
}

// Rename updates the display name and announces it to the rest of the room.
// An unknown handle is a benign no-op.
func (c *Coordinator) Rename(conn domain.ConnID, room domain.RoomID, name string) {
	unlock := c.lockRoom(room)
	defer unlock()

	if _, err := c.Presence.Get(conn); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Error().Err(err).Str("module", "app.coordinator").Str("conn", string(conn)).Msg("presence get failed")
			c.gateway.SendTo(conn, core.EvError, core.Notice{Message: "internal error"})
		}
		return
	}
	if err := c.Presence.Rename(conn, name); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("conn", string(conn)).Msg("presence rename failed")
		c.gateway.SendTo(conn, core.EvError, core.Notice{Message: "internal error"})
		return
	}
	c.gateway.Broadcast(room, core.EvUserNameChanged, core.NameChange{SocketID: conn, Name: name}, conn)
}

// VoiceActivity is a pure broadcast; no state is kept.
func (c *Coordinator) VoiceActivity(conn domain.ConnID, room domain.RoomID, active bool) {
	c.gateway.Broadcast(room, core.EvUserVoiceActivity, core.VoiceActivity{SocketID: conn, Active: active}, conn)
}

// Signal forwards an offer/answer/ice-candidate to one target handle.
func (c *Coordinator) Signal(kind string, payload json.RawMessage, from string, to domain.ConnID) {
	c.Relay.Relay(kind, payload, from, to)
}

// Disconnect removes the connection everywhere: presence row, membership in
// every room containing it, and the moderator lifecycle when the departing
// handle was the tracked moderator.
func (c *Coordinator) Disconnect(conn domain.ConnID) {
	// Role/room context is only display metadata here; a missing row is fine.
	p, err := c.Presence.Get(conn)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Str("module", "app.coordinator").Str("conn", string(conn)).Msg("presence get on disconnect")
	}
	if p != nil {
		log.Info().Str("module", "app.coordinator").Str("conn", string(conn)).
			Str("user", string(p.ID)).Str("role", string(p.Role)).Msg("disconnect")
	}
	if err := c.Presence.Remove(conn); err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("conn", string(conn)).Msg("presence remove failed")
	}

	c.Registry.ForEachRoomContaining(conn, func(room domain.RoomID) {
		unlock := c.lockRoom(room)
		defer unlock()

		remaining := c.Registry.Leave(room, conn)
		c.gateway.Broadcast(room, core.EvUserDisconnected, conn, conn)
		c.Lifecycle.ModeratorLeft(room, conn, remaining)
		if remaining == 0 {
			// Idempotent even when the lifecycle transition already tore down.
			c.Lifecycle.Teardown(room)
			c.teardownRoom(room)
		}
	})
}

// CloseRoom is the explicit end-class action: announce class-ended, cancel
// any pending closure and tear the room down immediately.
func (c *Coordinator) CloseRoom(room domain.RoomID) {
	unlock := c.lockRoom(room)
	defer unlock()
	c.Lifecycle.CloseNow(room)
}
