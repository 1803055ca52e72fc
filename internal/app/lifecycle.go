package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/classpad/liveclass/internal/core"
	"github.com/classpad/liveclass/internal/domain"
)

// modState is the per-room moderator lifecycle state. The pending-closure
// timer lives inside the ModeratorAbsentPending variant so cancellation and
// the phase transition happen under one lock.
type modState struct {
	phase    domain.Phase
	mod      domain.ConnID
	timer    *time.Timer
	deadline time.Time
	// gen guards the timer against firing after a cancel: the expiry
	// callback only acts if its generation still matches.
	gen uint64
}

// Lifecycle drives the per-room moderator state machine and the grace-period
// closure timer.
type Lifecycle struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*modState

	grace      time.Duration
	gateway    core.Gateway
	records    core.ClassRecords
	onTeardown func(domain.RoomID)
}

func NewLifecycle(grace time.Duration, gw core.Gateway, records core.ClassRecords, onTeardown func(domain.RoomID)) *Lifecycle {
	return &Lifecycle{
		rooms:      make(map[domain.RoomID]*modState),
		grace:      grace,
		gateway:    gw,
		records:    records,
		onTeardown: onTeardown,
	}
}

// ModeratorJoined handles a join with the moderator role. While a closure is
// pending it cancels the timer and announces the return; a second moderator
// simply replaces the tracked handle (last-moderator-wins).
func (l *Lifecycle) ModeratorJoined(room domain.RoomID, conn domain.ConnID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.rooms[room]
	if !ok {
		st = &modState{}
		l.rooms[room] = st
	}

	switch st.phase {
	case domain.ModeratorAbsentPending:
		st.timer.Stop()
		st.timer = nil
		st.gen++
		st.phase = domain.ModeratorPresent
		st.mod = conn
		log.Info().Str("module", "app.lifecycle").Str("room", string(room)).Str("conn", string(conn)).Msg("moderator returned, closure cancelled")
		l.gateway.Broadcast(room, core.EvModeratorReturned, core.Notice{Message: "Moderator returned"}, conn)
	case domain.ModeratorPresent:
		if st.mod != conn {
			log.Warn().Str("module", "app.lifecycle").Str("room", string(room)).
				Str("old", string(st.mod)).Str("new", string(conn)).
				Msg("moderator handle replaced")
		}
		st.mod = conn
	default:
		st.phase = domain.ModeratorPresent
		st.mod = conn
		log.Info().Str("module", "app.lifecycle").Str("room", string(room)).Str("conn", string(conn)).Msg("moderator present")
	}
}

// ModeratorLeft handles a disconnect. It is a no-op unless the disconnecting
// handle is the currently tracked moderator. With members remaining it starts
// the grace timer; with an empty room it tears down immediately.
func (l *Lifecycle) ModeratorLeft(room domain.RoomID, conn domain.ConnID, remaining int) {
	l.mu.Lock()

	st, ok := l.rooms[room]
	if !ok || st.phase != domain.ModeratorPresent || st.mod != conn {
		l.mu.Unlock()
		return
	}

	if remaining == 0 {
		delete(l.rooms, room)
		l.mu.Unlock()
		log.Info().Str("module", "app.lifecycle").Str("room", string(room)).Msg("moderator left empty room, tearing down")
		l.onTeardown(room)
		return
	}

	st.phase = domain.ModeratorAbsentPending
	st.mod = ""
	st.deadline = time.Now().Add(l.grace)
	st.gen++
	gen := st.gen
	st.timer = time.AfterFunc(l.grace, func() { l.expire(room, gen) })
	countdown := int(l.grace.Seconds())
	deadline := st.deadline
	l.mu.Unlock()

	log.Info().Str("module", "app.lifecycle").Str("room", string(room)).Int("countdown", countdown).Msg("moderator left, closure pending")
	l.gateway.Broadcast(room, core.EvModeratorLeft, core.ModeratorLeft{
		Message:   fmt.Sprintf("Moderator left, room closes in %ds unless they return", countdown),
		Countdown: countdown,
		Deadline:  deadline,
	}, "")
}

// expire runs when the grace timer fires. A cancel that happened first will
// have bumped gen, which makes this a no-op.
func (l *Lifecycle) expire(room domain.RoomID, gen uint64) {
	l.mu.Lock()
	st, ok := l.rooms[room]
	if !ok || st.phase != domain.ModeratorAbsentPending || st.gen != gen {
		l.mu.Unlock()
		return
	}
	delete(l.rooms, room)
	l.mu.Unlock()

	log.Info().Str("module", "app.lifecycle").Str("room", string(room)).Msg("grace period expired, closing room")
	if err := l.records.MarkEnded(room); err != nil {
		log.Error().Err(err).Str("module", "app.lifecycle").Str("room", string(room)).Msg("mark class ended")
	}
	l.gateway.Broadcast(room, core.EvRoomClosed, core.Notice{Message: "Room closed: moderator did not return"}, "")
	l.onTeardown(room)
}

// CloseNow is the explicit external close: announce, cancel any pending
// timer, tear down, regardless of current phase.
func (l *Lifecycle) CloseNow(room domain.RoomID) {
	l.mu.Lock()
	if st, ok := l.rooms[room]; ok {
		if st.timer != nil {
			st.timer.Stop()
		}
		st.gen++
		delete(l.rooms, room)
	}
	l.mu.Unlock()

	log.Info().Str("module", "app.lifecycle").Str("room", string(room)).Msg("class ended, closing room")
	l.gateway.Broadcast(room, core.EvClassEnded, core.Notice{Message: "Class ended"}, "")
	l.onTeardown(room)
}

// Teardown drops the room's state without any broadcast. Used when the room
// empties out; idempotent.
func (l *Lifecycle) Teardown(room domain.RoomID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.rooms[room]; ok {
		if st.timer != nil {
			st.timer.Stop()
		}
		st.gen++
		delete(l.rooms, room)
	}
}

// Phase reports the room's current lifecycle phase.
func (l *Lifecycle) Phase(room domain.RoomID) (domain.Phase, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.rooms[room]
	if !ok {
		return domain.NoModerator, false
	}
	return st.phase, true
}
