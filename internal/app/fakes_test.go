package app

import (
	"sync"

	"github.com/classpad/liveclass/internal/domain"
)

// sent records one outbound delivery made through the fake gateway.
type sent struct {
	Event   string
	To      domain.ConnID // unicast target, "" for broadcasts
	Room    domain.RoomID // broadcast room, "" for unicasts
	Except  domain.ConnID
	Payload any
}

// fakeGateway is the in-memory substitute for the websocket hub.
type fakeGateway struct {
	mu   sync.Mutex
	sent []sent
}

func newFakeGateway() *fakeGateway { return &fakeGateway{} }

func (g *fakeGateway) SendTo(conn domain.ConnID, event string, payload any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sent{Event: event, To: conn, Payload: payload})
}

func (g *fakeGateway) Broadcast(room domain.RoomID, event string, payload any, except domain.ConnID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sent{Event: event, Room: room, Except: except, Payload: payload})
}

func (g *fakeGateway) named(event string) []sent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []sent
	for _, s := range g.sent {
		if s.Event == event {
			out = append(out, s)
		}
	}
	return out
}

func (g *fakeGateway) count(event string) int { return len(g.named(event)) }

// fakeRecords is an in-memory class-record collaborator.
type fakeRecords struct {
	mu     sync.Mutex
	status map[domain.RoomID]domain.ClassStatus
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{status: make(map[domain.RoomID]domain.ClassStatus)}
}

func (r *fakeRecords) MarkLive(code domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[code] = domain.ClassLive
	return nil
}

func (r *fakeRecords) MarkEnded(code domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[code] = domain.ClassEnded
	return nil
}

func (r *fakeRecords) Get(code domain.RoomID) (*domain.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.status[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.Class{AccessCode: code, Status: st}, nil
}

func (r *fakeRecords) statusOf(code domain.RoomID) domain.ClassStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[code]
}
