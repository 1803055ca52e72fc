package signal

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/classpad/liveclass/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// WsConn wraps one websocket with a buffered outbound queue. TrySend never
// blocks; a full queue drops the frame (best-effort delivery).
type WsConn struct {
	sid  domain.ConnID
	conn wsTransport
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

// wsTransport is the slice of *websocket.Conn the pumps use; tests swap in
// a fake.
type wsTransport interface {
	Close() error
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
}

func NewWsConn(sid domain.ConnID, conn wsTransport) *WsConn {
	return &WsConn{sid: sid, conn: conn, send: make(chan []byte, 32)}
}

func (c *WsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// envelope is the outbound wire format.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// MemberSource resolves a room to its current connection handles.
type MemberSource interface {
	Members(room domain.RoomID) []domain.ConnID
}

// Hub is the connection table. It implements core.Gateway: unicast and room
// fan-out, fire-and-forget.
type Hub struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*WsConn
	rooms MemberSource
}

func NewHub() *Hub {
	return &Hub{conns: make(map[domain.ConnID]*WsConn)}
}

// BindRooms wires the membership source once the coordinator exists.
func (h *Hub) BindRooms(rooms MemberSource) { h.rooms = rooms }

func (h *Hub) Register(c *WsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.sid] = c
	log.Info().Str("module", "signal.hub").Str("sid", string(c.sid)).Msg("connection registered")
}

func (h *Hub) Unregister(sid domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, sid)
	log.Info().Str("module", "signal.hub").Str("sid", string(sid)).Msg("connection unregistered")
}

func (h *Hub) get(sid domain.ConnID) (*WsConn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[sid]
	return c, ok
}

// SendTo unicasts; an unknown or closed handle is a silent drop.
func (h *Hub) SendTo(sid domain.ConnID, event string, payload any) {
	c, ok := h.get(sid)
	if !ok {
		log.Debug().Str("module", "signal.hub").Str("sid", string(sid)).Str("event", event).Msg("target not connected, dropped")
		return
	}
	h.sendJSON(c, event, payload)
}

// Broadcast fans out to the room's current members, optionally excluding one.
func (h *Hub) Broadcast(room domain.RoomID, event string, payload any, except domain.ConnID) {
	if h.rooms == nil {
		return
	}
	for _, sid := range h.rooms.Members(room) {
		if sid == except {
			continue
		}
		if c, ok := h.get(sid); ok {
			h.sendJSON(c, event, payload)
		}
	}
}

func (h *Hub) sendJSON(c *WsConn, event string, payload any) {
	b, err := json.Marshal(envelope{Type: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "signal.hub").Str("event", event).Msg("marshal outbound")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal.hub").Str("sid", string(c.sid)).Str("event", event).Msg("send dropped")
	}
}
