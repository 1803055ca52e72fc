package signal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/classpad/liveclass/internal/domain"
)

// fakeTransport satisfies wsTransport without a network.
type fakeTransport struct{ closed bool }

func (f *fakeTransport) Close() error { f.closed = true; return nil }
func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeTransport) WriteMessage(int, []byte) error { return nil }
func (f *fakeTransport) ReadMessage() (int, []byte, error) { return 0, nil, nil }
func (f *fakeTransport) SetReadLimit(int64) {}

type staticRooms map[domain.RoomID][]domain.ConnID

func (s staticRooms) Members(room domain.RoomID) []domain.ConnID { return s[room] }

func drain(t *testing.T, c *WsConn) []byte {
	t.Helper()
	select {
	case b := <-c.send:
		return b
	default:
		t.Fatal("expected a queued frame")
		return nil
	}
}

func TestHub_SendToDeliversEnvelope(t *testing.T) {
	req := require.New(t)
	h := NewHub()
	c := NewWsConn("c1", &fakeTransport{})
	h.Register(c)

	h.SendTo("c1", "user-name-changed", map[string]string{"name": "Sam"})

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	req.NoError(json.Unmarshal(drain(t, c), &env))
	req.Equal("user-name-changed", env.Type)
	req.JSONEq(`{"name":"Sam"}`, string(env.Data))
}

func TestHub_SendToUnknownHandleIsSilent(t *testing.T) {
	h := NewHub()
	// Must neither panic nor error: signaling is perishable.
	h.SendTo("ghost", "offer", map[string]string{"sdp": "v=0"})
}

func TestHub_SendToClosedConnDropped(t *testing.T) {
	h := NewHub()
	c := NewWsConn("c1", &fakeTransport{})
	h.Register(c)
	c.Close()

	h.SendTo("c1", "offer", nil)
}

func TestHub_BroadcastExcludesHandle(t *testing.T) {
	req := require.New(t)
	h := NewHub()
	c1 := NewWsConn("c1", &fakeTransport{})
	c2 := NewWsConn("c2", &fakeTransport{})
	h.Register(c1)
	h.Register(c2)
	h.BindRooms(staticRooms{"r1": {"c1", "c2"}})

	h.Broadcast("r1", "user-joined", map[string]string{"name": "Sam"}, "c1")

	select {
	case <-c1.send:
		t.Fatal("excluded connection must not receive the broadcast")
	default:
	}
	req.NotNil(drain(t, c2))
}

func TestHub_BroadcastSkipsDisconnectedMembers(t *testing.T) {
	req := require.New(t)
	h := NewHub()
	c2 := NewWsConn("c2", &fakeTransport{})
	h.Register(c2)
	// c1 is still in the room set but its socket is gone.
	h.BindRooms(staticRooms{"r1": {"c1", "c2"}})

	h.Broadcast("r1", "room-closed", nil, "")
	req.NotNil(drain(t, c2))
}

func TestWsConn_TrySendBackpressure(t *testing.T) {
	req := require.New(t)
	c := NewWsConn("c1", &fakeTransport{})

	for i := 0; i < cap(c.send); i++ {
		req.NoError(c.TrySend([]byte("x")))
	}
	req.ErrorIs(c.TrySend([]byte("overflow")), ErrBackpressure)
}

func TestWsConn_CloseIsIdempotent(t *testing.T) {
	req := require.New(t)
	tr := &fakeTransport{}
	c := NewWsConn("c1", tr)

	c.Close()
	c.Close()
	req.True(tr.closed)
	req.Error(c.TrySend([]byte("late")))
}
