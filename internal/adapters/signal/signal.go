// Package signal is the websocket gateway: it owns physical connections and
// translates frames to coordinator events and back.
package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/classpad/liveclass/internal/app"
	"github.com/classpad/liveclass/internal/domain"
)

type Controller struct {
	Coord *app.Coordinator
	Hub   *Hub

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewController(coord *app.Coordinator, hub *Hub, readLimit int64, pingPeriod time.Duration) *Controller {
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	return &Controller{Coord: coord, Hub: hub, ReadLimit: readLimit, PingPeriod: pingPeriod}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection's pumps. The
// connection handle is fresh per socket; the participant token cookie set by
// the router survives reconnects and serves as the fallback participant id.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := domain.ConnID(c.GetString("conn_id"))
	token := c.GetString("participant_token")
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := NewWsConn(sid, ws)
	ctl.Hub.Register(conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, sid, domain.ParticipantID(token), conn)
		// Socket gone: drop from the hub first so broadcasts triggered by
		// the disconnect never target the dead connection.
		ctl.Hub.Unregister(sid)
		ctl.Coord.Disconnect(sid)
	}()
}
