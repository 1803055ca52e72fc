package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/classpad/liveclass/internal/core"
	"github.com/classpad/liveclass/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, sid domain.ConnID, token domain.ParticipantID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.dispatch(sid, token, c, data)
		}
	}
}

func (ctl *Controller) dispatch(sid domain.ConnID, token domain.ParticipantID, c *WsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(sid, token, c, data)
	case "rename":
		ctl.handleRename(sid, c, data)
	case "voice-activity":
		ctl.handleVoiceActivity(sid, c, data)
	case core.EvOffer, core.EvAnswer, core.EvICECandidate:
		ctl.handleSignal(sid, env.Type, c, data)
	case "ping":
		ctl.Hub.sendJSON(c, core.EvPong, nil)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown message type")
	}
}

func (ctl *Controller) sendError(c *WsConn, msg string) {
	ctl.Hub.sendJSON(c, core.EvError, core.Notice{Message: msg})
}

func (ctl *Controller) handleJoin(sid domain.ConnID, token domain.ParticipantID, c *WsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		Room   string `json:"room"`
		Name   string `json:"name"`
		Role   string `json:"role"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return
	}

	userID := domain.ParticipantID(p.UserID)
	if userID == "" {
		userID = token
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).
		Str("room", p.Room).Str("role", p.Role).Msg("join")
	ctl.Coord.Join(userID, sid, p.Name, domain.RoomID(p.Room), domain.ParseRole(p.Role))
}

func (ctl *Controller) handleRename(sid domain.ConnID, c *WsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Name == "" {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Coord.Rename(sid, domain.RoomID(p.Room), p.Name)
}

func (ctl *Controller) handleVoiceActivity(sid domain.ConnID, _ *WsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		Room   string `json:"room"`
		Active bool   `json:"active"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad voice-activity payload")
		return
	}
	ctl.Coord.VoiceActivity(sid, domain.RoomID(p.Room), p.Active)
}

func (ctl *Controller) handleSignal(sid domain.ConnID, kind string, c *WsConn, data []byte) {
	var p struct {
		Type    string          `json:"type"`
		To      string          `json:"to"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.Coord.Signal(kind, p.Payload, string(sid), domain.ConnID(p.To))
}
