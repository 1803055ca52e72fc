package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/classpad/liveclass/internal/core"
	"github.com/classpad/liveclass/internal/domain"
)

// Relay forwards WebRTC negotiation payloads point-to-point. Payloads are
// opaque and perishable: no validation, no persistence, no retry. A target
// that is no longer connected just misses the message.
type Relay struct {
	gateway core.Gateway
}

func NewRelay(gw core.Gateway) *Relay {
	return &Relay{gateway: gw}
}

func (r *Relay) Relay(kind string, payload json.RawMessage, from string, to domain.ConnID) {
	switch kind {
	case core.EvOffer, core.EvAnswer, core.EvICECandidate:
	default:
		log.Warn().Str("module", "app.relay").Str("kind", kind).Msg("unknown signal kind dropped")
		return
	}
	log.Debug().Str("module", "app.relay").Str("kind", kind).Str("from", from).Str("to", string(to)).Msg("relaying signal")
	r.gateway.SendTo(to, kind, core.SignalEnvelope{Payload: payload, From: from})
}
