// README: Feeds pair a hub with a delivery strategy chosen at construction
// time, so callers never branch on how a message should be addressed.
package ws

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"sirena/internal/types"
)

// Envelope is the wire format for every outbound message.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Marshal builds the wire bytes for a message of the given type.
func Marshal(msgType string, data any) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Delivery is an addressing strategy for a feed.
type Delivery interface {
	Deliver(h *Hub, msg []byte, targets []types.ID)
}

// BroadcastDelivery sends to every connection on the hub; targets are
// ignored. Used for the operator feed, where every operator sees every new
// request.
type BroadcastDelivery struct{}

func (BroadcastDelivery) Deliver(h *Hub, msg []byte, _ []types.ID) {
	h.Broadcast(msg)
}

// ByIDDelivery sends to each target entity's connections. Used for the
// solicitante and ambulancia feeds, where a party sees only its own updates.
// Passing several targets addresses a group.
type ByIDDelivery struct{}

func (ByIDDelivery) Deliver(h *Hub, msg []byte, targets []types.ID) {
	for _, id := range targets {
		h.SendToID(msg, id)
	}
}

// Feed is the delivery surface the rest of the system talks to.
type Feed struct {
	hub      *Hub
	delivery Delivery
	log      zerolog.Logger
}

func NewFeed(hub *Hub, delivery Delivery, log zerolog.Logger) *Feed {
	return &Feed{hub: hub, delivery: delivery, log: log.With().Str("component", "ws.feed").Logger()}
}

// Notify wraps data in the standard envelope and delivers it with the feed's
// strategy. Send failures never propagate; the hub drops the failing
// connection and the rest of the delivery proceeds.
func (f *Feed) Notify(msgType string, data any, targets ...types.ID) {
	msg, err := Marshal(msgType, data)
	if err != nil {
		f.log.Error().Err(err).Str("type", msgType).Msg("marshal notification")
		return
	}
	f.delivery.Deliver(f.hub, msg, targets)
}

// IsConnected reports whether the entity has at least one live connection on
// the feed's hub.
func (f *Feed) IsConnected(id types.ID) bool {
	return f.hub.IsConnected(id)
}
