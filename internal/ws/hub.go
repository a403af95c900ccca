// README: Connection registry; addresses live channels by entity id and
// supports broadcast. One hub per logical feed (operators, solicitantes,
// ambulancias).
package ws

import (
	"sync"

	"github.com/rs/zerolog"

	"sirena/internal/types"
)

// Client is a live channel owned by exactly one hub entry.
type Client struct {
	conn Sender
}

// NewClient wraps a Sender for registration with a hub.
func NewClient(conn Sender) *Client {
	return &Client{conn: conn}
}

// Hub tracks active clients plus a forward index (entity id -> clients) and
// its reverse (client -> entity id). Both indexes mutate only under mu;
// sends happen on a snapshot so no lock is held across channel I/O.
type Hub struct {
	mu     sync.Mutex
	active map[*Client]struct{}
	byID   map[types.ID][]*Client
	idOf   map[*Client]types.ID
	log    zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		active: make(map[*Client]struct{}),
		byID:   make(map[types.ID][]*Client),
		idOf:   make(map[*Client]types.ID),
		log:    log.With().Str("component", "ws.hub").Logger(),
	}
}

// Connect registers an anonymous client; it receives broadcasts only.
func (h *Hub) Connect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active[c] = struct{}{}
}

// ConnectAs registers a client under an entity id. Several clients may share
// one id (multi-tab, multi-device).
func (h *Hub) ConnectAs(c *Client, id types.ID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active[c] = struct{}{}
	h.byID[id] = append(h.byID[id], c)
	h.idOf[c] = id
}

// Disconnect removes the client from every index and closes the channel.
// Safe to call repeatedly and on clients that were never connected.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	known := h.remove(c)
	h.mu.Unlock()
	if known {
		_ = c.conn.Close()
	}
}

// remove unlinks c from all indexes. Caller holds mu.
func (h *Hub) remove(c *Client) bool {
	if _, ok := h.active[c]; !ok {
		return false
	}
	delete(h.active, c)
	if id, ok := h.idOf[c]; ok {
		rest := h.byID[id][:0]
		for _, other := range h.byID[id] {
			if other != c {
				rest = append(rest, other)
			}
		}
		if len(rest) == 0 {
			delete(h.byID, id)
		} else {
			h.byID[id] = rest
		}
		delete(h.idOf, c)
	}
	return true
}

// SendToID delivers msg to every client associated with id. An id with no
// live clients is a normal condition, not an error. A client whose send
// fails is dropped from the registry; the remaining deliveries proceed.
func (h *Hub) SendToID(msg []byte, id types.ID) {
	h.mu.Lock()
	targets := make([]*Client, len(h.byID[id]))
	copy(targets, h.byID[id])
	h.mu.Unlock()

	h.sendAll(targets, msg)
}

// Broadcast delivers msg to every active client.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.active))
	for c := range h.active {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	h.sendAll(targets, msg)
}

// SendTo delivers msg to a single client, typically the connect greeting.
func (h *Hub) SendTo(c *Client, msg []byte) {
	h.sendAll([]*Client{c}, msg)
}

func (h *Hub) sendAll(targets []*Client, msg []byte) {
	for _, c := range targets {
		if err := c.conn.Send(msg); err != nil {
			h.log.Warn().Err(err).Msg("send failed, dropping connection")
			h.Disconnect(c)
		}
	}
}

// IsConnected reports whether at least one live client is associated with id.
func (h *Hub) IsConnected(id types.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byID[id]) > 0
}

// ActiveCount returns the number of live clients on this hub.
func (h *Hub) ActiveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// CountFor returns the number of live clients associated with id.
func (h *Hub) CountFor(id types.ID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byID[id])
}
