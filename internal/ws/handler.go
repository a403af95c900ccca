// README: gin endpoints that upgrade client connections and pump inbound
// messages for the three feeds.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"sirena/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// AmbulanceLifecycle receives the availability and position side effects of
// an ambulance channel.
type AmbulanceLifecycle interface {
	AmbulanceConnected(ctx context.Context, id types.ID) error
	ReportPosition(ctx context.Context, id types.ID, lat, lng float64) error
	AmbulanceDisconnected(ctx context.Context, id types.ID) error
}

// TaskStopper locates and stops the streaming task addressed to an entity,
// invoked when that entity's channel goes away.
type TaskStopper interface {
	StopByTarget(target types.ID) bool
}

// Handler owns the websocket endpoints for all three feeds.
type Handler struct {
	operators  *Hub
	requesters *Hub
	ambulances *Hub
	lifecycle  AmbulanceLifecycle
	stopper    TaskStopper
	log        zerolog.Logger
}

func NewHandler(operators, requesters, ambulances *Hub, lifecycle AmbulanceLifecycle, stopper TaskStopper, log zerolog.Logger) *Handler {
	return &Handler{
		operators:  operators,
		requesters: requesters,
		ambulances: ambulances,
		lifecycle:  lifecycle,
		stopper:    stopper,
		log:        log.With().Str("component", "ws.handler").Logger(),
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/ws/operadores-emergencia/:id", h.HandleOperator)
	r.GET("/ws/solicitantes/:id", h.HandleRequester)
	r.GET("/ws/ambulancias/:id", h.HandleAmbulance)
}

// HandleOperator serves an operator's feed. Operators register by id so the
// candidate stream for an emergency they are evaluating can be addressed to
// them; new-request announcements still reach every connected operator by
// broadcast.
func (h *Handler) HandleOperator(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Int64("operador", int64(id)).Msg("operator upgrade failed")
		return
	}

	client := NewClient(NewConn(conn))
	h.operators.ConnectAs(client, id)
	defer h.operators.Disconnect(client)

	h.greet(h.operators, client, gin.H{
		"message":     "Conectado! Listo para recibir nuevas solicitudes",
		"id_operador": id,
	})
	drain(conn)
}

// HandleRequester serves a solicitante's by-id feed.
func (h *Handler) HandleRequester(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Int64("solicitante", int64(id)).Msg("requester upgrade failed")
		return
	}

	client := NewClient(NewConn(conn))
	h.requesters.ConnectAs(client, id)
	defer func() {
		h.requesters.Disconnect(client)
		// Once the last tab is gone the streaming task addressed to this
		// solicitante must not outlive the connection.
		if !h.requesters.IsConnected(id) && h.stopper != nil {
			h.stopper.StopByTarget(id)
		}
	}()

	h.greet(h.requesters, client, gin.H{
		"message":        "Conectado! Listo para recibir actualizaciones de tu solicitud",
		"id_solicitante": id,
	})
	drain(conn)
}

// positionMessage is the inbound frame on an ambulance channel.
type positionMessage struct {
	Ubicacion *struct {
		Latitud  *float64 `json:"latitud"`
		Longitud *float64 `json:"longitud"`
	} `json:"ubicacion"`
}

// HandleAmbulance serves an ambulance channel: marks the unit available on
// connect, writes every position fix to the live cache, and marks it
// unavailable (deleting the cached position) on disconnect.
func (h *Handler) HandleAmbulance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Int64("ambulancia", int64(id)).Msg("ambulance upgrade failed")
		return
	}

	if err := h.lifecycle.AmbulanceConnected(c.Request.Context(), id); err != nil {
		msg := websocket.FormatCloseMessage(4004, err.Error())
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		_ = conn.Close()
		return
	}

	client := NewClient(NewConn(conn))
	h.ambulances.ConnectAs(client, id)
	defer func() {
		h.ambulances.Disconnect(client)
		if err := h.lifecycle.AmbulanceDisconnected(context.Background(), id); err != nil {
			h.log.Warn().Err(err).Int64("ambulancia", int64(id)).Msg("disconnect cleanup failed")
		}
	}()

	h.greet(h.ambulances, client, gin.H{
		"message":       "Conectado! Listo para recibir ubicaciones",
		"id_ambulancia": id,
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg positionMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.reply(h.ambulances, client, "error", gin.H{"message": "Formato JSON inválido"})
			continue
		}
		if msg.Ubicacion == nil || msg.Ubicacion.Latitud == nil || msg.Ubicacion.Longitud == nil {
			h.reply(h.ambulances, client, "error", gin.H{
				"message": `Formato inválido. Se espera: {"ubicacion": {"latitud": X, "longitud": Y}}`,
			})
			continue
		}

		err = h.lifecycle.ReportPosition(c.Request.Context(), id, *msg.Ubicacion.Latitud, *msg.Ubicacion.Longitud)
		if err != nil {
			h.reply(h.ambulances, client, "error", gin.H{"message": err.Error()})
			continue
		}
		h.reply(h.ambulances, client, "ubicacion_recibida", gin.H{"message": "Ubicación actualizada correctamente"})
	}
}

func (h *Handler) greet(hub *Hub, client *Client, data gin.H) {
	h.reply(hub, client, "connection", data)
}

func (h *Handler) reply(hub *Hub, client *Client, msgType string, data gin.H) {
	msg, err := Marshal(msgType, data)
	if err != nil {
		h.log.Error().Err(err).Str("type", msgType).Msg("marshal reply")
		return
	}
	hub.SendTo(client, msg)
}

// pathID parses the :id segment, rejecting non-positive ids before upgrade.
func pathID(c *gin.Context) (types.ID, bool) {
	n, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id inválido"})
		return 0, false
	}
	return types.ID(n), true
}

// drain keeps the connection alive, discarding inbound frames (pings and
// client keepalives) until the peer goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
