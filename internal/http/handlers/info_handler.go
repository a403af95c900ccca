// README: Connection info handler; tells integrators how to open the
// ambulance channel and what to send on it.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type InfoHandler struct {
	ambulanceChannels ChannelCounter
	roomServerURL     string
}

func NewInfoHandler(ambulanceChannels ChannelCounter, roomServerURL string) *InfoHandler {
	return &InfoHandler{ambulanceChannels: ambulanceChannels, roomServerURL: roomServerURL}
}

// WebsocketAmbulancias handles GET /api/info/websocket-ambulancias.
func (h *InfoHandler) WebsocketAmbulancias(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"url":                "/ws/ambulancias/{id_ambulancia}",
		"conexiones_activas": h.ambulanceChannels.ActiveCount(),
		"formato_mensaje": gin.H{
			"ubicacion": gin.H{"latitud": 4.7110, "longitud": -74.0721},
		},
		"respuestas":     []string{"connection", "ubicacion_recibida", "error"},
		"servidor_salas": h.roomServerURL,
	})
}
