// README: Ambulance query handlers: nearest unit and the live set backing
// the operator map.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sirena/internal/modules/location"
	"sirena/internal/modules/matching"
	"sirena/internal/types"
)

// ChannelCounter reports live websocket channel counts per feed.
type ChannelCounter interface {
	ActiveCount() int
}

type AmbulanciaHandler struct {
	matcher  *matching.Service
	channels ChannelCounter
}

func NewAmbulanciaHandler(matcher *matching.Service, channels ChannelCounter) *AmbulanciaHandler {
	return &AmbulanciaHandler{matcher: matcher, channels: channels}
}

// Cercana handles GET /api/ambulancias/cercana?latitud=&longitud=&tipo=.
func (h *AmbulanciaHandler) Cercana(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("latitud"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("longitud"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, "latitud y longitud son requeridas")
		return
	}
	tipo, err := location.ParseVehicleType(c.Query("tipo"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	id, found, err := h.matcher.FindNearest(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, tipo)
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	if !found {
		writeJSON(c, http.StatusOK, gin.H{"encontrada": false})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"encontrada": true, "ambulancia_id": id})
}

// Activas handles GET /api/ambulancias/activas?tipo=. It returns the live
// units of the requested type plus the number of open ambulance channels.
func (h *AmbulanciaHandler) Activas(c *gin.Context) {
	tipo, err := location.ParseVehicleType(c.Query("tipo"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := h.matcher.LiveCandidates(c.Request.Context(), tipo)
	if err != nil {
		writeEmergencyError(c, err)
		return
	}

	type liveUnit struct {
		ID       types.ID `json:"id"`
		Latitud  float64  `json:"latitud"`
		Longitud float64  `json:"longitud"`
	}
	units := make([]liveUnit, 0, len(recs))
	for _, rec := range recs {
		units = append(units, liveUnit{ID: rec.AmbulanceID, Latitud: rec.Latitud, Longitud: rec.Longitud})
	}

	writeJSON(c, http.StatusOK, gin.H{
		"ambulancias":      units,
		"canales_abiertos": h.channels.ActiveCount(),
	})
}
