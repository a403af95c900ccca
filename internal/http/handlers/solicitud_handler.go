// README: Intake handlers: new ambulance requests, the pending queue, and
// call-room attendance.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sirena/internal/modules/emergency"
	"sirena/internal/types"
)

type SolicitudHandler struct {
	svc *emergency.Service
}

func NewSolicitudHandler(svc *emergency.Service) *SolicitudHandler {
	return &SolicitudHandler{svc: svc}
}

type createSolicitudReq struct {
	SolicitanteID int64  `json:"solicitante_id"`
	Nombre        string `json:"nombre"`
	Telefono      string `json:"telefono"`
	Ubicacion     struct {
		Latitud  float64 `json:"latitud"`
		Longitud float64 `json:"longitud"`
	} `json:"ubicacion"`
	Descripcion string `json:"descripcion"`
}

// Create handles POST /api/solicitudes.
func (h *SolicitudHandler) Create(c *gin.Context) {
	var req createSolicitudReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "json inválido")
		return
	}

	sol, err := h.svc.Solicitar(c.Request.Context(), emergency.SolicitarCommand{
		SolicitanteID: types.ID(req.SolicitanteID),
		Nombre:        req.Nombre,
		Telefono:      req.Telefono,
		Ubicacion:     types.Point{Lat: req.Ubicacion.Latitud, Lng: req.Ubicacion.Longitud},
		Descripcion:   req.Descripcion,
	})
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, sol)
}

// Get handles GET /api/solicitudes/:id.
func (h *SolicitudHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	sol, err := h.svc.Solicitud(c.Request.Context(), id)
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sol)
}

// Pendientes handles GET /api/solicitudes/pendientes.
func (h *SolicitudHandler) Pendientes(c *gin.Context) {
	sols, err := h.svc.SolicitudesPendientes(c.Request.Context())
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	if sols == nil {
		sols = []emergency.Solicitud{}
	}
	writeJSON(c, http.StatusOK, sols)
}

// AtenderSala handles POST /api/salas/:room/atender.
func (h *SolicitudHandler) AtenderSala(c *gin.Context) {
	room := c.Param("room")
	if room == "" {
		writeError(c, http.StatusBadRequest, "sala requerida")
		return
	}

	if err := h.svc.AtenderSala(c.Request.Context(), room); err != nil {
		writeEmergencyError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"room": room, "estado": "atendida"})
}
