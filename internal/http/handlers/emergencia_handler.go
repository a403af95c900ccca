// README: Emergency lifecycle handlers: evaluation, dispatch, and closing
// transitions.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sirena/internal/modules/emergency"
	"sirena/internal/modules/location"
	"sirena/internal/types"
)

type EmergenciaHandler struct {
	svc *emergency.Service
}

func NewEmergenciaHandler(svc *emergency.Service) *EmergenciaHandler {
	return &EmergenciaHandler{svc: svc}
}

type valorarReq struct {
	SolicitudID    int64  `json:"solicitud_id"`
	OperadorID     int64  `json:"operador_id"`
	TipoAmbulancia string `json:"tipoAmbulancia"`
	NivelPrioridad string `json:"nivelPrioridad"`
	Descripcion    string `json:"descripcion"`
}

// Valorar handles POST /api/emergencias/valorar.
func (h *EmergenciaHandler) Valorar(c *gin.Context) {
	var req valorarReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "json inválido")
		return
	}

	tipo, err := location.ParseVehicleType(req.TipoAmbulancia)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	prioridad, err := emergency.ParsePrioridad(req.NivelPrioridad)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Valorar(c.Request.Context(), emergency.ValorarCommand{
		SolicitudID:    types.ID(req.SolicitudID),
		OperadorID:     types.ID(req.OperadorID),
		TipoAmbulancia: tipo,
		Prioridad:      prioridad,
		Descripcion:    req.Descripcion,
	})
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}

// Get handles GET /api/emergencias/:id.
func (h *EmergenciaHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	em, err := h.svc.Emergencia(c.Request.Context(), id)
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, em)
}

type despacharReq struct {
	AmbulanciaID         int64 `json:"ambulancia_id"`
	OperadorAmbulanciaID int64 `json:"operador_ambulancia_id"`
	OperadorEmergenciaID int64 `json:"operador_emergencia_id"`
}

// Despachar handles POST /api/emergencias/:id/despachar.
func (h *EmergenciaHandler) Despachar(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req despacharReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "json inválido")
		return
	}
	if req.AmbulanciaID <= 0 {
		writeError(c, http.StatusBadRequest, "ambulancia_id requerido")
		return
	}

	orden, err := h.svc.Despachar(c.Request.Context(), emergency.DespacharCommand{
		EmergenciaID:         id,
		AmbulanciaID:         types.ID(req.AmbulanciaID),
		OperadorAmbulanciaID: types.ID(req.OperadorAmbulanciaID),
		OperadorEmergenciaID: types.ID(req.OperadorEmergenciaID),
	})
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, orden)
}

type actorReq struct {
	ActorID int64 `json:"actor_id"`
}

// EnEscena handles POST /api/emergencias/:id/en-escena.
func (h *EmergenciaHandler) EnEscena(c *gin.Context) {
	h.applyTransition(c, h.svc.MarcarEnEscena)
}

// Resolver handles POST /api/emergencias/:id/resolver.
func (h *EmergenciaHandler) Resolver(c *gin.Context) {
	h.applyTransition(c, h.svc.Resolver)
}

// Cancelar handles POST /api/emergencias/:id/cancelar.
func (h *EmergenciaHandler) Cancelar(c *gin.Context) {
	h.applyTransition(c, h.svc.Cancelar)
}

func (h *EmergenciaHandler) applyTransition(c *gin.Context, fn func(ctx context.Context, id, actor types.ID) (*emergency.Emergencia, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req actorReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "json inválido")
		return
	}

	em, err := fn(c.Request.Context(), id, types.ID(req.ActorID))
	if err != nil {
		writeEmergencyError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, em)
}

// pathID parses the :id path segment, rejecting non-positive ids.
func pathID(c *gin.Context) (types.ID, bool) {
	n, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || n <= 0 {
		writeError(c, http.StatusBadRequest, "id inválido")
		return 0, false
	}
	return types.ID(n), true
}
