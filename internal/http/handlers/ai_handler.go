// README: Triage suggestion handler (advisory priority for the evaluation
// screen).
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sirena/internal/ai"
)

type AIHandler struct {
	suggester ai.PrioritySuggester
}

func NewAIHandler(suggester ai.PrioritySuggester) *AIHandler {
	return &AIHandler{suggester: suggester}
}

type sugerirReq struct {
	Descripcion string `json:"descripcion"`
}

// Sugerir handles POST /api/emergencias/sugerir-prioridad.
func (h *AIHandler) Sugerir(c *gin.Context) {
	var req sugerirReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "json inválido")
		return
	}

	req.Descripcion = strings.TrimSpace(req.Descripcion)
	if req.Descripcion == "" {
		writeError(c, http.StatusBadRequest, "descripción requerida")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	suggestion, err := h.suggester.SuggestPriority(ctx, req.Descripcion)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "error interno")
		return
	}
	writeJSON(c, http.StatusOK, suggestion)
}
