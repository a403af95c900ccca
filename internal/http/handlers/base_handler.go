// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sirena/internal/modules/emergency"
	"sirena/internal/modules/location"
	"sirena/internal/modules/matching"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeEmergencyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, emergency.ErrBadRequest),
		errors.Is(err, matching.ErrBadLocation),
		errors.Is(err, location.ErrBadCoordinates):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, emergency.ErrNotFound),
		errors.Is(err, location.ErrUnknownAmbulance):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, emergency.ErrInvalidState),
		errors.Is(err, emergency.ErrConflict),
		errors.Is(err, emergency.ErrAmbulanceUnavailable):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "error interno")
	}
}
