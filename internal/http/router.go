// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"sirena/internal/ai"
	"sirena/internal/http/handlers"
	"sirena/internal/http/middleware"
	"sirena/internal/modules/emergency"
	"sirena/internal/modules/matching"
	"sirena/internal/ws"
)

func NewRouter(
	emergencyService *emergency.Service,
	matchingService *matching.Service,
	suggester ai.PrioritySuggester,
	ambulanceChannels handlers.ChannelCounter,
	wsHandler *ws.Handler,
	roomServerURL string,
	log zerolog.Logger,
) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	solicitudHandler := handlers.NewSolicitudHandler(emergencyService)
	r.POST("/api/solicitudes", solicitudHandler.Create)
	r.GET("/api/solicitudes/pendientes", solicitudHandler.Pendientes)
	r.GET("/api/solicitudes/:id", solicitudHandler.Get)
	r.POST("/api/salas/:room/atender", solicitudHandler.AtenderSala)

	emergenciaHandler := handlers.NewEmergenciaHandler(emergencyService)
	r.POST("/api/emergencias/valorar", emergenciaHandler.Valorar)
	r.GET("/api/emergencias/:id", emergenciaHandler.Get)
	r.POST("/api/emergencias/:id/despachar", emergenciaHandler.Despachar)
	r.POST("/api/emergencias/:id/en-escena", emergenciaHandler.EnEscena)
	r.POST("/api/emergencias/:id/resolver", emergenciaHandler.Resolver)
	r.POST("/api/emergencias/:id/cancelar", emergenciaHandler.Cancelar)

	ambulanciaHandler := handlers.NewAmbulanciaHandler(matchingService, ambulanceChannels)
	r.GET("/api/ambulancias/cercana", ambulanciaHandler.Cercana)
	r.GET("/api/ambulancias/activas", ambulanciaHandler.Activas)

	aiHandler := handlers.NewAIHandler(suggester)
	r.POST("/api/emergencias/sugerir-prioridad", aiHandler.Sugerir)

	infoHandler := handlers.NewInfoHandler(ambulanceChannels, roomServerURL)
	r.GET("/api/info/websocket-ambulancias", infoHandler.WebsocketAmbulancias)

	wsHandler.Register(r)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
