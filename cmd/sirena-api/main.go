// README: Entry point; loads config, wires services, starts HTTP server and
// the streaming scheduler.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sirena/internal/ai"
	"sirena/internal/config"
	httptransport "sirena/internal/http"
	"sirena/internal/infra"
	"sirena/internal/ingest"
	mapsgeo "sirena/internal/maps"
	"sirena/internal/modules/dispatch"
	"sirena/internal/modules/emergency"
	"sirena/internal/modules/location"
	"sirena/internal/modules/matching"
	"sirena/internal/rooms"
	"sirena/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := infra.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("conectar a postgres")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	// One hub per audience; operators get broadcasts, the other two are
	// addressed by entity id.
	operatorHub := ws.NewHub(logger)
	requesterHub := ws.NewHub(logger)
	ambulanceHub := ws.NewHub(logger)

	operatorFeed := ws.NewFeed(operatorHub, ws.BroadcastDelivery{}, logger)
	operatorDirect := ws.NewFeed(operatorHub, ws.ByIDDelivery{}, logger)
	requesterFeed := ws.NewFeed(requesterHub, ws.ByIDDelivery{}, logger)
	ambulanceFeed := ws.NewFeed(ambulanceHub, ws.ByIDDelivery{}, logger)

	locationCache := location.NewCache(redisClient, cfg.Stream.CacheTimeout, cfg.Stream.ScanCount)
	fleet := location.NewFleet(dbPool)
	locationSvc := location.NewService(locationCache, fleet, logger)

	matchingSvc := matching.NewService(locationCache, logger)

	scheduler := dispatch.NewScheduler(operatorDirect, requesterFeed, matchingSvc, locationCache, cfg.Stream.Tick, logger)

	var roomProvider emergency.RoomProvider = rooms.NewNoopProvider(logger)

	var geocoder emergency.Geocoder
	if cfg.Maps.APIKey != "" {
		geo, err := mapsgeo.NewGeocodeService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("inicializar maps")
		}
		geocoder = geo
	}

	emergencyStore := emergency.NewStore(dbPool)
	emergencySvc := emergency.NewService(
		emergencyStore, matchingSvc, scheduler, fleet,
		operatorFeed, requesterFeed, ambulanceFeed,
		roomProvider, rooms.NewName, geocoder, logger,
	)

	var suggester ai.PrioritySuggester = ai.NewRuleSuggester()
	if cfg.AI.GeminiKey != "" {
		gemini, err := ai.NewGeminiSuggester(ctx, cfg.AI.GeminiKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("inicializar gemini")
		}
		defer gemini.Close()
		suggester = gemini
	}

	wsHandler := ws.NewHandler(operatorHub, requesterHub, ambulanceHub, locationSvc, scheduler, logger)

	if cfg.MQTT.Broker != "" {
		trackers := ingest.NewMQTTIngest(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password, cfg.MQTT.Topic, locationSvc, logger)
		if err := trackers.Start(); err != nil {
			logger.Warn().Err(err).Msg("ingesta MQTT no disponible")
		} else {
			defer trackers.Stop()
		}
	}

	handler := httptransport.NewRouter(emergencySvc, matchingSvc, suggester, ambulanceHub, wsHandler, cfg.Rooms.ServerURL, logger)
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.HTTP.Addr).Msg("sirena escuchando")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("servidor http")
	}

	scheduler.Shutdown()
}
