package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/receiver-discovery-go/internal/api"
	"github.com/strefethen/receiver-discovery-go/internal/auth"
	"github.com/strefethen/receiver-discovery-go/internal/config"
	"github.com/strefethen/receiver-discovery-go/internal/db"
	"github.com/strefethen/receiver-discovery-go/internal/discovery"
	"github.com/strefethen/receiver-discovery-go/internal/events"
	"github.com/strefethen/receiver-discovery-go/internal/inbox"
	"github.com/strefethen/receiver-discovery-go/internal/openapi"
	"github.com/strefethen/receiver-discovery-go/internal/pipeline"
	"github.com/strefethen/receiver-discovery-go/internal/recognizer"
	"github.com/strefethen/receiver-discovery-go/internal/system"
	"github.com/strefethen/receiver-discovery-go/internal/yamaha"
)

// Options controls server wiring.
type Options struct {
	// DisableDiscovery skips network scanning; rescans answer DISCOVERY_DISABLED.
	DisableDiscovery bool
	Logger           *log.Logger
}

// NewRegistry builds the recognizer registry with every built-in participant.
func NewRegistry(cfg config.Config, logger *log.Logger) (*recognizer.Registry, error) {
	yamahaCfg, err := yamaha.LoadConfig(cfg.RecognizerConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load recognizer config: %w", err)
	}
	registry := recognizer.NewRegistry()
	if err := yamaha.New(yamahaCfg, logger).Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}

	registry, err := NewRegistry(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	logger.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestLogger(logger))
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg.JWTSecret))

	registerHealthRoutes(router)
	openapi.RegisterRoutes(router)

	hub := events.NewHub(logger)
	router.Handle("/ws/inbox", hub)

	inboxService := inbox.NewService(dbPair, hub, logger)
	inbox.RegisterRoutes(router, inboxService)

	var scanner discovery.Scanner
	if !options.DisableDiscovery {
		scanner = discovery.NewSSDPScanner(discovery.ScannerOptions{
			Search: discovery.SearchOptions{
				Targets:      cfg.SSDPSearchTargets,
				Passes:       cfg.SSDPDiscoveryPasses,
				PassInterval: time.Duration(cfg.SSDPPassIntervalMs) * time.Millisecond,
				ReadTimeout:  time.Duration(cfg.SSDPDiscoveryTimeoutMs) * time.Millisecond,
			},
			StaticLocations:    cfg.StaticDescriptionURLs,
			DescriptionTimeout: time.Duration(cfg.DescriptionTimeoutMs) * time.Millisecond,
			FetchLimit:         cfg.DescriptionFetchLimit,
		}, logger)
	}

	pipelineService := pipeline.NewService(scanner, registry, inboxService, pipeline.NewRunRepository(dbPair), pipeline.Options{
		Schedule: cfg.DiscoverySchedule,
		InboxTTL: time.Duration(cfg.InboxTTLSeconds) * time.Second,
	}, logger)
	pipeline.RegisterRoutes(router, pipelineService)

	system.RegisterRoutes(router, system.NewService(dbPair, logger, pipelineService))

	if !options.DisableDiscovery {
		if err := pipelineService.StartPeriodic(); err != nil {
			dbPair.Close()
			return nil, nil, fmt.Errorf("start discovery schedule: %w", err)
		}
	}

	shutdown := func(ctx context.Context) error {
		pipelineService.StopPeriodic()
		hub.Close()
		return dbPair.Close()
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "receiver-discovery",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
