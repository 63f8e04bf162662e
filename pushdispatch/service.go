// Package pushdispatch assembles the push-dispatch service: the dispatch
// core, the ingestion pipeline that feeds it, and the HTTP surface for
// device bookkeeping.
package pushdispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-dispatch/internal/api"
	"github.com/tinywideclouds/go-push-dispatch/internal/pipeline"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatch/pushdispatch/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[dispatch.Request]
	dispatcher      *dispatch.Dispatcher
	logger          *slog.Logger
}

// New assembles the service. Each transport in transports is registered
// under its map key; a duplicate identifier fails assembly.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	store dispatch.BackingStore,
	transports map[string]dispatch.Transport,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Dispatch core
	registry := dispatch.NewRegistry()
	for identifier, transport := range transports {
		if err := registry.Register(identifier, transport); err != nil {
			return nil, fmt.Errorf("failed to register transport %q: %w", identifier, err)
		}
	}
	dispatcher := dispatch.New(
		dispatch.Config{MaxInFlight: cfg.MaxFanOut},
		store,
		registry,
		logger,
	)

	// 3. Pipeline
	processor := pipeline.NewProcessor(dispatcher, logger)
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.PushRequestTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API (Device bookkeeping + direct send + audit)
	deviceAPI := api.NewDeviceAPI(dispatcher, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	handle("POST /api/v1/devices", deviceAPI.RegisterDevice)
	handle("POST /api/v1/devices/associate", deviceAPI.Associate)
	handle("POST /api/v1/devices/dissociate", deviceAPI.Dissociate)
	handle("POST /api/v1/send", deviceAPI.Send)
	handle("GET /api/v1/events/{eventID}/transactions", deviceAPI.EventTransactions)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 OK with CORS headers handled by middleware
	})))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		dispatcher:      dispatcher,
		logger:          logger,
	}, nil
}

// Dispatcher exposes the assembled core for callers that embed the
// service in a larger process.
func (w *Wrapper) Dispatcher() *dispatch.Dispatcher {
	return w.dispatcher
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
