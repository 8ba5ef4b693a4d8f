package pushservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/hearthkeep/go-push-service/internal/api"
	"github.com/hearthkeep/go-push-service/internal/dispatcher"
	"github.com/hearthkeep/go-push-service/internal/pipeline"
	"github.com/hearthkeep/go-push-service/internal/platform/web"
	"github.com/hearthkeep/go-push-service/pkg/push"
	"github.com/hearthkeep/go-push-service/pushservice/config"
)

// configKeySource serves the VAPID pair out of the loaded configuration. The
// dispatcher consults it once per invocation, so a config reload between
// dispatches takes effect without restarting anything.
type configKeySource struct {
	vapid config.VapidConfig
}

func (s *configKeySource) SigningKeys(context.Context) (push.SigningKeyPair, error) {
	if s.vapid.PublicKey == "" || s.vapid.PrivateKey == "" {
		return push.SigningKeyPair{}, fmt.Errorf("%w: vapid key pair not configured", push.ErrKeyFetchFailure)
	}
	return push.SigningKeyPair{
		PublicKey:  s.vapid.PublicKey,
		PrivateKey: s.vapid.PrivateKey,
		Subscriber: s.vapid.SubscriberEmail,
	}, nil
}

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[push.DispatchRequest]
	logger          *slog.Logger
}

// New assembles the service: store + transport + dispatcher, the Pub/Sub
// ingestion pipeline feeding the dispatcher, and the HTTP surface for
// subscription lifecycle and direct dispatch.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	store push.SubscriptionStore,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// Dispatch fan-out
	keys := &configKeySource{vapid: cfg.Vapid}
	transport := web.NewTransport(logger)
	disp := dispatcher.New(store, transport, keys, logger)

	// Pipeline
	processor := pipeline.NewProcessor(disp, logger)
	streamingService, err := messagepipeline.NewStreamingService[push.DispatchRequest](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		pipeline.DispatchRequestTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// HTTP surface
	subscriptionAPI := api.NewSubscriptionAPI(store, logger)
	dispatchAPI := api.NewDispatchAPI(disp, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	preflight := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	mux.Handle("OPTIONS /subscriptions", preflight)
	mux.Handle("PUT /subscriptions", corsMiddleware(authMiddleware(http.HandlerFunc(subscriptionAPI.Register))))
	mux.Handle("POST /subscriptions/delete", corsMiddleware(authMiddleware(http.HandlerFunc(subscriptionAPI.Unregister))))
	mux.Handle("GET /subscriptions/status", corsMiddleware(authMiddleware(http.HandlerFunc(subscriptionAPI.Status))))
	mux.Handle("GET /subscriptions/endpoint-status", corsMiddleware(authMiddleware(http.HandlerFunc(subscriptionAPI.EndpointStatus))))

	// The public signing key is the client handshake input; it is not a
	// secret and needs no auth.
	mux.Handle("GET /vapid-public-key", corsMiddleware(api.PublicKeyHandler(cfg.Vapid.PublicKey, logger)))

	mux.Handle("POST /dispatch", corsMiddleware(authMiddleware(http.HandlerFunc(dispatchAPI.Dispatch))))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
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
