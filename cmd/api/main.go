package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/clearance-service/internal/api/http"
	"github.com/spec-kit/clearance-service/internal/api/http/handlers"
	"github.com/spec-kit/clearance-service/internal/auth"
	"github.com/spec-kit/clearance-service/internal/blob"
	"github.com/spec-kit/clearance-service/internal/config"
	"github.com/spec-kit/clearance-service/internal/document"
	"github.com/spec-kit/clearance-service/internal/events"
	"github.com/spec-kit/clearance-service/internal/observability"
	"github.com/spec-kit/clearance-service/internal/persistence"
	"github.com/spec-kit/clearance-service/internal/repository"
	"github.com/spec-kit/clearance-service/internal/service"
	"github.com/spec-kit/clearance-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	store := repository.NewPostgresStore(pg.PoolHandle())
	counterStore := repository.NewRedisCounterStore(rdb.Handle(), cfg.Redis.CountersKey)

	dispatcher := events.NewStreamDispatcher(rdb.Handle(), events.StreamOptions{
		Stream:   cfg.Redis.Stream,
		Group:    cfg.Redis.ConsumerGroup,
		Consumer: cfg.Redis.ConsumerName,
		MaxLen:   100000,
	}, logger)
	dispatcher.OnHandled(func(eventType events.EventType, err error) {
		if err != nil {
			logger.Debug("trigger left pending for redelivery", zap.String("event_type", string(eventType)))
		}
	})
	if err := dispatcher.EnsureGroup(ctx); err != nil {
		logger.Fatal("failed to create consumer group", zap.Error(err))
	}

	var blobs blob.Store
	if cfg.Storage.Bucket != "" {
		s3Store, err := blob.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal("failed to init object storage", zap.Error(err))
		}
		blobs = s3Store
	} else {
		logger.Warn("STORAGE_S3_BUCKET not set, clearance documents are kept in memory")
		blobs = blob.NewMemoryStore("local")
	}

	counters := service.NewCounterService(service.CounterDependencies{
		Store:    store,
		Counters: counterStore,
		Logger:   logger,
	})
	bridge := service.NewIdentityBridge(service.IdentityBridgeDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	workflow := service.NewProfileWorkflow(service.ProfileWorkflowDependencies{
		Store:      store,
		Counters:   counters,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	recorder := service.NewDocumentRecorder(service.DocumentRecorderDependencies{
		Store:  store,
		Logger: logger,
	})
	applications := service.NewApplicationService(service.ApplicationDependencies{
		Store:         store,
		Blobs:         blobs,
		Renderer:      document.NewPDFRenderer(cfg.App.Name),
		Dispatcher:    dispatcher,
		Logger:        logger,
		PresignExpiry: cfg.Storage.PresignExpiry,
	})
	gateway := service.NewReviewGateway(service.ReviewGatewayDependencies{
		Store:      store,
		Generator:  applications,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	verification := service.NewVerificationService(service.VerificationDependencies{
		Store:      store,
		Mailer:     service.NewOutboxMailer(store.Mail(), cfg.Email.From, logger, metrics, nil),
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
		Config:     cfg.Verification,
		BcryptCost: cfg.Auth.BcryptCost,
	})
	watcher := service.NewEmailWatcher(service.EmailWatcherDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
		MaxRetries: cfg.Email.MaxRetries,
	})
	profiles := service.NewProfileService(service.ProfileDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})

	worker.StartTriggerWorker(dispatcher, logger, metrics, bridge, workflow, recorder, counters, watcher)
	consumerDone := worker.RunConsumer(ctx, dispatcher, logger)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, store.Identities())

	if cfg.Webhook.Secret == "" {
		logger.Warn("WEBHOOK_SECRET not set, webhook ingress is disabled")
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    rdb,
		}),
		Profiles:       handlers.NewProfileHandler(profiles, verification),
		Applications:   handlers.NewApplicationsHandler(applications),
		Staff:          handlers.NewStaffHandler(gateway, counters),
		Webhooks:       handlers.NewWebhooksHandler(bridge, watcher, dispatcher, logger),
		AuthMiddleware: authMiddleware,
		WebhookSecret:  cfg.Webhook.Secret,
		Gatherer:       registry,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	consumerStopped := waitForShutdown(logger, consumerDone)

	if err := app.Shutdown(); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	if !consumerStopped {
		<-consumerDone
	}
}

// waitForShutdown blocks until a signal arrives or the consumer exits, and reports
// whether it was the consumer.
func waitForShutdown(logger *zap.Logger, consumerDone <-chan error) bool {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		return false
	case err := <-consumerDone:
		logger.Error("trigger consumer exited, shutting down", zap.Error(err))
		return true
	}
}
