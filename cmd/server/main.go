package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/watercoop/waterbill/internal/api"
	"github.com/watercoop/waterbill/internal/api/cron"
	v1 "github.com/watercoop/waterbill/internal/api/v1"
	"github.com/watercoop/waterbill/internal/cache"
	"github.com/watercoop/waterbill/internal/config"
	"github.com/watercoop/waterbill/internal/database"
	"github.com/watercoop/waterbill/internal/logger"
	"github.com/watercoop/waterbill/internal/metrics"
	"github.com/watercoop/waterbill/internal/publisher"
	"github.com/watercoop/waterbill/internal/pubsub/memory"
	pubsubRouter "github.com/watercoop/waterbill/internal/pubsub/router"
	"github.com/watercoop/waterbill/internal/repository"
	"github.com/watercoop/waterbill/internal/service"
	"github.com/watercoop/waterbill/internal/validator"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	var opts []fx.Option

	// Core dependencies
	opts = append(opts,
		fx.Provide(
			// Validator
			validator.NewValidator,

			// Config
			config.NewConfig,

			// Logger
			logger.NewLogger,

			// Monitoring
			metrics.New,

			// Cache
			provideCache,

			// Database
			database.NewDB,
			provideDBClient,

			// Event bus
			memory.NewPubSub,
			pubsubRouter.NewRouter,
			publisher.NewEventPublisher,
			publisher.NewAuditHandler,

			// Repositories
			repository.NewClientRepository,
			repository.NewBillRepository,
			repository.NewPartialPaymentRepository,
			repository.NewConnectionStatusRepository,
		),
	)

	// Service layer
	opts = append(opts,
		fx.Provide(
			service.NewLedger,
			service.NewPolicy,
			service.NewServiceParams,
			service.NewBillingService,
		),
	)

	// API
	opts = append(opts,
		fx.Provide(
			provideHandlers,
			provideRouter,
		),
		fx.Invoke(
			startMessageRouter,
			startAPIServer,
			closeDB,
		),
	)

	app := fx.New(opts...)
	app.Run()
}

func provideCache(cfg *config.Configuration) cache.Cache {
	return cache.NewInMemoryCache(cfg)
}

func provideDBClient(db *database.DB) database.IClient {
	return db
}

func provideHandlers(
	db *database.DB,
	logger *logger.Logger,
	billingService service.BillingService,
) api.Handlers {
	return api.Handlers{
		Health:               v1.NewHealthHandler(db, logger),
		Client:               v1.NewClientHandler(billingService, logger),
		Bill:                 v1.NewBillHandler(billingService, logger),
		CronConnectionStatus: cron.NewConnectionStatusCronHandler(billingService, logger),
	}
}

func provideRouter(handlers api.Handlers, cfg *config.Configuration, logger *logger.Logger, m *metrics.Metrics) *gin.Engine {
	return api.NewRouter(handlers, cfg, logger, m)
}

func startAPIServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Configuration,
	log *logger.Logger,
) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("Starting API server...", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			return srv.Shutdown(ctx)
		},
	})
}

func startMessageRouter(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	router *pubsubRouter.Router,
	auditHandler *publisher.AuditHandler,
	log *logger.Logger,
) {
	if !cfg.Events.Enabled {
		log.Info("billing events disabled, message router not started")
		return
	}

	// Register handlers before starting the router
	auditHandler.RegisterHandler(router)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					log.Errorw("message router failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping message router")
			return router.Close()
		},
	})
}

func closeDB(lc fx.Lifecycle, db *database.DB) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
}
