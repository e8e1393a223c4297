package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/healthbridge/vendorsync/internal/config"
	"github.com/healthbridge/vendorsync/internal/fhir"
	"github.com/healthbridge/vendorsync/internal/fitbit"
	"github.com/healthbridge/vendorsync/internal/handler"
	"github.com/healthbridge/vendorsync/internal/ingest"
	"github.com/healthbridge/vendorsync/internal/repository"
	"github.com/healthbridge/vendorsync/internal/service"
	"github.com/healthbridge/vendorsync/internal/utils"
	"github.com/healthbridge/vendorsync/internal/worker"
	"github.com/healthbridge/vendorsync/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra  Infrastructure
	config *config.Config
	router *gin.Engine
	server *http.Server
	worker *worker.Worker
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	repos := repository.NewRepositories(infra.Postgres())

	jwtManager := utils.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry.Duration)
	states := utils.NewStateTokenManager(cfg.JWT.Secret, cfg.JWT.StateTokenExpiry.Duration)

	vault, err := service.NewTokenVault(cfg.Vault.EncryptionKey, cfg.Vault.KeySalt, repos.Credential)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token vault: %w", err)
	}

	rateLimiter := service.NewRateLimiter(infra.Redis())
	healthChecker := NewHealthChecker(infra)
	integrationService := service.NewIntegrationService(repos.Integration, repos.Job, vault)

	fitbitClient := fitbit.NewClient(cfg.Fitbit, vault, infra.Logger())
	normalizer := fitbit.NewNormalizer(infra.Logger())
	fhirClient := fhir.NewClient(cfg.FHIR, infra.Logger())
	publisher := fhir.NewPublisher(fhirClient, infra.Logger())

	registry, err := ingest.NewRegistry(
		ingest.NewFitbitService(fitbitClient, normalizer, publisher, infra.Logger()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build ingestion registry: %w", err)
	}

	syncWorker, err := worker.New(repos.User, repos.Integration, repos.Job, registry, cfg.Sync, infra.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to build sync worker: %w", err)
	}

	syncHandler := handler.NewSyncHandler(integrationService, registry, cfg.Sync.MaxAttempts)
	integrationHandler := handler.NewIntegrationHandler(integrationService, registry)
	fitbitHandler := handler.NewFitbitHandler(integrationService, vault, fitbitClient, states, infra.Logger())

	router := gin.Default()
	router.Use(otelgin.Middleware("vendorsync"))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, jwtManager, syncHandler, integrationHandler, fitbitHandler, rateLimiter, healthChecker, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:  infra,
		config: cfg,
		router: router,
		server: srv,
		worker: syncWorker,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	jwtManager *utils.JWTManager,
	syncHandler *handler.SyncHandler,
	integrationHandler *handler.IntegrationHandler,
	fitbitHandler *handler.FitbitHandler,
	rateLimiter *service.RateLimiter,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	api := router.Group("/api/v1")
	{
		// Vendor redirects land here without a bearer token; the signed
		// state parameter authenticates the callback.
		api.GET("/integrations/fitbit/callback", fitbitHandler.Callback)

		authorized := api.Group("", handler.AuthMiddleware(jwtManager))
		{
			authorized.GET("/integrations/fitbit/authorize", fitbitHandler.AuthorizeURL)

			vendors := authorized.Group("/vendors")
			{
				vendors.GET("", integrationHandler.List)
				vendors.POST("/:vendor/select", integrationHandler.Select)
				vendors.DELETE("/:vendor", integrationHandler.Disconnect)
				vendors.POST("/:vendor/sync",
					handler.RateLimitMiddleware(rateLimiter, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow.Duration, handler.UserBasedKey),
					syncHandler.EnqueueSync,
				)
			}

			authorized.GET("/sync/status", syncHandler.Status)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		a.worker.Run(workerCtx)
	}()

	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(shutdownTimeout):
		a.infra.Logger().Warn("Worker did not stop in time")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
