package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/strideworks/trainsync/internal/config"
	"github.com/strideworks/trainsync/internal/handler"
	"github.com/strideworks/trainsync/internal/matching"
	"github.com/strideworks/trainsync/internal/provider"
	"github.com/strideworks/trainsync/internal/repository"
	"github.com/strideworks/trainsync/internal/service"
	"github.com/strideworks/trainsync/internal/utils"
	"github.com/strideworks/trainsync/internal/vault"
	"github.com/strideworks/trainsync/pkg/observability"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra  Infrastructure
	config *config.Config
	router *gin.Engine
	server *http.Server
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	repos := repository.NewRepositories(infra.Postgres())

	vaultKey, err := cfg.Vault.KeyBytes()
	if err != nil {
		return nil, err
	}
	tokenVault, err := vault.New(repos.Connection, vaultKey)
	if err != nil {
		return nil, err
	}

	registry := provider.NewRegistry()
	callbackURL := cfg.OAuth.CallbackBaseURL + "/api/v1/providers/callback"
	if cfg.Strava.Enabled {
		registry.Register(provider.NewStrava(providerOptions(cfg.Strava, callbackURL)))
	}
	if cfg.Garmin.Enabled {
		registry.Register(provider.NewGarmin(providerOptions(cfg.Garmin, callbackURL)))
	}

	jwtManager := utils.NewJWTManager(cfg.Auth.JWTSecret, cfg.OAuth.StateTTL.Duration)

	stateStore := service.NewOAuthStateStore(infra.Redis(), cfg.OAuth.StateTTL.Duration)
	passLock := service.NewPassLock(infra.Redis(), cfg.Sync.LockTTL.Duration)
	rateLimiter := service.NewRateLimiter(infra.Redis())
	healthChecker := NewHealthChecker(infra)

	syncMetrics, err := observability.NewSyncMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to register sync metrics: %w", err)
	}

	oauthService := service.NewOAuthService(registry, tokenVault, repos.Connection, jwtManager, stateStore)
	syncService := service.NewSyncService(
		registry,
		tokenVault,
		repos,
		passLock,
		infra.Publisher(),
		syncMetrics,
		infra.Logger(),
		service.SyncOptions{
			MaxBatchSize: cfg.Sync.MaxBatchSize,
			Concurrency:  cfg.Sync.Concurrency,
			ErrorListCap: cfg.Sync.ErrorListCap,
			MatchPolicy: matching.Policy{
				Window:   cfg.Match.Window.Duration,
				Floor:    cfg.Match.Floor,
				Possible: cfg.Match.PossibleThreshold,
				Probable: cfg.Match.ProbableThreshold,
				Exact:    cfg.Match.ExactThreshold,
			},
		},
	)

	oauthHandler := handler.NewOAuthHandler(oauthService)
	syncHandler := handler.NewSyncHandler(syncService)

	router := gin.Default()
	router.Use(otelgin.Middleware("trainsync"))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, oauthHandler, syncHandler, jwtManager, rateLimiter, healthChecker, infra.MetricsHandler())

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
	}, nil
}

func providerOptions(p config.ProviderConfig, callbackURL string) provider.Options {
	return provider.Options{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		BaseURL:      p.BaseURL,
		AuthURL:      p.AuthURL,
		RedirectURL:  callbackURL,
		Timeout:      p.Timeout.Duration,
	}
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	oauthHandler *handler.OAuthHandler,
	syncHandler *handler.SyncHandler,
	jwtManager *utils.JWTManager,
	rateLimiter *service.RateLimiter,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	rateLimitByUser := handler.RateLimitMiddleware(
		rateLimiter,
		cfg.Security.RateLimitRequests,
		cfg.Security.RateLimitWindow.Duration,
		handler.RateLimitByUser,
	)
	rateLimitByIP := handler.RateLimitMiddleware(
		rateLimiter,
		cfg.Security.RateLimitRequests,
		cfg.Security.RateLimitWindow.Duration,
		handler.RateLimitByIP,
	)

	api := router.Group("/api/v1")
	{
		providers := api.Group("/providers")
		{
			// The callback arrives from the provider redirect without a
			// session; the state token carries the user identity. Being the
			// one unauthenticated route, it is limited by client IP.
			providers.GET("/callback", rateLimitByIP, oauthHandler.Callback)

			authed := providers.Group("", handler.AuthMiddleware(jwtManager))
			{
				authed.GET("", oauthHandler.Connections)
				authed.GET("/:provider/connect", rateLimitByUser, oauthHandler.Authorize)
				authed.POST("/:provider/refresh", rateLimitByUser, oauthHandler.Refresh)
				authed.DELETE("/:provider", oauthHandler.Disconnect)
			}
		}

		sync := api.Group("/sync", handler.AuthMiddleware(jwtManager), rateLimitByUser)
		{
			sync.POST("/:provider/push", syncHandler.Push)
			sync.POST("/:provider/pull", syncHandler.Pull)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
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
