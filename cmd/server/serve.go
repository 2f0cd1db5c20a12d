package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"ideaflow/backend/internal/api"
	"ideaflow/backend/internal/auth"
	"ideaflow/backend/internal/config"
	"ideaflow/backend/internal/logging"
	"ideaflow/backend/internal/mcp"
	"ideaflow/backend/internal/repository"
	"ideaflow/backend/internal/retry"
	"ideaflow/backend/internal/services"
	"ideaflow/backend/internal/telemetry"
	"ideaflow/backend/internal/tls"
)

const shutdownTimeout = 30 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Info("configuration loaded",
		"environment", cfg.Environment,
		"db_driver", cfg.DB.Driver,
		"okta_domain", cfg.Auth.OktaDomain,
		"okta_client_id", cfg.Auth.ClientID,
		"secret_len", len(cfg.Auth.ClientSecret),
		"trust_headers", cfg.Auth.TrustHeaders,
	)
	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("swagger client id matches the backend client id; PKCE login from /docs will fail if the backend app requires a secret")
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Stdout:         cfg.Telemetry.Stdout,
		ServiceName:    "ideaflow",
		ServiceVersion: version,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.DB.Driver, "error", err)
		return err
	}
	defer store.Close()
	logger.Info("store ready", "driver", cfg.DB.Driver, "migrations_applied", len(store.AppliedMigrations()))

	engine, err := newEngine(cfg, store, logger)
	if err != nil {
		return err
	}
	dispatcher := services.NewDispatcher(dispatcherConfig(cfg), store, logger.With("component", "notifications"))

	authz, err := auth.New(ctx, cfg, store, logger.With("component", "auth"))
	if err != nil {
		logger.Error("failed to initialize auth", "error", err)
		return err
	}

	handler := api.NewHandler(engine, dispatcher, logger.With("component", "api"),
		api.WithVersion(version),
		api.WithPinger(store),
		api.WithDispatchTimeout(cfg.Notifications.Timeout),
	)
	mcpServer := mcp.NewServer(engine, dispatcher, logger.With("component", "mcp"), version)

	e := newEcho(cfg, authz, handler, mcpServer)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", server.Addr, "tls", cfg.TLS.Enable, "version", version)
		serverErrors <- listen(server, cfg, logger)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		if err := server.Close(); err != nil {
			logger.Error("server close error", "error", err)
		}
	}
	handler.Wait()
	logger.Info("server stopped gracefully")
	return nil
}

func newEngine(cfg *config.Config, store repository.Repository, logger *logging.Logger) (*services.WorkflowEngine, error) {
	metrics, err := telemetry.NewWorkflowMetrics(telemetry.Meter())
	if err != nil {
		logger.Error("failed to create workflow metrics", "error", err)
		return nil, err
	}
	engineLogger := logger.With("component", "workflow")

	guard := retry.New(
		retry.Policy{Attempts: cfg.Workflow.RetryAttempts, Step: cfg.Workflow.RetryBackoff},
		repository.IsTransient,
		retry.WithLogger(engineLogger),
		retry.WithRetryHook(metrics.RecordRetry),
	)
	spawner := services.NewIncubationSpawner(store, engineLogger,
		services.WithSpawnerGuard(guard),
		services.WithTargetDays(cfg.Workflow.IncubationTargetDays),
		services.WithFallbackIncubator(cfg.Workflow.DefaultIncubatorID),
	)
	return services.NewWorkflowEngineForRepository(store, services.EngineDeps{
		Guard:              guard,
		Spawner:            spawner,
		Logger:             engineLogger,
		Metrics:            metrics,
		Tracer:             telemetry.Tracer(),
		DefaultIncubatorID: cfg.Workflow.DefaultIncubatorID,
	}), nil
}

func dispatcherConfig(cfg *config.Config) services.DispatcherConfig {
	smtp := cfg.Notifications.SMTP
	return services.DispatcherConfig{
		Channels:   cfg.Notifications.Channels,
		WebhookURL: cfg.Notifications.WebhookURL,
		Timeout:    cfg.Notifications.Timeout,
		SMTP: services.SMTPConfig{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
		},
	}
}

func newEcho(cfg *config.Config, authz *auth.Auth, handler *api.Handler, mcpServer *mcp.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("ideaflow"))

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))
	e.GET("/health", handler.HandleHealth)

	apiGroup := e.Group(cfg.Server.BasePath)
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	api.RegisterHandlers(apiGroup, handler)

	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	mcpHandler := echo.WrapHandler(authz.RequireAuth(mcpHandlers))
	e.Any("/mcp", mcpHandler)
	e.Any("/mcp/*", mcpHandler)

	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(api.SwaggerHandler(cfg.Auth.OktaDomain, cfg.Auth.SwaggerClientID, auth.AllScopes)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(api.OAuth2RedirectHandler()))
	return e
}

func listen(server *http.Server, cfg *config.Config, logger *logging.Logger) error {
	if !cfg.TLS.Enable {
		return server.ListenAndServe()
	}
	if len(cfg.TLS.Hostnames) > 0 {
		created, err := tls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
		if err != nil {
			return err
		}
		if created {
			logger.Warn("generated self-signed certificate", "cert", cfg.TLS.CertFile, "hosts", cfg.TLS.Hostnames)
		}
	}
	return server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
}
