package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"furnace-optimizer/backend/internal/api"
	"furnace-optimizer/backend/internal/config"
	"furnace-optimizer/backend/internal/logging"
	"furnace-optimizer/backend/internal/mcp"
	"furnace-optimizer/backend/internal/params"
	"furnace-optimizer/backend/internal/repository"
	"furnace-optimizer/backend/internal/services"
	"furnace-optimizer/backend/internal/session"
	"furnace-optimizer/backend/internal/tls"
	"furnace-optimizer/backend/internal/workflow"
)

const sweepInterval = time.Minute

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "server",
		Short:         "Blast furnace optimizer operator API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config.yaml)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "furnace-optimizer", "environment", cfg.Environment)
	logging.SetDefault(logger)
	logger.Info("Configuration loaded",
		"optimizer_url", cfg.Optimizer.URL,
		"identity_url", cfg.Identity.URL,
		"database", cfg.DatabaseEnabled(),
		"service_token", cfg.Optimizer.Token != "",
	)

	// Submission history
	var store repository.SubmissionStore
	if cfg.DatabaseEnabled() {
		pool, err := initDatabase(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("database initialization failed: %w", err)
		}
		defer pool.Close()
		pgStore := repository.NewPostgresSubmissionStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
		store = pgStore
		logger.Info("Database connected")
	} else {
		store = repository.NewMemorySubmissionStore()
		logger.Warn("No database configured; submission history is kept in memory")
	}

	// Service layer
	optimizer := services.NewHTTPOptimizerClient(cfg.Optimizer.URL, services.WithLogger(logger))
	identity := services.NewHTTPIdentityClient(cfg.Identity.URL, cfg.Identity.TokenTTL, services.WithLogger(logger))

	newWorkflow := func(sessionID string, holder *session.TokenHolder) *workflow.Controller {
		return workflow.NewController(params.NewForm(), optimizer, holder,
			workflow.WithSessionID(sessionID),
			workflow.WithRecorder(store),
			workflow.WithLogger(logger.With("session_id", sessionID)),
		)
	}
	sessions := session.NewManager(cfg.Server.SessionTTL, newWorkflow)
	go sessions.Run(ctx, sweepInterval)

	logger.Info("Service layer initialized")

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("furnace-optimizer"))

	api.RegisterHandlers(e, api.NewHandler(sessions, identity, store, logger))
	logger.Info("REST API handlers mounted")

	// MCP tools run under the service account token.
	mcpWorkflow := newWorkflow("mcp", session.NewStaticHolder(cfg.Optimizer.Token))
	mcpServer := mcp.NewServer(mcpWorkflow)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))
	logger.Info("MCP protocol handlers mounted")

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", cfg.Server.Address, "tls", cfg.TLS.Enable)
		if cfg.TLS.Enable {
			generated, err := tls.EnsureCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames)
			if err != nil {
				serverErrors <- fmt.Errorf("tls certificate: %w", err)
				return
			}
			if generated {
				logger.Warn("Generated self-signed certificate", "cert_file", cfg.TLS.CertFile)
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}

		logger.Info("Server stopped gracefully")
		return nil
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
