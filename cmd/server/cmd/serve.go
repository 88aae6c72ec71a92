package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Togather-Foundation/agenda/internal/api"
	"github.com/Togather-Foundation/agenda/internal/api/handlers"
	"github.com/Togather-Foundation/agenda/internal/api/middleware"
	"github.com/Togather-Foundation/agenda/internal/audit"
	"github.com/Togather-Foundation/agenda/internal/auth"
	"github.com/Togather-Foundation/agenda/internal/config"
	"github.com/Togather-Foundation/agenda/internal/domain/events"
	"github.com/Togather-Foundation/agenda/internal/domain/users"
	"github.com/Togather-Foundation/agenda/internal/metrics"
	"github.com/Togather-Foundation/agenda/internal/storage"
	"github.com/Togather-Foundation/agenda/internal/storage/postgres"
	"github.com/Togather-Foundation/agenda/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const dbStatsInterval = 15 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (and --config if given)
- Apply pending database migrations when DATABASE_AUTO_MIGRATE is true
- Create the bootstrap admin when ADMIN_EMAIL and ADMIN_PASSWORD are set
- Shut down gracefully on SIGINT/SIGTERM

Examples:
  # Start with configuration from the environment
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Start with a config file and debug logging
  server serve --config /etc/agenda/config.yaml --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "server port (default: 8080)")
	return cmd
}

func runServer(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("environment", cfg.Environment).Msg("starting agenda server")

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown error")
		}
	}()

	if cfg.Database.AutoMigrate {
		if err := postgres.MigrateUp(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info().Msg("database migrations applied")
	}

	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("repository init: %w", err)
	}
	userService, eventService, err := newServices(cfg, repo, logger)
	if err != nil {
		return err
	}

	if err := bootstrapAdmin(ctx, cfg, userService, logger); err != nil {
		logger.Error().Err(err).Msg("admin bootstrap failed")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	defer limiter.Stop()

	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: api.NewRouter(api.Deps{
			Config:  cfg,
			Logger:  logger,
			Users:   userService,
			Events:  eventService,
			Health:  handlers.NewHealthChecker(pool, Version, GitCommit),
			Limiter: limiter,
			Build:   api.BuildInfo{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate},
		}),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		metrics.NewDBCollector(pool).Run(gctx, dbStatsInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		logger.Info().Msg("server stopped")
		return nil
	})
	return g.Wait()
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// newServices builds the account and event services over repo. The token
// signing key is derived from JWT_SECRET rather than used directly.
func newServices(cfg config.Config, repo storage.Repository, logger zerolog.Logger) (*users.Service, *events.Service, error) {
	key, err := auth.DeriveSessionKey([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, nil, fmt.Errorf("derive session key: %w", err)
	}
	tokens, err := auth.NewTokenManager(key, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("token manager: %w", err)
	}
	hasher, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("password hasher: %w", err)
	}

	auditLogger := audit.NewLoggerWithZerolog(logger)
	return users.NewService(repo, hasher, tokens, auditLogger, logger),
		events.NewService(repo, auditLogger, logger),
		nil
}

func bootstrapAdmin(ctx context.Context, cfg config.Config, service *users.Service, logger zerolog.Logger) error {
	bootstrap := cfg.AdminBootstrap
	if !bootstrap.Enabled() {
		logger.Debug().Msg("admin bootstrap not configured; skipping")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	created, err := service.EnsureAdmin(ctx, bootstrap.Email, bootstrap.Password, bootstrap.FullName)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	if cfg.Environment == "production" {
		logger.Info().Msg("bootstrapped admin user")
	} else {
		logger.Info().Str("email", bootstrap.Email).Msg("bootstrapped admin user")
	}
	return nil
}
