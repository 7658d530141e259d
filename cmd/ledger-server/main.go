package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/phr/ledger/internal/config"
	"github.com/phr/ledger/internal/domain/audit"
	"github.com/phr/ledger/internal/domain/compliance"
	"github.com/phr/ledger/internal/domain/consent"
	"github.com/phr/ledger/internal/domain/session"
	"github.com/phr/ledger/internal/domain/wellness"
	"github.com/phr/ledger/internal/platform/auth"
	"github.com/phr/ledger/internal/platform/blobstore"
	"github.com/phr/ledger/internal/platform/db"
	"github.com/phr/ledger/internal/platform/middleware"
	"github.com/phr/ledger/migrations"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
	sweepInterval   = time.Hour
	requestTimeout  = 30 * time.Second
	bodyLimit       = "1M"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ledger-server",
		Short: "Compliance ledger API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ledger API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationFS(dir))
			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFS(dir)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migration status for schema: %s\n", schema)
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %03d  %-30s  %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

// migrationFS returns the embedded migrations unless dir overrides them.
func migrationFS(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func connect(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// backends holds the storage chosen by STORE_BACKEND.
type backends struct {
	events   audit.Store
	sessions session.Repository
	pool     *pgxpool.Pool
}

func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	if !cfg.UsesPostgres() {
		logger.Warn().Msg("using in-memory ledger; data is lost on restart")
		return &backends{events: audit.NewMemoryStore(), sessions: session.NewMemoryRepository()}, nil
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to database")
	return &backends{events: audit.NewPGStore(pool), sessions: session.NewPGRepository(pool), pool: pool}, nil
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}
	if cfg.AuthSigningKey != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthSigningKey)
	}
	configured := cfg.AuthJWKSURL != "" || cfg.AuthSigningKey != ""

	if cfg.IsDev() {
		var verify echo.MiddlewareFunc
		if configured {
			verify = auth.JWTMiddleware(jwtCfg)
		}
		return auth.DevAuthMiddleware(verify)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open storage")
		return err
	}
	if stores.pool != nil {
		defer stores.pool.Close()
	}

	// Services
	auditSvc := audit.NewService(stores.events, logger)
	auditSvc.SetClockSkew(cfg.ClockSkewTolerance)
	tracker := consent.NewTracker(stores.events)
	engine := compliance.NewEngine(stores.events, tracker, blobstore.NewInMemoryBlobStore(), logger)
	engine.SetReportTTL(cfg.ReportTTL)
	sessionSvc := session.NewService(stores.sessions, auditSvc, logger)
	sessionSvc.SetTTL(cfg.SessionTTL)
	wellnessSvc := wellness.NewService(wellness.NewMemoryRepository(), logger)

	e := newServer(cfg, logger, stores.pool)
	api := e.Group("/api/v1", authMiddleware(cfg))
	audit.NewHandler(auditSvc).RegisterRoutes(api)
	consent.NewHandler(tracker).RegisterRoutes(api)
	compliance.NewHandler(engine).RegisterRoutes(api)
	session.NewHandler(sessionSvc).RegisterRoutes(api)
	wellness.NewHandler(wellnessSvc).RegisterRoutes(api)

	go sweepReports(ctx, engine, logger)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("backend", cfg.StoreBackend).Msg("starting ledger server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance with the global middleware chain and
// health routes. pool is nil for the in-memory backend.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader, session.HeaderSessionID},
		ExposeHeaders: []string{middleware.RequestIDHeader, "Content-Disposition"},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"backend": cfg.StoreBackend,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	return e
}

// sweepReports drops expired report files until ctx is cancelled.
func sweepReports(ctx context.Context, engine *compliance.Engine, logger zerolog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := engine.SweepExpired(ctx); n > 0 {
				logger.Info().Int("count", n).Msg("expired audit reports swept")
			}
		}
	}
}
