package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carecal/carecal/internal/config"
	"github.com/carecal/carecal/internal/domain/scheduling"
	"github.com/carecal/carecal/internal/platform/auth"
	"github.com/carecal/carecal/internal/platform/db"
	"github.com/carecal/carecal/internal/platform/feedsync"
	"github.com/carecal/carecal/internal/platform/ical"
	"github.com/carecal/carecal/internal/platform/metrics"
	"github.com/carecal/carecal/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "carecal-server",
		Short:        "Care calendar API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(renderCmd())
	root.AddCommand(importCmd())
	root.AddCommand(tokenCmd())
	return root
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// storage is the wired service plus what the server needs to report on and
// release the backing store.
type storage struct {
	svc    *scheduling.Service
	health db.Pinger
	pool   *pgxpool.Pool
}

func (s *storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		store := scheduling.NewMemoryStore()
		svc := scheduling.NewService(store.Categories(), store.Patients(), store.Appointments(), cfg.Location())
		return &storage{svc: svc, health: store}, nil
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		Schema:          cfg.DBSchema,
		ApplicationName: "carecal",
	})
	if err != nil {
		return nil, err
	}
	svc := scheduling.NewService(
		scheduling.NewCategoryRepoPG(pool),
		scheduling.NewPatientRepoPG(pool),
		scheduling.NewAppointmentRepoPG(pool),
		cfg.Location(),
	)
	svc.UseTx(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.RunInTx(ctx, pool, fn)
	})
	return &storage{svc: svc, health: pool, pool: pool}, nil
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
}

// newServer builds the echo instance with middleware and every route.
func newServer(cfg *config.Config, st *storage, m *metrics.Metrics, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "If-None-Match", middleware.RequestIDHeader},
		ExposeHeaders: []string{"ETag", middleware.RequestIDHeader, "Retry-After"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, auth.AuthSkipper))

	// Auth middleware
	var verify echo.MiddlewareFunc
	if cfg.AuthSigningKey != "" {
		verify = auth.JWTMiddleware(jwtConfig(cfg))
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(verify))
	} else if verify != nil {
		e.Use(verify)
	}
	e.Use(middleware.Audit(logger, middleware.AuditRecorderFunc(func(entry middleware.AuditEntry) error {
		m.ObserveChange(entry.Resource, entry.Action, entry.StatusCode)
		return nil
	})))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"storage": cfg.Storage,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.health))
	e.GET("/metrics", m.Handler())

	// API
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	rateLimitCfg.BurstSize = cfg.RateLimitBurst
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.ETag())

	scheduling.NewHandler(st.svc, m).RegisterRoutes(apiV1)
	return e
}

// newFeedSyncer wires the configured feeds into the service. It returns nil
// when no feeds are configured.
func newFeedSyncer(cfg *config.Config, svc *scheduling.Service, m *metrics.Metrics, logger zerolog.Logger) (*feedsync.Syncer, error) {
	if len(cfg.FeedURLs) == 0 {
		return nil, nil
	}
	var categoryID *uuid.UUID
	if cfg.FeedCategory != "" {
		id, err := uuid.Parse(cfg.FeedCategory)
		if err != nil {
			return nil, fmt.Errorf("FEED_CATEGORY: %w", err)
		}
		categoryID = &id
	}

	importer := feedsync.ImporterFunc(func(ctx context.Context, source string, occs []ical.Occurrence) error {
		res, err := svc.ImportOccurrences(ctx, source, occs, categoryID)
		if err != nil {
			return err
		}
		logger.Debug().
			Str("url", ical.RedactURL(source)).
			Int("created", res.Created).
			Int("updated", res.Updated).
			Int("skipped", res.Skipped).
			Msg("feed imported")
		return nil
	})

	return feedsync.New(feedsync.Config{
		URLs:     cfg.FeedURLs,
		Schedule: cfg.FeedSyncCron,
		Location: cfg.Location(),
		OnResult: func(r feedsync.Result) { m.ObserveFeedSync(r.Occurrences, r.Err) },
	}, ical.NewFetcher(30*time.Second), importer, logger)
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := newLogger(os.Getenv("ENV"))
		bootLogger.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger := newLogger(cfg.Env)

	// Storage
	ctx := context.Background()
	st, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open storage")
		return err
	}
	defer st.Close()
	logger.Info().Str("storage", cfg.Storage).Str("timezone", cfg.Timezone).Msg("storage ready")

	m := metrics.New()
	if st.pool != nil {
		m.WatchPool(st.pool)
	}
	e := newServer(cfg, st, m, logger)

	// Feed sync
	syncer, err := newFeedSyncer(cfg, st.svc, m, logger)
	if err != nil {
		logger.Error().Err(err).Msg("invalid feed sync configuration")
		return err
	}
	if syncer != nil {
		if err := syncer.Start(); err != nil {
			return err
		}
		syncer.RunNow()
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if syncer != nil {
		syncer.Stop(shutdownCtx)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
