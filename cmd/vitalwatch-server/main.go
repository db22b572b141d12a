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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vitalwatch/vitalwatch/internal/config"
	"github.com/vitalwatch/vitalwatch/internal/domain/alerts"
	"github.com/vitalwatch/vitalwatch/internal/domain/ingest"
	"github.com/vitalwatch/vitalwatch/internal/domain/registry"
	"github.com/vitalwatch/vitalwatch/internal/domain/vitals"
	"github.com/vitalwatch/vitalwatch/internal/platform/db"
	"github.com/vitalwatch/vitalwatch/internal/platform/metrics"
	"github.com/vitalwatch/vitalwatch/internal/platform/middleware"
	"github.com/vitalwatch/vitalwatch/internal/platform/realtime"
	"github.com/vitalwatch/vitalwatch/internal/platform/stream"
	"github.com/vitalwatch/vitalwatch/internal/simulator"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vitalwatch-server",
		Short: "Patient vitals ingestion and alerting server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(deviceCmd())
	rootCmd.AddCommand(simulateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ingestion API server",
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func deviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage device bindings",
	}

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a device binding for a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, _ := cmd.Flags().GetString("device-id")
			apiKey, _ := cmd.Flags().GetString("api-key")
			patientID, _ := cmd.Flags().GetString("patient-id")
			label, _ := cmd.Flags().GetString("label")

			pid, err := uuid.Parse(patientID)
			if err != nil {
				return fmt.Errorf("--patient-id must be a UUID: %w", err)
			}
			if apiKey == "" {
				apiKey = uuid.NewString()
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := registry.NewService(registry.NewBindingRepoPG(pool), nil, zerolog.Nop())
			b := &registry.Binding{
				DeviceID:  deviceID,
				APIKey:    apiKey,
				PatientID: pid,
				IsActive:  true,
			}
			if label != "" {
				b.Label = &label
			}
			if err := svc.RegisterBinding(ctx, b); err != nil {
				return err
			}

			fmt.Printf("Registered device %s for patient %s\n", b.DeviceID, b.PatientID)
			fmt.Printf("API key: %s\n", apiKey)
			return nil
		},
	}
	registerCmd.Flags().String("device-id", "", "Device identifier (required)")
	registerCmd.Flags().String("patient-id", "", "Patient UUID the device reports for (required)")
	registerCmd.Flags().String("api-key", "", "Device API key (generated when omitted)")
	registerCmd.Flags().String("label", "", "Human-readable device label")
	cmd.AddCommand(registerCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered device bindings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := registry.NewService(registry.NewBindingRepoPG(pool), nil, zerolog.Nop())
			bindings, total, err := svc.ListBindings(ctx, 100, 0)
			if err != nil {
				return err
			}

			fmt.Printf("%-20s %-38s %-8s %s\n", "DEVICE", "PATIENT", "ACTIVE", "LAST SYNC")
			for _, b := range bindings {
				lastSync := "never"
				if b.LastSyncAt != nil {
					lastSync = b.LastSyncAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%-20s %-38s %-8t %s\n", b.DeviceID, b.PatientID, b.IsActive, lastSync)
			}
			fmt.Printf("%d binding(s) total\n", total)
			return nil
		},
	}
	cmd.AddCommand(listCmd)

	return cmd
}

// simulateCmd runs the fleet simulator standalone against the configured
// database, without starting the HTTP server. Readings still flow through
// the full pipeline, so alerts are generated and mirrored to kafka when a
// broker is configured.
func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate synthetic readings for all active devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			once, _ := cmd.Flags().GetBool("once")

			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			rdb, err := newRedisClient(ctx, cfg)
			if err != nil {
				return err
			}
			if rdb != nil {
				defer rdb.Close()
			}

			p := buildPipeline(cfg, pool, rdb, nil, logger)
			defer p.close()

			sim := simulator.New(p.registry, p.ingest, cfg.SimulatorInterval, logger)
			if once {
				sim.Tick(ctx)
				return nil
			}

			runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if err := sim.Run(runCtx); err != context.Canceled {
				return err
			}
			return nil
		},
	}
	cmd.Flags().Bool("once", false, "Emit a single reading per device and exit")
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// newRedisClient connects to redis when REDIS_URL is set. Redis is optional;
// without it the server runs with no liveness tracking and no latest-reading
// cache.
func newRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// pipeline bundles the wired services behind the ingestion endpoint.
type pipeline struct {
	registry *registry.Service
	vitals   *vitals.Service
	alerts   *alerts.Service
	ingest   *ingest.Service
	close    func()
}

// buildPipeline wires repositories, services, and event publishers. The
// extra publishers (the websocket hub when serving) are combined with the
// optional kafka mirror.
func buildPipeline(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, extra []realtime.EventPublisher, logger zerolog.Logger) *pipeline {
	var liveness *registry.Liveness
	var cache vitals.LatestCache
	if rdb != nil {
		liveness = registry.NewLiveness(rdb, 24*time.Hour)
		cache = vitals.NewLatestCacheRedis(rdb, time.Hour)
	}

	regSvc := registry.NewService(registry.NewBindingRepoPG(pool), liveness, logger)
	vitSvc := vitals.NewService(vitals.NewReadingRepoPG(pool), cache, logger)
	alertSvc := alerts.NewService(alerts.NewAlertRepoPG(pool), logger)

	publishers := append([]realtime.EventPublisher{}, extra...)
	closeFn := func() {}
	if cfg.FirehoseEnabled() {
		producer := stream.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicEvents, logger)
		publishers = append(publishers, producer)
		closeFn = func() {
			if err := producer.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close kafka producer")
			}
		}
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopicEvents).Msg("kafka event mirror enabled")
	}

	ingestSvc := ingest.NewService(regSvc, vitSvc, alertSvc, publishers, cfg.ClockSkewWarn, logger)

	return &pipeline{
		registry: regSvc,
		vitals:   vitSvc,
		alerts:   alertSvc,
		ingest:   ingestSvc,
		close:    closeFn,
	}
}

func runServer() error {
	// Logger
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Redis (optional)
	rdb, err := newRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if rdb != nil {
		defer rdb.Close()
		logger.Info().Msg("connected to redis")
	}

	// Metrics
	metrics.Register(prometheus.DefaultRegisterer)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", "X-Request-ID", ingest.APIKeyHeader},
	}))

	// API group
	apiV1 := e.Group("/api/v1")

	// Rate limiting middleware
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	// Realtime hub
	hub := realtime.NewHub(logger, cfg.WSSendBuffer)
	realtime.NewHandler(hub).RegisterRoutes(apiV1)

	// Ingestion pipeline
	p := buildPipeline(cfg, pool, rdb, []realtime.EventPublisher{hub}, logger)
	defer p.close()

	ingest.NewHandler(p.ingest).RegisterRoutes(apiV1)
	vitals.NewHandler(p.vitals).RegisterRoutes(apiV1)
	alerts.NewHandler(p.alerts).RegisterRoutes(apiV1)

	// Embedded simulator (optional)
	simCtx, stopSim := context.WithCancel(ctx)
	defer stopSim()
	if cfg.SimulatorEnabled {
		sim := simulator.New(p.registry, p.ingest, cfg.SimulatorInterval, logger)
		go sim.Run(simCtx)
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stopSim()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
