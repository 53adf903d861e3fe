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

	"hms/internal/config"
	"hms/internal/httpapi"
	"hms/internal/hub"
	"hms/internal/jobs"
	"hms/internal/models"
	"hms/internal/queue"
	"hms/internal/store/mongo"
	"hms/internal/store/postgres"
	"hms/internal/telemetry"
	"hms/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "hms-server"

func main() {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Hospital queue, schedule and account API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), reportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServer(cfg config.Config) error {
	logger := telemetry.NewLogger(cfg.Env)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Setup(ctx, telemetry.TraceConfig{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	}, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	mongoClient, err := mongo.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
	}()
	schedules := mongo.NewStore(mongoClient.Database(cfg.MongoDatabase), logger)
	if err := schedules.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pg := postgres.NewStore(pool)
	h := hub.New(logger)
	queues := queue.NewService(pg, logger, registry)
	feed := queue.NewFeed(queues, pg, h, logger, queue.FeedConfig{
		Interval:  cfg.FeedInterval(),
		BatchSize: cfg.FeedBatchSize,
	})
	go feed.Run(ctx)

	scheduler, err := jobs.NewScheduler(cfg.ReportCron, jobs.NewDailyReport(pg, logger), logger)
	if err != nil {
		return fmt.Errorf("report schedule: %w", err)
	}
	scheduler.Start()

	handler := httpapi.NewHandler(httpapi.Options{
		Queues:    queues,
		Accounts:  pg,
		Schedules: schedules,
		Hub:       h,
		Verifier:  httpapi.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		RateLimit: httpapi.RateLimitConfig{
			IPPerMinute:       cfg.RateLimitPerMinute,
			IPBurst:           cfg.RateLimitBurst,
			HospitalPerMinute: cfg.HospitalRateLimitPerMin,
			HospitalBurst:     cfg.HospitalRateLimitBurst,
		},
		CORSOrigins: cfg.CORSOrigins(),
		Registry:    registry,
		Logger:      logger,
		BcryptCost:  cfg.BcryptCost,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(handler.Routes(), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	scheduler.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// openPool connects for one-shot commands that only need Postgres.
func openPool(ctx context.Context) (*pgxpool.Pool, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	if cfg.DatabaseURL == "" {
		return nil, zerolog.Logger{}, errors.New("DB_DSN is required")
	}
	logger := telemetry.NewLogger(cfg.Env)
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("db connect: %w", err)
	}
	return pool, logger, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, logger, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := postgres.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			for _, version := range applied {
				logger.Info().Str("version", version).Msg("migration applied")
			}
			fmt.Printf("Applied %d migration(s).\n", len(applied))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, _, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := postgres.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			fmt.Printf("%-30s %-10s %s\n", "VERSION", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", "-"
				if s.Applied {
					status, appliedAt = "applied", s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%-30s %-10s %s\n", s.Version, status, appliedAt)
			}
			return nil
		},
	})
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Queue reports",
	}

	daily := &cobra.Command{
		Use:   "daily",
		Short: "Summarise every queue for one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			ctx := cmd.Context()
			pool, logger, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			report := jobs.NewDailyReport(postgres.NewStore(pool), logger)
			var summaries []models.QueueSummary
			if date == "" {
				summaries, err = report.Run(ctx)
			} else {
				if _, perr := time.Parse(models.DateLayout, date); perr != nil {
					return fmt.Errorf("--date must be DD-MM-YYYY: %w", perr)
				}
				summaries, err = report.RunFor(ctx, date)
			}
			if err != nil {
				return err
			}
			fmt.Printf("%-24s %-12s %8s %8s %8s %8s\n", "QUEUE", "HOSPITAL", "ISSUED", "WAITING", "CONSULT", "DONE")
			for _, s := range summaries {
				fmt.Printf("%-24s %-12s %8d %8d %8d %8d\n", s.Key.QueueName, s.Key.HospitalID, s.LastAssignedTurn, s.Waiting, s.InConsult, s.Finished)
			}
			return nil
		},
	}
	daily.Flags().String("date", "", "Day to summarise (DD-MM-YYYY); defaults to yesterday")
	cmd.AddCommand(daily)
	return cmd
}
