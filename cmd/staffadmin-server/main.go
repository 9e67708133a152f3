package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicops/staffadmin/internal/config"
	"github.com/clinicops/staffadmin/internal/domain/onboarding"
	"github.com/clinicops/staffadmin/internal/domain/professional"
	"github.com/clinicops/staffadmin/internal/platform/auth"
	"github.com/clinicops/staffadmin/internal/platform/blobstore"
	"github.com/clinicops/staffadmin/internal/platform/db"
	"github.com/clinicops/staffadmin/internal/platform/jobs"
	"github.com/clinicops/staffadmin/internal/platform/middleware"
	"github.com/clinicops/staffadmin/internal/platform/telemetry"
	"github.com/clinicops/staffadmin/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "staffadmin-server",
		Short:        "Clinic staff administration API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the background worker and sweep scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

// migrationSource returns the embedded migrations unless --dir points at a
// directory on disk.
func migrationSource(cmd *cobra.Command) fs.FS {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

// withPool loads config, opens a pool for a one-shot command and closes it
// afterwards.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
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
	return fn(ctx, cfg, pool)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations to every configured tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				migrator := db.NewMigrator(pool, migrationSource(cmd))
				tenants := cfg.Tenants
				if t, _ := cmd.Flags().GetString("tenant"); t != "" {
					tenants = []string{t}
				}
				for _, tenantID := range tenants {
					count, err := db.CreateTenantSchema(ctx, migrator, tenantID)
					if err != nil {
						return fmt.Errorf("migration failed: %w", err)
					}
					fmt.Printf("%s: applied %d migration(s)\n", db.SchemaName(tenantID), count)
				}
				return nil
			})
		},
	}
	upCmd.Flags().String("tenant", "", "Migrate only this tenant")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				tenantID, _ := cmd.Flags().GetString("tenant")
				if tenantID == "" {
					tenantID = cfg.DefaultTenant
				}
				schema := db.SchemaName(tenantID)

				statuses, err := db.NewMigrator(pool, migrationSource(cmd)).Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				fmt.Printf("Migration status for schema: %s\n", schema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				for _, s := range statuses {
					status, appliedAt := "pending", ""
					if s.Applied {
						status = "applied"
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("tenant", "", "Tenant to inspect (defaults to DEFAULT_TENANT)")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create <id>",
		Short: "Create a tenant schema and apply all migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID := args[0]
			if !db.ValidTenantID(tenantID) {
				return fmt.Errorf("tenant id must be alphanumeric or underscore, got %q", tenantID)
			}
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				count, err := db.CreateTenantSchema(ctx, db.NewMigrator(pool, migrations.FS), tenantID)
				if err != nil {
					return err
				}
				fmt.Printf("Tenant %s created (%d migration(s) applied). Add it to TENANTS so the worker sweeps it.\n",
					tenantID, count)
				return nil
			})
		},
	})
	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// bootstrap loads and validates config and connects to the database. Both
// the server and the worker start this way.
func bootstrap(ctx context.Context) (*config.Config, zerolog.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, logger, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: requests without a token act as an admin of the default tenant")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, logger, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to database")
	return cfg, logger, pool, nil
}

func openStorage(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	if cfg.StorageBackend != config.StorageMinIO {
		return blobstore.NewInMemoryBlobStore(cfg.MaxUploadBytes), nil
	}
	store, err := blobstore.NewMinIOBlobStore(blobstore.MinIOConfig{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
		MaxSize:   cfg.MaxUploadBytes,
	})
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

type services struct {
	professionals *professional.Service
	onboarding    *onboarding.Service
}

func newServices(pool *pgxpool.Pool, store blobstore.BlobStore, cfg *config.Config, logger zerolog.Logger) services {
	profSvc := professional.NewService(professional.NewRepo(pool), logger)
	onbSvc := onboarding.NewService(
		profSvc,
		onboarding.NewInviteRepo(pool),
		onboarding.NewSubmissionRepo(pool),
		onboarding.NewDocumentRepo(pool),
		store,
		onboarding.Config{InviteTTL: cfg.InviteTTL, InviteBaseURL: cfg.InviteBaseURL},
		logger,
	)
	onbSvc.SetTxRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	})
	onbSvc.SetConnScope(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithOwnConn(ctx, pool, fn)
	})
	return services{professionals: profSvc, onboarding: onbSvc}
}

func redisConfig(cfg *config.Config) jobs.RedisConfig {
	return jobs.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// skipTimeout exempts uploads and downloads, whose duration depends on file
// size rather than server work.
func skipTimeout(c echo.Context) bool {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return true
	}
	return strings.HasSuffix(c.Path(), "/download")
}

func runServer() error {
	ctx := context.Background()
	cfg, logger, pool, err := bootstrap(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer pool.Close()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open document storage")
		return err
	}
	logger.Info().Str("backend", cfg.StorageBackend).Msg("document storage ready")

	svcs := newServices(pool, store, cfg, logger)
	queue := jobs.NewClient(redisConfig(cfg))
	defer queue.Close()
	svcs.onboarding.SetTaskEnqueuer(queue)

	metrics := telemetry.NewProvider()
	if err := metrics.RegisterPool(pool); err != nil {
		logger.Warn().Err(err).Msg("pool metrics unavailable")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(metrics.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, db.TenantHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.MaxUploadBytes+(1<<20)))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, skipTimeout))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(cfg.DefaultTenant))
	} else {
		var signingKey []byte
		if cfg.AuthSigningKey != "" {
			signingKey = []byte(cfg.AuthSigningKey)
		}
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: signingKey,
			Skipper:    auth.AuthSkipper,
		}))
	}

	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst
	e.Use(middleware.RateLimit(rl))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1",
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		middleware.Audit(logger, metrics.AuditRecorder()),
	)
	professional.NewHandler(svcs.professionals).RegisterRoutes(apiV1)
	onbHandler := onboarding.NewHandler(svcs.onboarding)
	onbHandler.RegisterRoutes(apiV1)
	onbHandler.RegisterPublicRoutes(apiV1.Group("/public"))

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runWorker() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, pool, err := bootstrap(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer pool.Close()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open document storage")
		return err
	}
	// No enqueuer: reminders are scheduled by the API when invites go out.
	svcs := newServices(pool, store, cfg, logger)

	metrics := telemetry.NewProvider()
	if err := metrics.RegisterPool(pool); err != nil {
		logger.Warn().Err(err).Msg("pool metrics unavailable")
	}

	mux := asynq.NewServeMux()
	mux.Use(jobs.Logging(logger))
	mux.Use(metrics.TaskMiddleware())
	mux.Use(jobs.TenantScope(cfg.DefaultTenant, func(ctx context.Context, tenantID string, fn func(context.Context) error) error {
		return db.WithTenant(ctx, pool, tenantID, fn)
	}))
	svcs.onboarding.RegisterTasks(mux)

	server := jobs.NewServer(redisConfig(cfg), cfg.WorkerConcurrency, logger)
	scheduler := jobs.NewScheduler(redisConfig(cfg), logger)
	if err := jobs.SchedulePerTenant(scheduler, cfg.SweepCron, cfg.Tenants, onboarding.NewSweepTask,
		asynq.MaxRetry(1)); err != nil {
		logger.Error().Err(err).Msg("failed to register sweep")
		return err
	}

	if err := server.Start(mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		server.Shutdown()
		return fmt.Errorf("start scheduler: %w", err)
	}
	logger.Info().
		Int("concurrency", cfg.WorkerConcurrency).
		Str("sweep_cron", cfg.SweepCron).
		Strs("tenants", cfg.Tenants).
		Msg("worker started")

	// Prometheus scrapes the worker on its own port.
	metricsSrv := echo.New()
	metricsSrv.HideBanner = true
	metricsSrv.HidePort = true
	metricsSrv.GET("/metrics", metrics.Handler())
	go func() {
		if err := metricsSrv.Start(cfg.WorkerMetricsAddr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down worker")
	scheduler.Shutdown()
	server.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown failed")
	}
	logger.Info().Msg("worker stopped")
	return nil
}
