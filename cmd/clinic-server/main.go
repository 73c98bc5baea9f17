package main

import (
	"context"
	"errors"
	"fmt"
	"io"
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

	"github.com/clinic/booking/internal/config"
	"github.com/clinic/booking/internal/domain/identity"
	"github.com/clinic/booking/internal/domain/scheduling"
	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/clinic/booking/internal/platform/auth"
	"github.com/clinic/booking/internal/platform/db"
	"github.com/clinic/booking/internal/platform/middleware"
	"github.com/clinic/booking/internal/platform/notification"
	"github.com/clinic/booking/internal/platform/telemetry"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic appointment booking server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("clinic-server %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, poolConfig(cfg, "clinic-migrate"))
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return err
			}
			if applied == 0 {
				fmt.Println("No pending migrations.")
			} else {
				fmt.Printf("Applied %d migration(s).\n", applied)
			}
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, poolConfig(cfg, "clinic-migrate"))
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.Modified {
						status = "modified"
					}
					appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send due appointment reminders once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(context.Background())
			if err != nil {
				return err
			}
			defer a.Close()

			report := scheduling.NewReminderRunner(a.scheduling, a.cfg.ReminderInterval, a.logger).RunOnce(cmd.Context())
			fmt.Printf("due=%d sent=%d failed=%d\n", report.Due, report.Sent, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d reminder(s) failed", report.Failed)
			}
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo staff accounts and weekly schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")

			a, err := newApp(context.Background())
			if err != nil {
				return err
			}
			defer a.Close()

			return seed(cmd.Context(), a, password)
		},
	}
	cmd.Flags().String("password", "clinic123", "Password for the seeded accounts")
	return cmd
}

// app holds the services shared by the server and the one-shot commands.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	pool        *pgxpool.Pool
	issuer      *auth.TokenIssuer
	revocations *auth.TokenRevocationStore
	mailer      *notification.Mailer
	telemetry   *telemetry.Provider
	identity    *identity.Service
	scheduling  *scheduling.Service
}

// newLogger writes JSON to out, or console lines in development. cfg may be
// nil when configuration itself failed to load.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg, os.Stdout)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, poolConfig(cfg, "clinic-server"))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	var sender notification.EmailSender
	if cfg.SMTPEnabled() {
		smtp, err := notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.EmailHost,
			Port:     cfg.EmailPort,
			Username: cfg.EmailUser,
			Password: cfg.EmailPass,
			From:     cfg.EmailFrom,
		})
		if err != nil {
			pool.Close()
			return nil, err
		}
		sender = smtp
	} else {
		logger.Warn().Msg("EMAIL_HOST not set, e-mails will be logged instead of sent")
		sender = notification.NewLogSender(logger)
	}
	mailer := notification.NewMailer(sender, notification.NewTemplateEngine(), loc, cfg.ReminderHoursBefore, logger)

	tp := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "clinic-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	tp.DescribeCounter(scheduling.MetricBookings, "Public booking attempts by outcome.")
	tp.DescribeCounter(scheduling.MetricReminders, "Reminder e-mails by outcome.")
	tp.RegisterGauge("db_pool_total_connections", "Open database connections.",
		func() int64 { return int64(pool.Stat().TotalConns()) })
	tp.RegisterGauge("db_pool_acquired_connections", "Database connections in use.",
		func() int64 { return int64(pool.Stat().AcquiredConns()) })

	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), "clinic-server", cfg.JWTExpiresIn)
	revocations := auth.NewTokenRevocationStore(10 * time.Minute)
	tp.RegisterGauge("auth_revoked_tokens", "Logged-out tokens that have not expired yet.",
		func() int64 { return int64(revocations.Count()) })
	tx := db.NewTransactor(pool)

	identitySvc := identity.NewService(
		identity.NewUserRepoPG(pool),
		identity.NewDoctorRepoPG(pool),
		tx, issuer, revocations, logger,
	)
	schedulingSvc := scheduling.NewService(
		scheduling.NewDoctorRepoPG(pool),
		scheduling.NewScheduleRepoPG(pool),
		scheduling.NewAppointmentRepoPG(pool),
		tx, mailer,
		scheduling.Config{
			Location:       loc,
			ReminderWindow: cfg.ReminderWindow(),
			Logger:         logger,
			Metrics:        tp,
		},
	)

	return &app{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		issuer:      issuer,
		revocations: revocations,
		mailer:      mailer,
		telemetry:   tp,
		identity:    identitySvc,
		scheduling:  schedulingSvc,
	}, nil
}

func (a *app) Close() {
	a.revocations.Close()
	a.pool.Close()
}

func runServer() error {
	a, err := newApp(context.Background())
	if err != nil {
		l := newLogger(nil, os.Stderr)
		l.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()
	logger := a.logger
	cfg := a.cfg
	logger.Info().Str("timezone", a.scheduling.Location().String()).Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(a.telemetry.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	defer limiter.Close()

	e.GET("/health", db.NewHealthChecker(a.pool, version).Handler())
	e.GET("/metrics", a.telemetry.Handler())

	// API groups
	public := e.Group("/api/public", limiter.Middleware())
	sessions := e.Group("/api/auth", limiter.Middleware())
	api := e.Group("/api", limiter.Middleware(), auth.JWTMiddleware(auth.JWTConfig{
		Issuer:      a.issuer,
		Revocations: a.revocations,
	}))

	identity.NewHandler(a.identity, cfg.IsProduction()).RegisterRoutes(public, sessions, api)
	scheduling.NewHandler(a.scheduling).RegisterRoutes(public, api)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := scheduling.NewReminderRunner(a.scheduling, cfg.ReminderInterval, logger)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Run(ctx)
	}()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting clinic server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	<-runnerDone

	stats := a.mailer.Stats()
	logger.Info().Int64("emails_sent", stats["sent"]).Int64("emails_failed", stats["failed"]).Msg("server stopped")
	return nil
}

func poolConfig(cfg *config.Config, app string) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  app,
	}
}
