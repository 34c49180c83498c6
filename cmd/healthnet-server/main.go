package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthnet/healthnet/internal/config"
	"github.com/healthnet/healthnet/internal/domain/assignment"
	"github.com/healthnet/healthnet/internal/domain/auditevent"
	"github.com/healthnet/healthnet/internal/domain/clinical"
	"github.com/healthnet/healthnet/internal/domain/emergency"
	"github.com/healthnet/healthnet/internal/domain/identity"
	"github.com/healthnet/healthnet/internal/domain/notification"
	"github.com/healthnet/healthnet/internal/domain/qrcode"
	"github.com/healthnet/healthnet/internal/domain/scheduling"
	"github.com/healthnet/healthnet/internal/domain/stats"
	"github.com/healthnet/healthnet/internal/platform/auth"
	"github.com/healthnet/healthnet/internal/platform/blobstore"
	"github.com/healthnet/healthnet/internal/platform/db"
	"github.com/healthnet/healthnet/internal/platform/httperr"
	"github.com/healthnet/healthnet/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "healthnet-server",
		Short: "HealthNet EHR API Server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HealthNet API server",
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

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

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

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the bootstrap admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

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

			issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL())
			svc := identity.NewService(identity.NewRepoPG(pool), issuer, db.NewTxRunner(pool))
			u, err := svc.SeedAdmin(ctx, name, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Admin ready: %s (%s)\n", u.Email, u.BusinessID)
			return nil
		},
	}
	cmd.Flags().String("name", "Administrator", "Admin display name")
	cmd.Flags().String("email", "", "Admin email")
	cmd.Flags().String("password", "", "Admin password")
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	blobs, err := blobstore.NewLocalStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare upload directory")
	}

	tx := db.NewTxRunner(pool)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL())

	// Services
	auditRepo := auditevent.NewRepoPG(pool)
	auditSvc := auditevent.NewService(auditRepo)
	recorder := auditevent.NewRecorder(auditRepo, logger)

	notifSvc := notification.NewService(notification.NewRepoPG(pool))
	notifier := notification.NewNotifier(notifSvc, logger)

	identitySvc := identity.NewService(identity.NewRepoPG(pool), issuer, tx)
	assignSvc := assignment.NewService(assignment.NewRepoPG(pool), identitySvc, notifier)
	clinicalSvc := clinical.NewService(
		clinical.NewDiagnosisRepoPG(pool), clinical.NewLabResultRepoPG(pool),
		assignSvc, identitySvc, notifier, blobs)
	schedSvc := scheduling.NewService(scheduling.NewRepoPG(pool), assignSvc, notifier)
	emergencySvc := emergency.NewService(emergency.NewRepoPG(pool), identitySvc, clinicalSvc, assignSvc, tx)
	qrSvc := qrcode.NewService(qrcode.NewRepoPG(pool), identitySvc, emergencySvc, clinicalSvc, tx, cfg.QRBaseURL)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httperr.Handler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	api.Use(auth.Middleware(issuer, identitySvc, auth.PublicPathSkipper(
		"/api/auth/login",
		"/api/qr/scan/",
		"/api/qr/v/",
		"/api/qr/emergency-search/",
		"/api/public/",
	)))

	identity.NewHandler(identitySvc, recorder).RegisterRoutes(api)
	assignment.NewHandler(assignSvc, recorder).RegisterRoutes(api)
	clinical.NewHandler(clinicalSvc, recorder).RegisterRoutes(api)
	scheduling.NewHandler(schedSvc).RegisterRoutes(api)
	emergency.NewHandler(emergencySvc).RegisterRoutes(api)
	qrcode.NewHandler(qrSvc, recorder, cfg.FrontendURL).RegisterRoutes(api)
	notification.NewHandler(notifSvc).RegisterRoutes(api)
	auditevent.NewHandler(auditSvc).RegisterRoutes(api)
	stats.NewHandler(stats.NewRepoPG(pool)).RegisterRoutes(api)

	e.GET("/health", db.HealthHandler(pool))
	e.Static("/uploads", cfg.UploadDir)

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
