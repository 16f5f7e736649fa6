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

	"github.com/dischargeflow/dischargeflow/internal/config"
	"github.com/dischargeflow/dischargeflow/internal/domain/chart"
	"github.com/dischargeflow/dischargeflow/internal/domain/discharge"
	"github.com/dischargeflow/dischargeflow/internal/domain/identity"
	"github.com/dischargeflow/dischargeflow/internal/domain/patient"
	"github.com/dischargeflow/dischargeflow/internal/platform/agent"
	"github.com/dischargeflow/dischargeflow/internal/platform/auth"
	"github.com/dischargeflow/dischargeflow/internal/platform/db"
	"github.com/dischargeflow/dischargeflow/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "dischargeflow-server",
		Short: "Hospital discharge workflow API server",
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
		Short: "Start the API server",
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
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.BodyLimit("2M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	issuer := auth.NewTokenIssuer([]byte(cfg.AuthSecret), cfg.TokenTTL())

	// Authenticated API group
	api := e.Group("/api")
	if cfg.IsDev() {
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(issuer))
	}
	api.Use(middleware.Audit(logger))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))
	api.Use(middleware.RequestTimeout(30 * time.Second))

	// Repositories
	userRepo := identity.NewUserRepoPG(pool)
	patientRepo := patient.NewPatientRepoPG(pool)
	labRepo := chart.NewLabRepoPG(pool)
	medRepo := chart.NewMedicationRepoPG(pool)
	billingRepo := chart.NewBillingRepoPG(pool)
	insuranceRepo := chart.NewInsuranceRepoPG(pool)
	noteRepo := chart.NewNoteRepoPG(pool)
	timelineRepo := chart.NewTimelineRepoPG(pool)
	taskRepo := discharge.NewTaskRepoPG(pool)
	agentLogRepo := discharge.NewAgentLogRepoPG(pool)
	extractionRepo := discharge.NewExtractionRepoPG(pool)

	// Agent client
	agentClient := agent.NewClient(cfg.AgentBaseURL, cfg.AgentAPIKey, cfg.AgentTimeout(), logger)

	// Services
	identitySvc := identity.NewService(userRepo, issuer)
	patientSvc := patient.NewService(patientRepo)
	chartSvc := chart.NewService(patientSvc, labRepo, medRepo, billingRepo, insuranceRepo, noteRepo, timelineRepo)
	patientSvc.SetTimelineRecorder(chartSvc)
	dischargeSvc := discharge.NewService(patientRepo, taskRepo, agentLogRepo, extractionRepo,
		agentClient, agentClient, cfg.AgentTimeout())
	dischargeSvc.SetTimelineRecorder(chartSvc)

	// Routes
	public := e.Group("")
	identity.NewHandler(identitySvc).RegisterRoutes(public, api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	chart.NewHandler(chartSvc).RegisterRoutes(api)
	discharge.NewHandler(dischargeSvc).RegisterRoutes(api)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

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
	// Let in-flight agent calls land before exiting.
	dischargeSvc.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
