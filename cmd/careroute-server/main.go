package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/careroute/careroute/internal/config"
	"github.com/careroute/careroute/internal/domain/assignment"
	"github.com/careroute/careroute/internal/domain/query"
	"github.com/careroute/careroute/internal/domain/registry"
	"github.com/careroute/careroute/internal/domain/routing"
	"github.com/careroute/careroute/internal/platform/aidraft"
	"github.com/careroute/careroute/internal/platform/auth"
	"github.com/careroute/careroute/internal/platform/db"
	"github.com/careroute/careroute/internal/platform/middleware"
	"github.com/careroute/careroute/internal/platform/store"
)

// version is overridable at build time via -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "careroute-server",
		Short: "Patient medical query triage and routing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

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

	openPool := func(ctx context.Context) (*pgxpool.Pool, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if !cfg.UsesPostgres() {
			return nil, fmt.Errorf("DATABASE_URL is required for migrations")
		}
		return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
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

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("reading migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			reverted, err := db.NewMigrator(pool, dir).Down(ctx)
			if err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			if reverted == 0 {
				fmt.Println("No applied migrations to revert.")
				return nil
			}
			fmt.Printf("Reverted migration %d.\n", reverted)
			return nil
		},
	}
	downCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(downCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load a demo dataset of doctors, patients, and queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			ctx := context.Background()

			if cfg.UsesPostgres() {
				pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
				if err != nil {
					return err
				}
				defer pool.Close()

				patients := registry.NewPatientRepoPG(pool)
				doctors := registry.NewDoctorRepoPG(pool)
				regSvc := registry.NewService(patients, doctors)
				querySvc := query.NewService(query.NewRepoPG(pool), patients, doctors,
					routing.NewRouter(), nil, logger)

				// One transaction so a partial seed never persists.
				txCtx, tx, err := db.WithTx(ctx, pool)
				if err != nil {
					return err
				}
				defer tx.Rollback(ctx)

				if err := seedDemoData(txCtx, regSvc, querySvc); err != nil {
					return err
				}
				if err := tx.Commit(ctx); err != nil {
					return fmt.Errorf("committing seed data: %w", err)
				}
				logger.Info().Msg("demo dataset seeded into postgres")
				return nil
			}

			st := store.NewMemory(cfg.SnapshotPath, logger)
			if err := st.Load(); err != nil {
				return err
			}
			regSvc := registry.NewService(st.Patients(), st.Doctors())
			querySvc := query.NewService(st.Queries(), st.Patients(), st.Doctors(),
				routing.NewRouter(), nil, logger)

			if err := seedDemoData(ctx, regSvc, querySvc); err != nil {
				return err
			}
			if err := st.Save(); err != nil {
				return err
			}
			logger.Info().Str("path", cfg.SnapshotPath).Msg("demo dataset seeded into snapshot")
			return nil
		},
	}
}

// seedDemoData loads a small roster through the services so every invariant
// (unique emails, assignment before submission, triage) applies to the demo
// data exactly as it would to API traffic.
func seedDemoData(ctx context.Context, reg *registry.Service, queries *query.Service) error {
	intPtr := func(v int) *int { return &v }
	floatPtr := func(v float64) *float64 { return &v }

	chen, err := reg.RegisterDoctor(ctx, registry.RegisterDoctorInput{
		Name:                 "Dr. Sarah Chen",
		Specialties:          []registry.Specialty{registry.SpecialtyCardiology, registry.SpecialtyGeneralPractice},
		YearsOfExperience:    12,
		AverageResponseTime:  intPtr(35),
		SatisfactionRating:   floatPtr(9.1),
		TotalPatientsManaged: 48,
	})
	if err != nil {
		return fmt.Errorf("seeding doctor: %w", err)
	}

	alvarez, err := reg.RegisterDoctor(ctx, registry.RegisterDoctorInput{
		Name:                 "Dr. Miguel Alvarez",
		Specialties:          []registry.Specialty{registry.SpecialtyDermatology, registry.SpecialtyPediatrics},
		YearsOfExperience:    8,
		AverageResponseTime:  intPtr(50),
		SatisfactionRating:   floatPtr(8.4),
		TotalPatientsManaged: 31,
	})
	if err != nil {
		return fmt.Errorf("seeding doctor: %w", err)
	}

	if _, err := reg.RegisterDoctor(ctx, registry.RegisterDoctorInput{
		Name:              "Dr. Priya Nair",
		Specialties:       []registry.Specialty{registry.SpecialtyGeneralPractice},
		YearsOfExperience: 15,
	}); err != nil {
		return fmt.Errorf("seeding doctor: %w", err)
	}

	alice, err := reg.RegisterPatient(ctx, registry.RegisterPatientInput{
		Name:           "Alice Johnson",
		Condition:      "hypertension",
		Email:          "alice.johnson@example.com",
		DateOfBirth:    "1979-03-22",
		MedicalHistory: []string{"hypertension diagnosed 2019", "family history of heart disease"},
	})
	if err != nil {
		return fmt.Errorf("seeding patient: %w", err)
	}

	ben, err := reg.RegisterPatient(ctx, registry.RegisterPatientInput{
		Name:        "Ben Okafor",
		Condition:   "recurring eczema",
		Email:       "ben.okafor@example.com",
		DateOfBirth: "1992-11-05",
	})
	if err != nil {
		return fmt.Errorf("seeding patient: %w", err)
	}

	if _, err := reg.RegisterPatient(ctx, registry.RegisterPatientInput{
		Name:        "Clara Svensson",
		Condition:   "chronic migraines",
		Email:       "clara.svensson@example.com",
		DateOfBirth: "1986-07-14",
	}); err != nil {
		return fmt.Errorf("seeding patient: %w", err)
	}

	if _, err := reg.AssignPatientToDoctor(ctx, alice.ID, chen.ID); err != nil {
		return fmt.Errorf("assigning patient: %w", err)
	}
	if _, err := reg.AssignPatientToDoctor(ctx, ben.ID, alvarez.ID); err != nil {
		return fmt.Errorf("assigning patient: %w", err)
	}

	if _, err := queries.Submit(ctx, query.SubmitInput{
		PatientID:   alice.ID,
		Title:       "Chest tightness when climbing stairs",
		Description: "For the past week I feel pressure in my chest after one flight of stairs. It eases after a few minutes of rest.",
		Priority:    query.PriorityHigh,
	}); err != nil {
		return fmt.Errorf("seeding query: %w", err)
	}

	if _, err := queries.Submit(ctx, query.SubmitInput{
		PatientID:   ben.ID,
		Title:       "Rash spreading on forearm",
		Description: "An itchy red rash appeared on my left forearm three days ago and has slowly grown since.",
	}); err != nil {
		return fmt.Errorf("seeding query: %w", err)
	}

	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		logger = logger.Level(lvl)
	}
	return logger
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	// Persistence: postgres when configured, otherwise the file-backed
	// in-memory store.
	var (
		patients  registry.PatientRepository
		doctors   registry.DoctorRepository
		queryRepo query.Repository
		mem       *store.MemoryStore
		pool      *pgxpool.Pool
	)
	if cfg.UsesPostgres() {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		patients = registry.NewPatientRepoPG(pool)
		doctors = registry.NewDoctorRepoPG(pool)
		queryRepo = query.NewRepoPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		mem = store.NewMemory(cfg.SnapshotPath, logger)
		if err := mem.Load(); err != nil {
			logger.Fatal().Err(err).Msg("failed to load snapshot")
		}
		patients = mem.Patients()
		doctors = mem.Doctors()
		queryRepo = mem.Queries()
		logger.Info().Str("path", cfg.SnapshotPath).Msg("using in-memory store")
	}

	// Services
	regSvc := registry.NewService(patients, doctors)

	var drafts query.DraftClient
	if cfg.AIDraftURL != "" {
		drafts = aidraft.New(cfg.AIDraftURL, cfg.AIDraftProvider, cfg.AIDraftTimeout)
		logger.Info().Str("url", cfg.AIDraftURL).Msg("draft assistant enabled")
	} else {
		logger.Info().Msg("draft assistant disabled")
	}
	querySvc := query.NewService(queryRepo, patients, doctors, routing.NewRouter(), drafts, logger)
	engine := assignment.NewEngine()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.MaxBodySize))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	// Auth middleware
	if cfg.AuthEnabled {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Secret: []byte(cfg.AuthJWTSecret),
			Issuer: "careroute",
		}))
	} else {
		e.Use(auth.DevAuthMiddleware())
		logger.Warn().Msg("auth disabled; every request is treated as admin")
	}

	// API group with rate limiting
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Domain handlers
	registry.NewHandler(regSvc).RegisterRoutes(apiV1)
	query.NewHandler(querySvc).RegisterRoutes(apiV1)
	assignment.NewHandler(engine, regSvc, querySvc).RegisterRoutes(apiV1)

	// Health checks
	storeKind := "memory"
	if cfg.UsesPostgres() {
		storeKind = "postgres"
	}
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "careroute",
			"version": version,
			"store":   storeKind,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// Periodic snapshots for the in-memory store
	if mem != nil {
		autosaveCtx, cancelAutosave := context.WithCancel(ctx)
		defer cancelAutosave()
		mem.StartAutosave(autosaveCtx, cfg.SnapshotInterval)
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", storeKind).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if mem != nil {
		if err := mem.Save(); err != nil {
			logger.Error().Err(err).Msg("final snapshot failed")
		} else {
			logger.Info().Msg("final snapshot saved")
		}
	}
	logger.Info().Msg("server stopped")
	return nil
}
