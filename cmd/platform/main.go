package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/echoledger/platform/internal/audit"
	"github.com/echoledger/platform/internal/classification"
	"github.com/echoledger/platform/internal/directive"
	"github.com/echoledger/platform/internal/ehr"
	"github.com/echoledger/platform/internal/emergency"
	"github.com/echoledger/platform/internal/executor"
	"github.com/echoledger/platform/internal/shared/auth"
	"github.com/echoledger/platform/internal/shared/config"
	"github.com/echoledger/platform/internal/shared/database"
	"github.com/echoledger/platform/internal/shared/events"
	"github.com/echoledger/platform/internal/shared/metrics"
	secmiddleware "github.com/echoledger/platform/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config  *config.Config
	DB      *database.DB
	Bus     events.EventBus
	Records ehr.Adapter
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg, Bus: events.NoopBus{}}

	// Initialize database (optional - skip if not available)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("Warning: Database not available: %v\n", err)
		fmt.Println("Running with in-memory storage...")
	} else {
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: Migration failed: %v\n", err)
		}
	}

	// Initialize event bus with KurrentDB (optional - skip if not available)
	bus, err := events.NewBus(ctx, cfg.KurrentDB)
	if err != nil {
		fmt.Printf("Warning: KurrentDB not available: %v\n", err)
		fmt.Println("Running without event streaming...")
	} else {
		app.Bus = bus
		defer bus.Close()
		fmt.Println("KurrentDB Event Bus initialized")
	}

	// EHR adapter
	records, err := ehr.New(cfg.EHR)
	if err != nil {
		fmt.Printf("Warning: EHR adapter failed: %v\n", err)
		records = ehr.NoopAdapter{}
	}
	app.Records = records
	defer records.Close()
	fmt.Printf("EHR adapter: %s\n", records.SourceSystem())

	// Classification engine
	lexicon := classification.DefaultLexicon()
	var external classification.ExternalClassifier
	if cfg.Classifier.ExternalEnabled {
		external = classification.NewHTTPClassifier(cfg.Classifier.ExternalURL, cfg.Classifier.ExternalTimeout)
	}
	classifier := classification.NewService(cfg.Classifier, lexicon, external, app.Bus)

	// Directive registry: Postgres when available, in-memory otherwise
	var directiveRepo directive.Repository
	if app.DB != nil {
		directiveRepo = directive.NewPostgresRepository(app.DB.Pool)
	} else {
		directiveRepo = directive.NewMemoryRepository()
	}

	// Audit trail: Postgres when available, in-memory otherwise
	var auditRepo audit.Repository
	if app.DB != nil {
		auditRepo = audit.NewPostgresRepository(app.DB.Pool)
	} else {
		auditRepo = audit.NewMemoryRepository()
	}
	if err := auditRepo.Initialize(ctx); err != nil {
		fmt.Printf("Warning: Audit initialization failed: %v\n", err)
	}

	auditSubscriber := audit.NewSubscriber(auditRepo, app.Bus)
	if err := auditSubscriber.Start(ctx); err != nil {
		fmt.Printf("Warning: Audit subscriber failed to start: %v\n", err)
	} else {
		fmt.Println("Audit subscriber started")
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	limiter := secmiddleware.NewIPRateLimiter(100, 200, []string{"/health", "/ready", "/metrics"})
	r.Use(limiter.Middleware)
	r.Use(secmiddleware.InputSanitizer)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		// Classification engine
		classificationHandler := classification.NewHandler(classifier, lexicon)
		r.Mount("/classification", classificationHandler.Routes())

		// Directive registry
		directiveHandler := directive.NewHandler(classifier, directiveRepo, app.Bus, app.Records)
		r.Mount("/", directiveHandler.Routes())

		// Emergency bridge
		emergencyService := emergency.NewService(directiveRepo, emergency.LogAlertSender{}, app.Bus)
		emergencyHandler := emergency.NewHandler(emergencyService, cfg.Auth)
		r.Mount("/emergency", emergencyHandler.Routes())

		// Directive executor
		if cfg.Executor.Enabled {
			executorService := executor.NewService(
				directiveRepo,
				executor.RegistryDeathVerifier{},
				executor.LogCenterNotifier{},
				app.Bus,
				cfg.Executor.ResearchInstitutions,
			)
			executorHandler := executor.NewHandler(executorService, cfg.Executor.OrganNetworks)
			r.Mount("/executor", executorHandler.Routes())
			fmt.Println("Directive Executor enabled")
		}

		// Audit trail
		auditHandler := audit.NewHandler(auditRepo)
		r.Mount("/audit", auditHandler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("EchoLedger Advance Directive Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Escalation:     %s (enabled: %v)\n", cfg.Classifier.ExternalURL, cfg.Classifier.ExternalEnabled)
	fmt.Printf("EHR Adapter:    %s\n", records.SourceSystem())
	fmt.Printf("KurrentDB:      %s:%d\n", cfg.KurrentDB.Host, cfg.KurrentDB.Port)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "EchoLedger Advance Directive Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if _, ok := app.Bus.(events.NoopBus); !ok {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		if app.Records.SourceSystem() != "none" {
			if err := app.Records.Health(r.Context()); err != nil {
				checks["ehr"] = "not ready: " + err.Error()
			} else {
				checks["ehr"] = "ready"
			}
		} else {
			checks["ehr"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
