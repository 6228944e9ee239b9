// Package main is the entry point for the ciforge controller.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"ciforge/internal/config"
	"ciforge/internal/controller"
	"ciforge/internal/logger"
	"ciforge/internal/observability"
	"ciforge/internal/runtime"
	"ciforge/internal/store/postgres"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file (optional)")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()

	// Setup Database
	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "ciforge-controller", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	// Use an Observable Gauge (Async) that queries the DB only when scraped.
	meter := otel.Meter("ciforge-controller")
	_, err = meter.Int64ObservableGauge("ciforge.jobs.non_terminal",
		metric.WithDescription("Current number of queued or running jobs"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			jobs, err := store.ListNonTerminalJobs(ctx)
			if err != nil {
				log.Printf("Failed to count non-terminal jobs: %v", err)
				return nil // Don't crash metrics scrape on DB error
			}
			obs.Observe(int64(len(jobs)))
			return nil
		}),
	)
	if err != nil {
		log.Printf("Failed to register job gauge: %v", err)
	}

	// Container runtime
	rt, err := buildRuntime(cfg)
	if err != nil {
		log.Fatalf("Failed to init runtime: %v", err)
	}

	reconciler := controller.NewReconciler(store, rt, controller.Config{
		NamespacePrefix: cfg.NamespacePrefix,
		WorkDir:         cfg.RuntimeWorkDir,
		OpTimeout:       30 * time.Second,
	}, slogger)
	ctrl := controller.New(reconciler, cfg.ReconcileInterval, slogger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Metrics endpoint for scraping
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux(metricsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()

	go func() {
		if err := ctrl.Run(runCtx); err != nil {
			log.Printf("Controller stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server forced to shutdown: %v", err)
	}
	log.Println("Controller exited properly")
}

func buildRuntime(cfg *config.Config) (runtime.Runtime, error) {
	if cfg.Runtime == "exec" {
		return runtime.NewExecRuntime(), nil
	}
	return runtime.NewDockerRuntime()
}

func metricsMux(metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
