// Package main is the entry point for the ciforge API server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ciforge/internal/api"
	"ciforge/internal/api/handlers"
	"ciforge/internal/config"
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
	shutdownTracer, err := observability.InitTracer(ctx, "ciforge-api", cfg.OTELEndpoint)
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

	// Container runtime, used only to tail logs for streaming clients.
	rt, err := buildRuntime(cfg)
	if err != nil {
		log.Fatalf("Failed to init runtime: %v", err)
	}

	srv := api.New(cfg.HTTPAddr, store, rt, handlers.Options{
		SpoolDir:            cfg.SpoolDir,
		NamespacePrefix:     cfg.NamespacePrefix,
		QueuedStreamTimeout: cfg.QueuedStreamTimeout,
	}, metricsHandler, slogger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		log.Printf("CIForge API starting on %s", cfg.HTTPAddr)
		if err := srv.Run(runCtx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}

func buildRuntime(cfg *config.Config) (runtime.Runtime, error) {
	if cfg.Runtime == "exec" {
		return runtime.NewExecRuntime(), nil
	}
	return runtime.NewDockerRuntime()
}
