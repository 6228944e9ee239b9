// Package config handles configuration loading for the CIForge binaries.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the controller and API
// processes.
type Config struct {
	// DatabaseURL is the Postgres connection string backing the store.
	DatabaseURL string

	// HTTPAddr is the listen address for the API server.
	HTTPAddr string

	// SpoolDir is where the API stashes uploaded project zips before the
	// Controller consumes them.
	SpoolDir string

	// NamespacePrefix is applied to container names so multiple
	// deployments can share one container runtime host.
	NamespacePrefix string

	// ReconcileInterval is the time between Controller reconciliation
	// passes.
	ReconcileInterval time.Duration

	// QueuedStreamTimeout bounds how long GET /jobs/{id}/stream waits for
	// a queued job to start running before giving up.
	QueuedStreamTimeout time.Duration

	// Runtime selects the container execution backend: "docker" or "exec".
	Runtime string

	// RuntimeWorkDir is the scratch directory the Controller extracts
	// submissions into before handing them to the runtime.
	RuntimeWorkDir string

	// OTELEndpoint is the OTLP gRPC collector address for tracing.
	OTELEndpoint string

	// MetricsAddr is where the controller exposes its Prometheus
	// endpoint; the API serves /metrics on its own HTTPAddr.
	MetricsAddr string
}

// Load reads configuration from an optional YAML file at path, then layers
// environment variables on top (env overrides file; file overrides
// defaults). Pass an empty path to skip the file and rely on environment
// variables and defaults alone.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_addr", ":6161")
	v.SetDefault("spool_dir", "/var/lib/ciforge/spool")
	v.SetDefault("namespace_prefix", "ciforge_")
	v.SetDefault("reconcile_interval", 2*time.Second)
	v.SetDefault("queued_stream_timeout", 30*time.Second)
	v.SetDefault("runtime", "docker")
	v.SetDefault("runtime_workdir", "/var/lib/ciforge/work")
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("metrics_addr", ":9464")

	v.AutomaticEnv()
	// These keys are conventionally shouted in the environment without a
	// prefix (DATABASE_URL, RUNTIME, OTEL_EXPORTER_OTLP_ENDPOINT) the way
	// the rest of the ecosystem names them, rather than a CIFORGE_ prefix.
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("http_addr", "HTTP_ADDR")
	_ = v.BindEnv("spool_dir", "SPOOL_DIR")
	_ = v.BindEnv("namespace_prefix", "NAMESPACE_PREFIX")
	_ = v.BindEnv("reconcile_interval", "RECONCILE_INTERVAL")
	_ = v.BindEnv("queued_stream_timeout", "QUEUED_STREAM_TIMEOUT")
	_ = v.BindEnv("runtime", "RUNTIME")
	_ = v.BindEnv("runtime_workdir", "RUNTIME_WORKDIR")
	_ = v.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("metrics_addr", "METRICS_ADDR")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	dbURL := v.GetString("database_url")
	if dbURL == "" {
		return nil, fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}

	runtime := v.GetString("runtime")
	if runtime != "docker" && runtime != "exec" {
		return nil, fmt.Errorf("invalid runtime %q: must be \"docker\" or \"exec\"", runtime)
	}

	return &Config{
		DatabaseURL:         dbURL,
		HTTPAddr:            v.GetString("http_addr"),
		SpoolDir:            v.GetString("spool_dir"),
		NamespacePrefix:     v.GetString("namespace_prefix"),
		ReconcileInterval:   v.GetDuration("reconcile_interval"),
		QueuedStreamTimeout: v.GetDuration("queued_stream_timeout"),
		Runtime:             runtime,
		RuntimeWorkDir:      v.GetString("runtime_workdir"),
		OTELEndpoint:        v.GetString("otel_endpoint"),
		MetricsAddr:         v.GetString("metrics_addr"),
	}, nil
}
