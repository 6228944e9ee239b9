package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
	if err.Error() != "database_url is required (env: DATABASE_URL)" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ciforge")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPAddr != ":6161" {
		t.Errorf("expected HTTPAddr :6161, got %s", cfg.HTTPAddr)
	}
	if cfg.NamespacePrefix != "ciforge_" {
		t.Errorf("expected NamespacePrefix ciforge_, got %s", cfg.NamespacePrefix)
	}
	if cfg.ReconcileInterval != 2*time.Second {
		t.Errorf("expected ReconcileInterval 2s, got %v", cfg.ReconcileInterval)
	}
	if cfg.QueuedStreamTimeout != 30*time.Second {
		t.Errorf("expected QueuedStreamTimeout 30s, got %v", cfg.QueuedStreamTimeout)
	}
	if cfg.Runtime != "docker" {
		t.Errorf("expected Runtime docker, got %s", cfg.Runtime)
	}
	if cfg.OTELEndpoint != "localhost:4317" {
		t.Errorf("expected OTELEndpoint localhost:4317, got %s", cfg.OTELEndpoint)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://custom/db")
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("NAMESPACE_PREFIX", "ci_staging_")
	t.Setenv("RECONCILE_INTERVAL", "5s")
	t.Setenv("RUNTIME", "exec")
	t.Setenv("RUNTIME_WORKDIR", "/tmp/ciforge-work")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgres://custom/db" {
		t.Errorf("expected DatabaseURL from env, got %s", cfg.DatabaseURL)
	}
	if cfg.HTTPAddr != ":9999" {
		t.Errorf("expected HTTPAddr :9999, got %s", cfg.HTTPAddr)
	}
	if cfg.NamespacePrefix != "ci_staging_" {
		t.Errorf("expected NamespacePrefix ci_staging_, got %s", cfg.NamespacePrefix)
	}
	if cfg.ReconcileInterval != 5*time.Second {
		t.Errorf("expected ReconcileInterval 5s, got %v", cfg.ReconcileInterval)
	}
	if cfg.Runtime != "exec" {
		t.Errorf("expected Runtime exec, got %s", cfg.Runtime)
	}
	if cfg.RuntimeWorkDir != "/tmp/ciforge-work" {
		t.Errorf("expected RuntimeWorkDir /tmp/ciforge-work, got %s", cfg.RuntimeWorkDir)
	}
	if cfg.OTELEndpoint != "otel-collector:4317" {
		t.Errorf("expected OTELEndpoint otel-collector:4317, got %s", cfg.OTELEndpoint)
	}
}

func TestLoad_InvalidRuntimeRejected(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ciforge")
	t.Setenv("RUNTIME", "kubernetes")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for invalid runtime")
	}
}

func TestLoad_ConfigFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ciforge.yaml")
	contents := "database_url: postgres://file/db\nnamespace_prefix: ci_file_\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("DATABASE_URL", "")
	t.Setenv("NAMESPACE_PREFIX", "ci_env_")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseURL != "postgres://file/db" {
		t.Errorf("expected DatabaseURL from file, got %s", cfg.DatabaseURL)
	}
	// Env overrides file.
	if cfg.NamespacePrefix != "ci_env_" {
		t.Errorf("expected NamespacePrefix from env to win over file, got %s", cfg.NamespacePrefix)
	}
}

func TestLoad_InvalidConfigFilePath(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ciforge")

	_, err := Load("/nonexistent/path/ciforge.yaml")
	if err == nil {
		t.Fatal("expected error for unreadable config file")
	}
}
