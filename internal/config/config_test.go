package config

import (
	"os"
	"testing"
)

func TestConfigLoad_Defaults(t *testing.T) {
	_ = os.Unsetenv("OPENMEM_BUILD_TARGET")
	_ = os.Unsetenv("OPENMEM_DB_DRIVER")
	_ = os.Unsetenv("OPENMEM_HTTP_PORT")

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.BuildTarget != "local" || cfg.DBDriver != "sqlite" || cfg.HTTPPort != 8765 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SearchAlpha != 0.6 || cfg.WeaviateURL != "localhost:8080" {
		t.Fatalf("unexpected vector defaults: %+v", cfg)
	}
}

func TestConfigLoad_EnvOverride(t *testing.T) {
	_ = os.Setenv("OPENMEM_HTTP_PORT", "9000")
	defer func() { _ = os.Unsetenv("OPENMEM_HTTP_PORT") }()

	cfg, err := New()
	if err != nil {
		t.Fatalf("config load: %v", err)
	}
	if cfg.HTTPPort != 9000 {
		t.Fatalf("http port env override failed, got %d", cfg.HTTPPort)
	}
	if cfg.GetHTTPAddr() != ":9000" {
		t.Fatalf("unexpected http addr: %s", cfg.GetHTTPAddr())
	}
}

func TestResolveDefaults_CloudRequiresDSN(t *testing.T) {
	cfg := &Config{BuildTarget: "cloud-dev", DBDriver: "auto"}
	if err := cfg.ResolveDefaults(); err == nil {
		t.Fatal("expected error for postgres driver without DSN")
	}

	cfg = &Config{BuildTarget: "cloud-dev", DBDriver: "auto", PostgresDSN: "postgres://localhost/openmem"}
	if err := cfg.ResolveDefaults(); err != nil {
		t.Fatalf("resolve defaults: %v", err)
	}
	if cfg.DBDriver != "postgres" {
		t.Fatalf("expected postgres driver, got %s", cfg.DBDriver)
	}
}

func TestResolveDefaults_InvalidValues(t *testing.T) {
	cfg := &Config{BuildTarget: "staging"}
	if err := cfg.ResolveDefaults(); err == nil {
		t.Fatal("expected error for unknown build target")
	}

	cfg = &Config{BuildTarget: "local", DBDriver: "oracle"}
	if err := cfg.ResolveDefaults(); err == nil {
		t.Fatal("expected error for unknown db driver")
	}
}

func TestResolveDefaults_ExplicitDriverWins(t *testing.T) {
	cfg := &Config{BuildTarget: "local", DBDriver: "sqlite", SQLitePath: "x.db"}
	if err := cfg.ResolveDefaults(); err != nil {
		t.Fatalf("resolve defaults: %v", err)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected sqlite driver, got %s", cfg.DBDriver)
	}
}
