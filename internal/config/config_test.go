package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Storage.Driver != "memory" || cfg.Gate.Policy != "advisory" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  addr: ":9090"
storage:
  driver: sqlite
  path: /tmp/plan.db
gate:
  policy: strict
log:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PLANCORE_SERVER_ADDR", ":7070")
	t.Setenv("PLANCORE_BLOB_DRIVER", "memory")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("env override lost: %s", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/tmp/plan.db" {
		t.Fatalf("yaml values lost: %+v", cfg.Storage)
	}
	if cfg.Gate.Policy != "strict" || cfg.Log.Level != "debug" {
		t.Fatalf("yaml values lost: %+v", cfg)
	}
	if cfg.Blob.Driver != "memory" {
		t.Fatalf("env override lost: %s", cfg.Blob.Driver)
	}
}

func TestValidationRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("PLANCORE_STORAGE_DRIVER", "etcd")
	if _, err := Load(""); err == nil {
		t.Fatalf("unknown storage driver should fail validation")
	}
	t.Setenv("PLANCORE_STORAGE_DRIVER", "memory")
	t.Setenv("PLANCORE_GATE_POLICY", "yolo")
	if _, err := Load(""); err == nil {
		t.Fatalf("unknown gate policy should fail validation")
	}
}

func TestMissingExplicitFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("explicit missing file should error")
	}
}
