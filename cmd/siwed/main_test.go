package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"example.com/siwegate/internal/server"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != 8080 || cfg.StorageDir != "data" || cfg.Lang != "en" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Concurrency != runtime.NumCPU() || cfg.MaxBatch != server.DefaultMaxBatch {
		t.Fatalf("unexpected limits %+v", cfg)
	}
	if cfg.Logs.Directory != filepath.Join("data", "logs") || cfg.Logs.Format != "json" {
		t.Fatalf("unexpected log defaults %+v", cfg.Logs)
	}
}

func TestLoadConfigResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	profile := `profiles:
  - name: ci
    securityChecks: true
`
	if err := os.WriteFile(filepath.Join(dir, "ci.yaml"), []byte(profile), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	doc := `port: 9090
storageDir: store
defaultProfile: ci
maxBatch: 50
lang: tr
profiles:
  - id: team
    path: ci.yaml
logs:
  level: debug
`
	path := filepath.Join(dir, "siwed.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != 9090 || cfg.MaxBatch != 50 || cfg.DefaultProfile != "ci" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.StorageDir != filepath.Join(dir, "store") {
		t.Fatalf("storage dir not resolved: %s", cfg.StorageDir)
	}
	if cfg.Profiles[0].Path != filepath.Join(dir, "ci.yaml") {
		t.Fatalf("profile path not resolved: %s", cfg.Profiles[0].Path)
	}
	if cfg.Logs.Directory != filepath.Join(dir, "store", "logs") {
		t.Fatalf("log dir not derived from storage: %s", cfg.Logs.Directory)
	}

	srv, err := server.NewServer(cfg.serverOptions(zap.NewNop(), prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad_port.yaml":   "port: 70000\n",
		"no_path.yaml":    "profiles:\n  - id: x\n",
		"bad_syntax.yaml": "port: [\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := loadConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config")
	}
}
