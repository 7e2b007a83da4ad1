package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("missing file should yield defaults, got %+v", cfg)
	}
}

func TestLoadOverridesAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
planner:
  initial-radius-m: 5000
  max-attempts: 6
repair:
  batch-size: -1
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Planner.InitialRadiusM != 5000 || cfg.Planner.MaxAttempts != 6 {
		t.Fatalf("overrides not applied: %+v", cfg.Planner)
	}
	if cfg.Planner.MaxRadiusM != Default().Planner.MaxRadiusM {
		t.Fatal("untouched fields must keep defaults")
	}
	if cfg.Repair.BatchSize != Default().Repair.BatchSize {
		t.Fatalf("invalid batch size must normalize to default, got %d", cfg.Repair.BatchSize)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VRP.TimeBudgetMs != 2000 {
		t.Fatalf("unexpected default: %+v", cfg.VRP)
	}
}
