package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[server]
db_path = "runs.db"

[simulation]
total_days = 14
env_event_probability = 0.5

[narrative]
mode = "api"
endpoint = "http://127.0.0.1:9000/narrate"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr == "" {
		t.Fatalf("addr default missing")
	}
	if cfg.Server.DBPath != "runs.db" {
		t.Fatalf("db_path = %q", cfg.Server.DBPath)
	}
	if cfg.Simulation.TotalDays != 14 || cfg.Simulation.DisruptionChance != 0.5 {
		t.Fatalf("simulation section lost: %+v", cfg.Simulation)
	}
	if cfg.Simulation.WorkingHoursPerDay != 8 {
		t.Fatalf("working hours default = %.1f, want 8", cfg.Simulation.WorkingHoursPerDay)
	}
	if cfg.Narrative.Mode != "api" || cfg.Narrative.Endpoint == "" {
		t.Fatalf("narrative section lost: %+v", cfg.Narrative)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
