package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/kailiangshang/team-work/internal/domain"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Simulation domain.RunConfig `toml:"simulation"`
	Narrative  NarrativeConfig  `toml:"narrative"`
	Path       string           `toml:"-"`
}

type ServerConfig struct {
	Addr     string `toml:"addr"`
	DBPath   string `toml:"db_path"`
	PlanPath string `toml:"plan_path"`
}

// NarrativeConfig selects how work-log text is produced. Mode is "template"
// or "api"; the api mode requires an endpoint.
type NarrativeConfig struct {
	Mode           string `toml:"mode"`
	Endpoint       string `toml:"endpoint"`
	AuthToken      string `toml:"auth_token"`
	TimeoutMS      int    `toml:"timeout_ms"`
	Retries        int    `toml:"retries"`
	RetryBackoffMS int    `toml:"retry_backoff_ms"`
}

func (c Config) WithDefaults() Config {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8844"
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = "teamwork.db"
	}
	if c.Narrative.Mode == "" {
		c.Narrative.Mode = "template"
	}
	c.Simulation = c.Simulation.WithDefaults()
	return c
}

func Load(path string) (Config, error) {
	resolved := path
	if resolved == "" {
		resolved = defaultConfigPath()
	}
	if strings.HasPrefix(resolved, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed := strings.TrimPrefix(resolved, "~")
		trimmed = strings.TrimPrefix(trimmed, "\\")
		trimmed = strings.TrimPrefix(trimmed, "/")
		resolved = filepath.Join(home, trimmed)
	}
	resolved = filepath.Clean(resolved)

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(bytes), &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file: %w", err)
	}
	cfg.Path = resolved
	return cfg.WithDefaults(), nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".teamwork/config.toml"
	}
	return filepath.Join(home, ".teamwork", "config.toml")
}
