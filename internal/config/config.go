// Package config loads the runtime configuration file (conduit.yaml).
// Project registration is not configured here; it lives in config.json
// under the state directory and is managed through chat commands.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration.
type Config struct {
	Discord DiscordConfig `yaml:"discord"`

	// StateDir holds events.ndjson, snapshot.json, and config.json.
	StateDir string `yaml:"state_dir"`

	// LogDir holds per-job logs.
	LogDir string `yaml:"log_dir"`

	Log LogConfig `yaml:"log"`
}

// DiscordConfig configures the chat surface.
type DiscordConfig struct {
	Token   string `yaml:"token"`
	OwnerID string `yaml:"owner_id"`
	AppID   string `yaml:"app_id"`
	GuildID string `yaml:"guild_id"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path, expanding ${ENV_VAR} references before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = "state"
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required")
	}
	if c.Discord.OwnerID == "" {
		return fmt.Errorf("discord.owner_id is required")
	}
	return nil
}

// ProjectsFile returns the path of the project registry.
func (c *Config) ProjectsFile() string {
	return filepath.Join(c.StateDir, "config.json")
}
