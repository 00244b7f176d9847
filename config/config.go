// Package config aggregates per-subsystem configuration into one JSON config
// file with environment overrides for the deployment surface.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/stewardlabs/steward/gateway"
	"github.com/stewardlabs/steward/orchestrator"
	"github.com/stewardlabs/steward/server"
	"github.com/stewardlabs/steward/session"
	"github.com/stewardlabs/steward/tools/gcp"
)

// Config holds initialization parameters for all subsystems. Each section
// delegates to that subsystem's config-driven constructor.
type Config struct {
	Gateway      gateway.Config      `json:"gateway"`
	Session      session.Config      `json:"session"`
	Orchestrator orchestrator.Config `json:"orchestrator"`
	Tools        gcp.Config          `json:"tools"`
	Server       server.Config       `json:"server"`
}

// Default returns a Config with sensible defaults for all subsystems.
func Default() Config {
	return Config{
		Gateway:      gateway.DefaultConfig(),
		Session:      session.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
		Tools:        gcp.DefaultConfig(),
		Server:       server.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c, delegating to each
// subsystem's Merge method.
func (c *Config) Merge(source *Config) {
	c.Gateway.Merge(&source.Gateway)
	c.Session.Merge(&source.Session)
	c.Orchestrator.Merge(&source.Orchestrator)
	c.Tools.Merge(&source.Tools)
	c.Server.Merge(&source.Server)
}

// Load reads a JSON config file and merges it over defaults. An empty
// filename yields the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// ApplyEnv overlays the deployment environment variables onto c. These are
// the knobs the surrounding service sets per environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("MODEL_NAME"); v != "" {
		c.Gateway.Model = v
	}
	if v := os.Getenv("GCP_HELPER_URL"); v != "" {
		c.Tools.HelperURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
}
