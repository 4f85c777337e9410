package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// ModelRouting maps a routing category (e.g. "default", "fast", "reasoning")
// to the model name used for it, so callers can request "the fast model"
// without hard-coding a provider's model string.
type ModelRouting map[string]string

// Config is the application's own configuration — everything named in §6's
// environment-configuration list. Unlike the policy document, this is
// loaded once at startup and never hot-reloaded.
type Config struct {
	APIKey            string        `yaml:"api_key"`
	StorageURL        string        `yaml:"storage_url"`
	ModelEndpointURL  string        `yaml:"model_endpoint_url"`
	TokenBudget       int           `yaml:"token_budget"`
	ContextWindowSize int           `yaml:"context_window_size"`
	DefaultModels     ModelRouting  `yaml:"default_models"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ApprovalTimeout   time.Duration `yaml:"approval_timeout"`
	PolicyDocPath     string        `yaml:"policy_doc_path"`
	ListenAddr        string        `yaml:"listen_addr"`
}

// defaults applied to any field left unset by the document or environment.
func (c *Config) applyDefaults() {
	if c.TokenBudget <= 0 {
		c.TokenBudget = 100_000
	}
	if c.ContextWindowSize <= 0 {
		c.ContextWindowSize = 200_000
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = 5 * time.Minute
	}
	if c.PolicyDocPath == "" {
		c.PolicyDocPath = "policy.yaml"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if len(c.DefaultModels) == 0 {
		c.DefaultModels = ModelRouting{"default": "claude-sonnet-4-20250514"}
	}
}

// Load reads path, applies environment-variable overrides for the three
// secret/deployment-specific fields, fills defaults, and validates that
// APIKey is present — fail-closed, per the policy engine's own startup
// contract: a misconfigured deployment must not start serving requests.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("config: api_key is required (set api_key or AEGIS_API_KEY)")
	}

	return cfg, nil
}

// applyEnvOverrides lets the three deployment-specific fields be supplied
// without editing the checked-in document — the usual way a secret reaches
// a process.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AEGIS_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("AEGIS_STORAGE_URL"); v != "" {
		cfg.StorageURL = v
	}
	if v := os.Getenv("AEGIS_MODEL_ENDPOINT_URL"); v != "" {
		cfg.ModelEndpointURL = v
	}
}
