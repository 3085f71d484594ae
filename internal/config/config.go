// Package config holds all fabula configuration: provider access, retry and
// timeout budgets, chain depths, and simulation settings. Configuration is
// loaded from a YAML file and can be overridden via FABULA_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all fabula configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Provider configures the generative-text provider transport.
	Provider ProviderConfig `yaml:"provider"`

	// Chains configures rolling-context depth per chain type.
	Chains ChainsConfig `yaml:"chains"`

	// World configures the simulation.
	World WorldConfig `yaml:"world"`

	// Snapshot configures world persistence.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Logging configures categorized debug logging.
	Logging LoggingConfig `yaml:"logging"`
}

// ProviderConfig configures the provider transport.
type ProviderConfig struct {
	APIKey          string           `yaml:"api_key"`
	BaseURL         string           `yaml:"base_url"`
	Model           string           `yaml:"model"`
	MaxOutputTokens int              `yaml:"max_output_tokens"`
	Timeouts        ProviderTimeouts `yaml:"timeouts"`
}

// ChainsConfig configures response-chain depth per chain type.
// Depth 0 means fully independent, context-free requests.
type ChainsConfig struct {
	Intention int `yaml:"intention"`
	Narration int `yaml:"narration"`
	Memory    int `yaml:"memory"`
}

// DepthFor returns the configured depth for a chain type. Unknown chain
// types get depth 0 (no chaining).
func (c ChainsConfig) DepthFor(chainType string) int {
	switch chainType {
	case "intention":
		return c.Intention
	case "narration":
		return c.Narration
	case "memory":
		return c.Memory
	default:
		return 0
	}
}

// WorldConfig configures the simulation loop.
type WorldConfig struct {
	SeedPath     string `yaml:"seed_path"`     // Initial world definition
	MaxTicks     int    `yaml:"max_ticks"`     // 0 = run until interrupted
	TickInterval string `yaml:"tick_interval"` // Pause between ticks, e.g. "5s"
}

// TickIntervalDuration parses the tick interval, defaulting to zero.
func (w WorldConfig) TickIntervalDuration() time.Duration {
	if w.TickInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(w.TickInterval)
	if err != nil {
		return 0
	}
	return d
}

// SnapshotConfig configures world persistence.
type SnapshotConfig struct {
	DatabasePath string `yaml:"database_path"`
	KeepHistory  int    `yaml:"keep_history"` // Ticks of history to retain, 0 = all
}

// LoggingConfig configures the categorized logger.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"`
	DataDir   string `yaml:"data_dir"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Name:    "fabula",
		Version: "0.3.0",
		Provider: ProviderConfig{
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			MaxOutputTokens: 4096,
			Timeouts:        DefaultProviderTimeouts(),
		},
		Chains: ChainsConfig{
			Intention: 3,
			Narration: 2,
			Memory:    0,
		},
		World: WorldConfig{
			SeedPath:     "world.yaml",
			TickInterval: "0s",
		},
		Snapshot: SnapshotConfig{
			DatabasePath: ".fabula/world.db",
			KeepHistory:  50,
		},
		Logging: LoggingConfig{
			Level:   "info",
			DataDir: ".fabula",
		},
	}
}

// Load reads configuration from the given YAML file, applies defaults for
// missing fields, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Provider.Timeouts.fillDefaults()

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides maps FABULA_* environment variables onto the config.
// Environment always wins over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FABULA_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("FABULA_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("FABULA_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("FABULA_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Provider.Timeouts.MaxRetries = n
		}
	}
	if v := os.Getenv("FABULA_DEBUG"); v != "" {
		cfg.Logging.DebugMode = v == "1" || v == "true"
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider api_key not configured (set FABULA_API_KEY)")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base_url not configured")
	}
	if c.Chains.Intention < 0 || c.Chains.Narration < 0 || c.Chains.Memory < 0 {
		return fmt.Errorf("chain depths must be non-negative")
	}
	return nil
}
