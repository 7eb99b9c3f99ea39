// Package common provides shared utilities for Nutriome
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Nutriome
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Data        DataConfig      `toml:"data"`
	Model       ModelConfig     `toml:"model"`
	Bootstrap   BootstrapConfig `toml:"bootstrap"`
	Cache       CacheConfig     `toml:"cache"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string  `toml:"host"`
	Port           int     `toml:"port"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"`   // sustained requests per second, 0 disables limiting
	RateLimitBurst int     `toml:"rate_limit_burst"` // burst size for the limiter
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// DataConfig points at the abundance table loaded on startup.
// Path may be empty; datasets can also be posted to the API at runtime.
type DataConfig struct {
	Path string `toml:"path"` // TSV: species rows, sample columns
	Name string `toml:"name"` // registry name for the startup dataset
}

// ModelConfig holds the scoring model configuration surface: the
// trait reference data and the per-nutrient coefficient table.
// Empty maps fall back to the built-in reference defaults.
type ModelConfig struct {
	UnknownSpecies string                        `toml:"unknown_species"` // "neutral" (default) or "reject"
	Traits         map[string]map[string]float64 `toml:"traits"`          // genus -> trait -> weight, merged over defaults
	DefaultRow     map[string]float64            `toml:"default_row"`     // optional fallback weights for unmapped genera
	Coefficients   map[string]map[string]float64 `toml:"coefficients"`    // nutrient -> trait -> coefficient, replaces defaults per nutrient
}

// BootstrapConfig holds defaults for bootstrap simulation requests.
// Requests may override repetitions, noise, and seed per call.
type BootstrapConfig struct {
	Repetitions int     `toml:"repetitions"`
	NoiseKind   string  `toml:"noise_kind"` // "lognormal" or "normal"
	NoiseSigma  float64 `toml:"noise_sigma"`
	Workers     int     `toml:"workers"` // bounded fan-out, 0 means GOMAXPROCS
}

// CacheConfig holds the result memoization settings.
type CacheConfig struct {
	MemoSize int `toml:"memo_size"` // max memoized profiles/simulations
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Model: ModelConfig{
			UnknownSpecies: "neutral",
		},
		Bootstrap: BootstrapConfig{
			Repetitions: 200,
			NoiseKind:   "lognormal",
			NoiseSigma:  0.1,
		},
		Cache: CacheConfig{
			MemoSize: 512,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("NUTRIOME_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("NUTRIOME_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("NUTRIOME_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("NUTRIOME_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("NUTRIOME_DATA_PATH"); path != "" {
		config.Data.Path = path
	}

	if reps := os.Getenv("NUTRIOME_BOOTSTRAP_REPS"); reps != "" {
		if n, err := strconv.Atoi(reps); err == nil && n > 0 {
			config.Bootstrap.Repetitions = n
		}
	}
}

// validate rejects configuration values the model cannot honor.
func validate(config *Config) error {
	switch strings.ToLower(strings.TrimSpace(config.Model.UnknownSpecies)) {
	case "", "neutral":
		config.Model.UnknownSpecies = "neutral"
	case "reject":
		config.Model.UnknownSpecies = "reject"
	default:
		return fmt.Errorf("model.unknown_species must be \"neutral\" or \"reject\", got %q", config.Model.UnknownSpecies)
	}

	switch strings.ToLower(strings.TrimSpace(config.Bootstrap.NoiseKind)) {
	case "", "lognormal":
		config.Bootstrap.NoiseKind = "lognormal"
	case "normal":
		config.Bootstrap.NoiseKind = "normal"
	default:
		return fmt.Errorf("bootstrap.noise_kind must be \"lognormal\" or \"normal\", got %q", config.Bootstrap.NoiseKind)
	}

	if config.Bootstrap.NoiseSigma < 0 {
		return fmt.Errorf("bootstrap.noise_sigma must be >= 0, got %g", config.Bootstrap.NoiseSigma)
	}
	if config.Bootstrap.Repetitions < 1 {
		return fmt.Errorf("bootstrap.repetitions must be >= 1, got %d", config.Bootstrap.Repetitions)
	}
	if config.Cache.MemoSize < 1 {
		config.Cache.MemoSize = 1
	}

	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
