// Package config provides configuration loading and structs for kikoe.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	API       APIConfig       `yaml:"api"`
	Search    SearchConfig    `yaml:"search"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Races     RacesConfig     `yaml:"races"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// APIConfig describes the research backend.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout bounds a whole request including a streamed body. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
	// CacheTTL de-duplicates identical unified searches and corpus loads. Unset means
	// DefaultCacheTTL; an explicit zero or a negative value disables it.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// SearchConfig holds the search tuning defaults sent with every search. An explicit
// score_threshold of 0 in the file is kept; only an unset one takes the default.
type SearchConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// SynthesisConfig holds synthesis dispatch settings.
type SynthesisConfig struct {
	// Stagger spaces out per-item summary requests (index × Stagger).
	Stagger      time.Duration `yaml:"stagger"`
	ErrorMessage string        `yaml:"error_message"`
}

// RacesConfig holds the race-name override table.
type RacesConfig struct {
	Overrides map[string]string `yaml:"overrides"`
}

// ServerConfig holds local dashboard server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig holds log output settings.
type LogConfig struct {
	File string `yaml:"file"`
}

// Load reads and parses the config file at path, applies defaults, expands paths and
// applies environment overrides. A missing file is not an error: defaults and the
// environment are used.
func Load(path string) (*Config, error) {
	var cfg Config
	var set explicitZeros
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if err := yaml.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		cfg.Log.File = expandPath(cfg.Log.File, filepath.Dir(path))
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	ApplyDefaults(&cfg)
	set.restore(&cfg)
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// explicitZeros records settings whose zero value is meaningful, so ApplyDefaults does
// not replace a zero that was written in the file.
type explicitZeros struct {
	API struct {
		CacheTTL *time.Duration `yaml:"cache_ttl"`
	} `yaml:"api"`
	Search struct {
		ScoreThreshold *float64 `yaml:"score_threshold"`
	} `yaml:"search"`
}

func (z explicitZeros) restore(cfg *Config) {
	if z.API.CacheTTL != nil {
		cfg.API.CacheTTL = *z.API.CacheTTL
	}
	if z.Search.ScoreThreshold != nil {
		cfg.Search.ScoreThreshold = *z.Search.ScoreThreshold
	}
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty stays empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
