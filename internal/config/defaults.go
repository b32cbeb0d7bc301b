package config

import "time"

const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultTopK           = 5
	DefaultScoreThreshold = 0.50
	DefaultCacheTTL       = time.Minute
	DefaultStagger        = 200 * time.Millisecond
	// DefaultSynthesisError replaces a synthesis buffer when its request fails.
	DefaultSynthesisError = "Error generating synthesis. Please try again."
)

// DefaultOverrides is the observed alias table; nothing beyond it is inferred.
func DefaultOverrides() map[string]string {
	return map[string]string{
		"Wisconsin 2024": "Wisconsin Senate 2024",
	}
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.CacheTTL == 0 {
		cfg.API.CacheTTL = DefaultCacheTTL
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = DefaultTopK
	}
	if cfg.Search.ScoreThreshold == 0 {
		cfg.Search.ScoreThreshold = DefaultScoreThreshold
	}
	if cfg.Synthesis.Stagger == 0 {
		cfg.Synthesis.Stagger = DefaultStagger
	}
	if cfg.Synthesis.ErrorMessage == "" {
		cfg.Synthesis.ErrorMessage = DefaultSynthesisError
	}
	if cfg.Races.Overrides == nil {
		cfg.Races.Overrides = DefaultOverrides()
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
}
