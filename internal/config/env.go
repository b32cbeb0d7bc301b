package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names. The NEXT_PUBLIC_* names are accepted as fallbacks so an
// existing dashboard .env keeps working.
const (
	EnvAPIURL         = "KIKOE_API_URL"
	EnvTopK           = "KIKOE_TOP_K"
	EnvScoreThreshold = "KIKOE_SCORE_THRESHOLD"
)

var envFallbacks = map[string]string{
	EnvAPIURL:         "NEXT_PUBLIC_API_URL",
	EnvTopK:           "NEXT_PUBLIC_TOP_K",
	EnvScoreThreshold: "NEXT_PUBLIC_SCORE_THRESHOLD",
}

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// ApplyEnv overrides the API URL and the two search-tuning defaults from the environment.
// lookupEnv has the signature of os.LookupEnv.
func ApplyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIURL, lookupEnv); ok {
		cfg.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := lookup(EnvTopK, lookupEnv); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid %s %q: must be a positive integer", EnvTopK, v)
		}
		cfg.Search.TopK = n
	}
	if v, ok := lookup(EnvScoreThreshold, lookupEnv); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("invalid %s %q: must be a number in [0,1]", EnvScoreThreshold, v)
		}
		cfg.Search.ScoreThreshold = f
	}
	return nil
}

func lookup(name string, lookupEnv func(string) (string, bool)) (string, bool) {
	if v, ok := lookupEnv(name); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), true
	}
	if fb, ok := envFallbacks[name]; ok {
		if v, ok := lookupEnv(fb); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
