package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
api:
  base_url: "http://research.internal:9000"
  timeout: 30s
search:
  top_k: 8
  score_threshold: 0.6
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.API.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", cfg.API.Timeout)
	}
	if cfg.Search.TopK != 8 || cfg.Search.ScoreThreshold != 0.6 {
		t.Errorf("unexpected search config: %+v", cfg.Search)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_missingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("base url = %s", cfg.API.BaseURL)
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_expandLogPathRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  file: \"./logs/kikoe.log\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "logs", "kikoe.log")
	if cfg.Log.File != want {
		t.Errorf("log file = %s, want %s", cfg.Log.File, want)
	}
}

func TestLoad_keepsExplicitZeros(t *testing.T) {
	t.Setenv("KIKOE_SCORE_THRESHOLD", "")
	t.Setenv("NEXT_PUBLIC_SCORE_THRESHOLD", "")
	dir := t.TempDir()

	path := filepath.Join(dir, "zeros.yaml")
	if err := os.WriteFile(path, []byte("api:\n  cache_ttl: 0s\nsearch:\n  score_threshold: 0\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.ScoreThreshold != 0 {
		t.Errorf("explicit score_threshold 0 became %f", cfg.Search.ScoreThreshold)
	}
	if cfg.API.CacheTTL != 0 {
		t.Errorf("explicit cache_ttl 0 became %v", cfg.API.CacheTTL)
	}

	unset := filepath.Join(dir, "unset.yaml")
	if err := os.WriteFile(unset, []byte("search:\n  top_k: 3\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(unset)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Search.ScoreThreshold != DefaultScoreThreshold || cfg.API.CacheTTL != DefaultCacheTTL {
		t.Errorf("unset settings should take defaults: threshold %f, ttl %v", cfg.Search.ScoreThreshold, cfg.API.CacheTTL)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Errorf("default base url: got %s", cfg.API.BaseURL)
	}
	if cfg.Search.TopK != 5 {
		t.Errorf("default top_k: got %d", cfg.Search.TopK)
	}
	if cfg.Search.ScoreThreshold != 0.50 {
		t.Errorf("default score_threshold: got %f", cfg.Search.ScoreThreshold)
	}
	if cfg.Synthesis.Stagger != 200*time.Millisecond {
		t.Errorf("default stagger: got %v", cfg.Synthesis.Stagger)
	}
	if cfg.Synthesis.ErrorMessage != DefaultSynthesisError {
		t.Errorf("default error message: got %q", cfg.Synthesis.ErrorMessage)
	}
	if len(cfg.Races.Overrides) != 1 || cfg.Races.Overrides["Wisconsin 2024"] != "Wisconsin Senate 2024" {
		t.Errorf("default overrides: got %v", cfg.Races.Overrides)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
}

func TestApplyDefaults_keepsExplicitEmptyOverrides(t *testing.T) {
	cfg := &Config{Races: RacesConfig{Overrides: map[string]string{}}}
	ApplyDefaults(cfg)
	if len(cfg.Races.Overrides) != 0 {
		t.Errorf("explicit empty table should stay empty, got %v", cfg.Races.Overrides)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"KIKOE_API_URL":               "https://api.example.org/",
		"NEXT_PUBLIC_TOP_K":           "12",
		"KIKOE_SCORE_THRESHOLD":       "0.75",
		"NEXT_PUBLIC_SCORE_THRESHOLD": "0.1",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	cfg := &Config{}
	ApplyDefaults(cfg)
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatal(err)
	}
	if cfg.API.BaseURL != "https://api.example.org" {
		t.Errorf("base url = %s", cfg.API.BaseURL)
	}
	if cfg.Search.TopK != 12 {
		t.Errorf("fallback top_k = %d, want 12", cfg.Search.TopK)
	}
	if cfg.Search.ScoreThreshold != 0.75 {
		t.Errorf("primary variable should win: got %f", cfg.Search.ScoreThreshold)
	}
}

func TestApplyEnv_invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric top_k", map[string]string{"KIKOE_TOP_K": "many"}},
		{"zero top_k", map[string]string{"KIKOE_TOP_K": "0"}},
		{"threshold above one", map[string]string{"KIKOE_SCORE_THRESHOLD": "1.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(k string) (string, bool) { v, ok := tt.env[k]; return v, ok }
			cfg := &Config{}
			ApplyDefaults(cfg)
			if err := ApplyEnv(cfg, lookup); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server: ServerConfig{Host: "localhost", Port: 9090},
		Races:  RacesConfig{Overrides: map[string]string{"PA 2022": "PA Gov 2022"}},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Races.Overrides["PA 2022"] != "PA Gov 2022" {
		t.Errorf("loaded overrides: got %v", loaded.Races.Overrides)
	}
}
