package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kikoe/internal/client"
	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/models"
)

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"inflation"}, "inflation"},
		{"multiple words", []string{"Ohio", "economy"}, "Ohio economy"},
		{"single quoted phrase", []string{"Ohio economy"}, "Ohio economy"},
		{"three words", []string{"working", "class", "voters"}, "working class voters"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
api:
  base_url: "http://research.local:8000"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

var ohioResponse = models.SearchResponse{
	Quotes: []models.GroupedResult{{
		FocusGroupID: "fg-columbus",
		Metadata:     models.FocusGroupMetadata{Location: "Columbus", RaceName: "Ohio Senate", Outcome: "win"},
		Chunks:       []models.RetrievalChunk{{ChunkID: "c1", Content: "Prices are up.", Participant: "Voter A"}},
	}},
	Lessons: []models.StrategyGroupedResult{{
		RaceID:   "oh-sen",
		Metadata: models.StrategyMetadata{State: "Ohio", Office: "Senate", Year: models.IntPtr(2024), Outcome: "win"},
		Chunks:   []models.StrategyChunk{{ChunkID: "s1", Content: "Talk about costs.", Section: "Messaging"}},
	}},
	Stats: models.SearchStats{TotalQuotes: 1, FocusGroupsCount: 1},
}

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case client.PathSearchStream:
			_, _ = w.Write([]byte(`{"type":"status","step":"retrieving","message":"Searching"}` + "\n"))
			data, _ := json.Marshal(ohioResponse)
			_, _ = w.Write([]byte(`{"type":"results","data":` + string(data) + "}\n"))
		case client.PathSynthesizeLight:
			_ = json.NewEncoder(w).Encode(map[string]string{"summary": "Voters feel squeezed."})
		case client.PathSynthesizeStrategyLight:
			_ = json.NewEncoder(w).Encode(map[string]string{"summary": "Costs won the race."})
		case client.PathSynthesizeDeep, client.PathSynthesizeStrategyDeep:
			_, _ = w.Write([]byte("Deep analysis"))
		case client.PathSynthesizeUnifiedMacro:
			_, _ = w.Write([]byte("Across races, costs dominate."))
		case client.PathCorpus:
			_ = json.NewEncoder(w).Encode([]models.CorpusItem{
				{ID: "fg-columbus", Type: models.DocFocusGroup, Title: "Columbus voters", Location: "Columbus", RaceName: "Ohio Senate", Outcome: "win"},
				{ID: "fg-milwaukee", Type: models.DocFocusGroup, Title: "Milwaukee voters", Location: "Milwaukee", RaceName: "Wisconsin Senate", Outcome: "loss"},
			})
		case client.PathCorpus + "/focus_group/fg-columbus":
			_ = json.NewEncoder(w).Encode(models.DocumentContent{Content: "# Columbus\n\nTranscript."})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// run executes the CLI against a fake backend and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	api := fakeBackend(t)
	base := []string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "--api-url", api.URL}
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(base, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSearchCommand_text(t *testing.T) {
	stdout, stderr, err := run(t, "search", "--summaries", "--deep", "fg-columbus", "Ohio", "economy")
	if err != nil {
		t.Fatalf("search: %v\n%s", err, stderr)
	}
	for _, want := range []string{"Ohio Senate", "Prices are up.", "Voters feel squeezed.", "Costs won the race.", "Deep analysis\n"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if !strings.Contains(stderr, "retrieving: Searching") {
		t.Errorf("stderr missing progress step:\n%s", stderr)
	}
}

func TestSearchCommand_json(t *testing.T) {
	stdout, _, err := run(t, "search", "--output", "json", "Ohio")
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Query string `json:"query"`
		Races []struct {
			Name string `json:"race_name"`
		} `json:"races"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if out.Query != "Ohio" || len(out.Races) != 1 || out.Races[0].Name != "Ohio Senate" {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestSearchCommand_requiresQuery(t *testing.T) {
	if _, _, err := run(t, "search"); err == nil {
		t.Error("search without a query should fail")
	}
	if _, _, err := run(t, "search", "  "); err == nil {
		t.Error("search with a blank query should fail")
	}
}

func TestReportCommand_markdown(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.md")
	_, stderr, err := run(t, "report", "--deep-all", "--macro", "--out", out, "Ohio", "economy")
	if err != nil {
		t.Fatalf("report: %v\n%s", err, stderr)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	report := string(data)
	for _, want := range []string{"Ohio economy", "Across races, costs dominate.", "#### Deep Analysis", "Deep analysis", "Prices are up."} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestReportCommand_stdoutAndBadFormat(t *testing.T) {
	stdout, _, err := run(t, "report", "--out", "-", "Ohio")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Prices are up.") || !strings.Contains(stdout, "**Synthesis:** Voters feel squeezed.") {
		t.Errorf("report on stdout missing quote or summary:\n%s", stdout)
	}
	if _, _, err := run(t, "report", "--format", "docx", "Ohio"); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestCorpusCommand(t *testing.T) {
	stdout, _, err := run(t, "corpus")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "OHIO SENATE") || !strings.Contains(stdout, "WISCONSIN SENATE") || !strings.Contains(stdout, "2 documents") {
		t.Errorf("unexpected corpus listing:\n%s", stdout)
	}

	stdout, _, err = run(t, "corpus", "milwaukee")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(stdout, "Columbus") || !strings.Contains(stdout, "Milwaukee") {
		t.Errorf("filter not applied:\n%s", stdout)
	}
}

func TestCorpusShowCommand(t *testing.T) {
	stdout, _, err := run(t, "corpus", "show", "--raw", "focus_group", "fg-columbus")
	if err != nil {
		t.Fatal(err)
	}
	if stdout != "# Columbus\n\nTranscript." {
		t.Errorf("raw document = %q", stdout)
	}

	stdout, _, err = run(t, "corpus", "show", "focus_group", "fg-columbus")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Transcript.") || strings.Contains(stdout, "\x1b[") {
		t.Errorf("rendered document = %q", stdout)
	}

	if _, _, err := run(t, "corpus", "show", "poll", "x"); err == nil {
		t.Error("unknown document type should fail")
	}
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kikoe.yaml")
	stdout, stderr, err := run(t, "init", path)
	if err != nil {
		t.Fatalf("init: %v\n%s", err, stderr)
	}
	if !strings.Contains(stdout, "Wrote "+path) {
		t.Errorf("stdout = %q", stdout)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(cfg.API.BaseURL, "http://127.0.0.1:") {
		t.Errorf("saved api url = %q", cfg.API.BaseURL)
	}
	if cfg.Races.Overrides["Wisconsin 2024"] != "Wisconsin Senate 2024" {
		t.Errorf("saved overrides = %v", cfg.Races.Overrides)
	}

	if _, _, err := run(t, "init", path); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second init err = %v", err)
	}
	if _, _, err := run(t, "init", "--force", path); err != nil {
		t.Errorf("forced init: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "kikoe version dev\n" {
		t.Errorf("version output = %q", stdout.String())
	}
}
