package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/projection"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultInsightConfig(t *testing.T) {
	cfg := DefaultInsightConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.PollInterval == nil || *cfg.PollInterval != "2s" {
		t.Errorf("Expected PollInterval '2s', got %v", cfg.PollInterval)
	}
	if got := cfg.GetPollInterval(); got != 2*time.Second {
		t.Errorf("GetPollInterval() = %v, want 2s", got)
	}
	if got := cfg.GetProjectionParams(); got != projection.DefaultParams() {
		t.Errorf("GetProjectionParams() = %+v, want %+v", got, projection.DefaultParams())
	}
	pending := cfg.GetPendingStatuses()
	if !pending.Contains(insight.StatusEmbeddingNotReady) || !pending.Contains(insight.StatusNoModelEmbeddings) || len(pending) != 2 {
		t.Errorf("GetPendingStatuses() = %v", pending)
	}
}

func TestEmptyConfigFallsBackToDefaults(t *testing.T) {
	cfg := EmptyInsightConfig()

	if got := cfg.GetAPIBaseURL(); got != insight.DefaultBaseURL {
		t.Errorf("GetAPIBaseURL() = %q", got)
	}
	if got := cfg.GetRequestTimeout(); got != 30*time.Second {
		t.Errorf("GetRequestTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetPollInterval(); got != 2*time.Second {
		t.Errorf("GetPollInterval() = %v, want 2s", got)
	}
	if got := cfg.GetCanvas(); got != projection.DefaultCanvas() {
		t.Errorf("GetCanvas() = %+v", got)
	}
	if got := cfg.GetOverlapThreshold(); got != 0.5 {
		t.Errorf("GetOverlapThreshold() = %v, want 0.5", got)
	}
	if got := cfg.GetOutputDir(); got != "out" {
		t.Errorf("GetOutputDir() = %q, want out", got)
	}
	if got := cfg.GetHistoryPath(); got != "" {
		t.Errorf("GetHistoryPath() = %q, want empty", got)
	}
	if _, _, ok := cfg.GetSessionCookie(); ok {
		t.Error("expected no session cookie")
	}
	if got := cfg.GetPendingStatuses(); len(got) != 2 {
		t.Errorf("GetPendingStatuses() = %v", got)
	}
}

func TestLoadInsightConfig(t *testing.T) {
	path := writeConfig(t, "viewer.json", `{
  "api_base_url": "https://api.example.com/api/v1",
  "poll_interval": "500ms",
  "pending_statuses": ["embedding_not_ready"],
  "canvas_width": 800,
  "oblique_x": 0.5,
  "session_cookie": "SESSION=abc=def",
  "history_path": "/var/lib/insight/history.db"
}`)

	cfg, err := LoadInsightConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetAPIBaseURL(); got != "https://api.example.com/api/v1" {
		t.Errorf("GetAPIBaseURL() = %q", got)
	}
	if got := cfg.GetPollInterval(); got != 500*time.Millisecond {
		t.Errorf("GetPollInterval() = %v, want 500ms", got)
	}
	pending := cfg.GetPendingStatuses()
	if len(pending) != 1 || !pending.Contains(insight.StatusEmbeddingNotReady) {
		t.Errorf("GetPendingStatuses() = %v", pending)
	}

	params := cfg.GetProjectionParams()
	if params.Canvas.Width != 800 || params.Canvas.Height != 400 {
		t.Errorf("canvas = %+v, want 800x400", params.Canvas)
	}
	if params.ObliqueX != 0.5 || params.ObliqueY != 0.4 {
		t.Errorf("oblique = (%v, %v), want (0.5, 0.4)", params.ObliqueX, params.ObliqueY)
	}

	name, value, ok := cfg.GetSessionCookie()
	if !ok || name != "SESSION" || value != "abc=def" {
		t.Errorf("GetSessionCookie() = %q, %q, %v", name, value, ok)
	}
	if got := cfg.GetHistoryPath(); got != "/var/lib/insight/history.db" {
		t.Errorf("GetHistoryPath() = %q", got)
	}
}

func TestLoadInsightConfig_YAML(t *testing.T) {
	path := writeConfig(t, "viewer.yaml", `api_base_url: https://api.example.com/api/v1
poll_interval: 750ms
pending_statuses:
  - EMBEDDING_NOT_READY
  - NO_MODEL_EMBEDDINGS
canvas_height: 300
overlap_threshold: 1.5
`)

	cfg, err := LoadInsightConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if got := cfg.GetAPIBaseURL(); got != "https://api.example.com/api/v1" {
		t.Errorf("GetAPIBaseURL() = %q", got)
	}
	if got := cfg.GetPollInterval(); got != 750*time.Millisecond {
		t.Errorf("GetPollInterval() = %v, want 750ms", got)
	}
	if got := len(cfg.GetPendingStatuses()); got != 2 {
		t.Errorf("len(GetPendingStatuses()) = %d, want 2", got)
	}
	if c := cfg.GetCanvas(); c.Width != 500 || c.Height != 300 {
		t.Errorf("GetCanvas() = %+v, want 500x300", c)
	}
	if got := cfg.GetOverlapThreshold(); got != 1.5 {
		t.Errorf("GetOverlapThreshold() = %v, want 1.5", got)
	}
	if got := cfg.GetOutputDir(); got != "out" {
		t.Errorf("GetOutputDir() = %q, want default", got)
	}
}

func TestLoadInsightConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "viewer.toml", `{}`, ".json or .yaml extension"},
		{"bad json", "bad.json", `{"poll_interval": `, "parse config JSON"},
		{"bad yaml", "bad.yaml", "poll_interval: [2s", "parse config YAML"},
		{"bad yaml duration", "d.yml", "poll_interval: soon\n", "invalid poll_interval"},
		{"bad duration", "d.json", `{"poll_interval": "soon"}`, "invalid poll_interval"},
		{"negative duration", "n.json", `{"request_timeout": "-1s"}`, "request_timeout must be positive"},
		{"unknown status", "s.json", `{"pending_statuses": ["WAITING"]}`, "unknown status"},
		{"success pending", "p.json", `{"pending_statuses": ["SUCCESS"]}`, "cannot be pending"},
		{"no interior", "c.json", `{"canvas_width": 60, "canvas_margin": 30}`, "leaves no interior"},
		{"negative padding", "pad.json", `{"padding_ratio": -0.1}`, "padding_ratio"},
		{"zero epsilon", "eps.json", `{"span_epsilon": 0}`, "span_epsilon"},
		{"zero overlap", "o.json", `{"overlap_threshold": 0}`, "overlap_threshold"},
		{"bad cookie", "ck.json", `{"session_cookie": "=x"}`, "session_cookie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadInsightConfig(path)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadInsightConfig_MissingFile(t *testing.T) {
	_, err := LoadInsightConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "stat config file") {
		t.Errorf("expected stat error, got %v", err)
	}
}

func TestLoadInsightConfig_TooLarge(t *testing.T) {
	body := `{"output_dir": "` + strings.Repeat("a", maxFileSize) + `"}`
	path := writeConfig(t, "big.json", body)

	_, err := LoadInsightConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	// The defaults file and DefaultInsightConfig must agree.
	want := DefaultInsightConfig()
	if cfg.GetPollInterval() != want.GetPollInterval() {
		t.Errorf("poll interval %v != %v", cfg.GetPollInterval(), want.GetPollInterval())
	}
	if cfg.GetProjectionParams() != want.GetProjectionParams() {
		t.Errorf("projection params %+v != %+v", cfg.GetProjectionParams(), want.GetProjectionParams())
	}
	if cfg.GetOverlapThreshold() != want.GetOverlapThreshold() {
		t.Errorf("overlap threshold %v != %v", cfg.GetOverlapThreshold(), want.GetOverlapThreshold())
	}
	if cfg.GetAPIBaseURL() != want.GetAPIBaseURL() {
		t.Errorf("api base url %q != %q", cfg.GetAPIBaseURL(), want.GetAPIBaseURL())
	}
	if len(cfg.GetPendingStatuses()) != len(want.GetPendingStatuses()) {
		t.Errorf("pending statuses %v != %v", cfg.GetPendingStatuses(), want.GetPendingStatuses())
	}
}

func TestParseDurationOr(t *testing.T) {
	bad := "nope"
	if got := parseDurationOr(&bad, time.Second); got != time.Second {
		t.Errorf("parseDurationOr(bad) = %v, want 1s", got)
	}
	if got := parseDurationOr(nil, time.Minute); got != time.Minute {
		t.Errorf("parseDurationOr(nil) = %v, want 1m", got)
	}
}
