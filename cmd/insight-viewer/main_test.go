package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/viewer"
)

func TestFlagDefaults(t *testing.T) {
	if *configPath != "" {
		t.Errorf("expected empty -config default, got %q", *configPath)
	}
	if *interval != 0 {
		t.Errorf("expected -interval to default to the config value, got %v", *interval)
	}
	if *listen != "" {
		t.Errorf("expected live view to be off by default, got %q", *listen)
	}
}

func TestLoadConfig_DefaultsAndOverrides(t *testing.T) {
	origAPI, origInterval, origOut := *apiBase, *interval, *outDir
	defer func() { *apiBase, *interval, *outDir = origAPI, origInterval, origOut }()

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if got := cfg.GetPollInterval(); got != 2*time.Second {
		t.Errorf("expected default interval 2s, got %v", got)
	}

	*apiBase = "http://stub:8080/api/v1"
	*interval = 1500 * time.Millisecond
	*outDir = "reports"
	cfg, err = loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if got := cfg.GetAPIBaseURL(); got != "http://stub:8080/api/v1" {
		t.Errorf("expected overridden API URL, got %q", got)
	}
	if got := cfg.GetPollInterval(); got != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", got)
	}
	if got := cfg.GetOutputDir(); got != "reports" {
		t.Errorf("expected reports, got %q", got)
	}
}

func TestLoadConfig_File(t *testing.T) {
	orig := *configPath
	defer func() { *configPath = orig }()

	path := filepath.Join(t.TempDir(), "viewer.json")
	if err := os.WriteFile(path, []byte(`{"poll_interval": "5s", "output_dir": "x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	*configPath = path
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if got := cfg.GetPollInterval(); got != 5*time.Second {
		t.Errorf("expected 5s, got %v", got)
	}

	*configPath = filepath.Join(t.TempDir(), "missing.json")
	if _, err := loadConfig(); err == nil {
		t.Error("expected error for a missing config file")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		snap viewer.Snapshot
		want int
	}{
		{"ready", viewer.Snapshot{Phase: viewer.Ready}, 0},
		{"failed", viewer.Snapshot{Phase: viewer.Failed, Err: errors.New("boom")}, 1},
		{"forbidden", viewer.Snapshot{Phase: viewer.Failed, Err: &insight.FetchError{Kind: insight.Forbidden}}, 1},
		{"unauthorized", viewer.Snapshot{Phase: viewer.Failed, Err: &insight.FetchError{Kind: insight.Unauthorized}}, 3},
		{"unavailable", viewer.Snapshot{Phase: viewer.Unavailable}, 2},
		{"interrupted", viewer.Snapshot{Phase: viewer.Analyzing}, 2},
	}
	for _, tt := range tests {
		if got := exitCode(tt.snap); got != tt.want {
			t.Errorf("%s: exitCode = %d, want %d", tt.name, got, tt.want)
		}
	}
}
