package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/insight"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/projection"
)

// DefaultConfigPath is the path to the canonical viewer defaults file.
const DefaultConfigPath = "config/insight.defaults.json"

// maxFileSize bounds config files.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// InsightConfig is the viewer configuration. Every field is optional; the
// Get* methods return the built-in default for anything left unset, so
// partial files are safe.
type InsightConfig struct {
	// API
	APIBaseURL     *string `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty"`
	RequestTimeout *string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"` // duration string like "30s"
	BearerToken    *string `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
	SessionCookie  *string `json:"session_cookie,omitempty" yaml:"session_cookie,omitempty"` // "name=value"

	// Polling
	PollInterval    *string  `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"` // duration string like "2s"
	PendingStatuses []string `json:"pending_statuses,omitempty" yaml:"pending_statuses,omitempty"`

	// Canvas
	CanvasWidth  *float64 `json:"canvas_width,omitempty" yaml:"canvas_width,omitempty"`
	CanvasHeight *float64 `json:"canvas_height,omitempty" yaml:"canvas_height,omitempty"`
	CanvasMargin *float64 `json:"canvas_margin,omitempty" yaml:"canvas_margin,omitempty"`

	// Normalization
	PaddingRatio     *float64 `json:"padding_ratio,omitempty" yaml:"padding_ratio,omitempty"`
	ObliqueX         *float64 `json:"oblique_x,omitempty" yaml:"oblique_x,omitempty"`
	ObliqueY         *float64 `json:"oblique_y,omitempty" yaml:"oblique_y,omitempty"`
	SpanEpsilon      *float64 `json:"span_epsilon,omitempty" yaml:"span_epsilon,omitempty"`
	OverlapThreshold *float64 `json:"overlap_threshold,omitempty" yaml:"overlap_threshold,omitempty"`

	// Output
	OutputDir   *string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	HistoryPath *string `json:"history_path,omitempty" yaml:"history_path,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

// EmptyInsightConfig returns a config with every field unset.
func EmptyInsightConfig() *InsightConfig {
	return &InsightConfig{}
}

// DefaultInsightConfig returns a config with every field set to its default.
func DefaultInsightConfig() *InsightConfig {
	return &InsightConfig{
		APIBaseURL:       ptrString(insight.DefaultBaseURL),
		RequestTimeout:   ptrString("30s"),
		PollInterval:     ptrString("2s"),
		PendingStatuses:  []string{string(insight.StatusEmbeddingNotReady), string(insight.StatusNoModelEmbeddings)},
		CanvasWidth:      ptrFloat64(projection.DefaultWidth),
		CanvasHeight:     ptrFloat64(projection.DefaultHeight),
		CanvasMargin:     ptrFloat64(projection.DefaultMargin),
		PaddingRatio:     ptrFloat64(projection.DefaultPaddingRatio),
		ObliqueX:         ptrFloat64(projection.DefaultObliqueX),
		ObliqueY:         ptrFloat64(projection.DefaultObliqueY),
		SpanEpsilon:      ptrFloat64(projection.DefaultSpanEpsilon),
		OverlapThreshold: ptrFloat64(projection.DefaultOverlapThreshold),
		OutputDir:        ptrString("out"),
	}
}

// LoadInsightConfig loads an InsightConfig from a JSON or YAML file.
// The file must have a .json, .yaml or .yml extension and be under 1MB.
func LoadInsightConfig(path string) (*InsightConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json or .yaml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyInsightConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *InsightConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/insight-viewer/
	}
	for _, path := range candidates {
		if cfg, err := LoadInsightConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the set values are usable.
func (c *InsightConfig) Validate() error {
	durations := []struct {
		name string
		v    *string
	}{
		{"request_timeout", c.RequestTimeout},
		{"poll_interval", c.PollInterval},
	}
	for _, f := range durations {
		if f.v == nil || *f.v == "" {
			continue
		}
		d, err := time.ParseDuration(*f.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", f.name, *f.v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", f.name, d)
		}
	}

	for _, s := range c.PendingStatuses {
		if !insight.ParseStatus(s).Known() {
			return fmt.Errorf("pending_statuses: unknown status %q", s)
		}
		if insight.ParseStatus(s) == insight.StatusSuccess {
			return fmt.Errorf("pending_statuses: %s cannot be pending", insight.StatusSuccess)
		}
	}

	if err := c.GetCanvas().Validate(); err != nil {
		return err
	}

	if c.PaddingRatio != nil && *c.PaddingRatio < 0 {
		return fmt.Errorf("padding_ratio must be non-negative, got %f", *c.PaddingRatio)
	}
	if c.SpanEpsilon != nil && *c.SpanEpsilon <= 0 {
		return fmt.Errorf("span_epsilon must be positive, got %g", *c.SpanEpsilon)
	}
	if c.OverlapThreshold != nil && *c.OverlapThreshold <= 0 {
		return fmt.Errorf("overlap_threshold must be positive, got %f", *c.OverlapThreshold)
	}
	if c.SessionCookie != nil && *c.SessionCookie != "" {
		if _, _, ok := splitCookie(*c.SessionCookie); !ok {
			return fmt.Errorf("session_cookie must look like name=value")
		}
	}

	return nil
}

// GetAPIBaseURL returns the API root.
func (c *InsightConfig) GetAPIBaseURL() string {
	if c.APIBaseURL == nil || *c.APIBaseURL == "" {
		return insight.DefaultBaseURL
	}
	return *c.APIBaseURL
}

// GetRequestTimeout parses and returns the per-request timeout.
func (c *InsightConfig) GetRequestTimeout() time.Duration {
	return parseDurationOr(c.RequestTimeout, 30*time.Second)
}

// GetPollInterval parses and returns the delay between polls.
func (c *InsightConfig) GetPollInterval() time.Duration {
	return parseDurationOr(c.PollInterval, 2*time.Second)
}

// GetBearerToken returns the bearer token, or "".
func (c *InsightConfig) GetBearerToken() string {
	if c.BearerToken == nil {
		return ""
	}
	return *c.BearerToken
}

// GetSessionCookie returns the session cookie name and value; ok is false
// when none is configured.
func (c *InsightConfig) GetSessionCookie() (name, value string, ok bool) {
	if c.SessionCookie == nil {
		return "", "", false
	}
	return splitCookie(*c.SessionCookie)
}

// GetPendingStatuses returns the statuses that keep polling.
func (c *InsightConfig) GetPendingStatuses() insight.StatusSet {
	if len(c.PendingStatuses) == 0 {
		return insight.DefaultPendingStatuses()
	}
	statuses := make([]insight.AnalysisStatus, 0, len(c.PendingStatuses))
	for _, s := range c.PendingStatuses {
		statuses = append(statuses, insight.ParseStatus(s))
	}
	return insight.NewStatusSet(statuses...)
}

// GetCanvas returns the drawing canvas.
func (c *InsightConfig) GetCanvas() projection.Canvas {
	return projection.Canvas{
		Width:  floatOr(c.CanvasWidth, projection.DefaultWidth),
		Height: floatOr(c.CanvasHeight, projection.DefaultHeight),
		Margin: floatOr(c.CanvasMargin, projection.DefaultMargin),
	}
}

// GetProjectionParams returns the normalization parameters.
func (c *InsightConfig) GetProjectionParams() projection.Params {
	return projection.Params{
		ObliqueX:     floatOr(c.ObliqueX, projection.DefaultObliqueX),
		ObliqueY:     floatOr(c.ObliqueY, projection.DefaultObliqueY),
		PaddingRatio: floatOr(c.PaddingRatio, projection.DefaultPaddingRatio),
		SpanEpsilon:  floatOr(c.SpanEpsilon, projection.DefaultSpanEpsilon),
		Canvas:       c.GetCanvas(),
	}
}

// GetOverlapThreshold returns the degeneracy threshold in screen units.
func (c *InsightConfig) GetOverlapThreshold() float64 {
	return floatOr(c.OverlapThreshold, projection.DefaultOverlapThreshold)
}

// GetOutputDir returns the directory rendered artifacts are written to.
func (c *InsightConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "out"
	}
	return *c.OutputDir
}

// GetHistoryPath returns the poll journal database path, or "" when the
// journal is disabled.
func (c *InsightConfig) GetHistoryPath() string {
	if c.HistoryPath == nil {
		return ""
	}
	return *c.HistoryPath
}

func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def // default on parse error
	}
	return d
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func splitCookie(s string) (string, string, bool) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return "", "", false
	}
	return name, value, true
}
