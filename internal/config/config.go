// Package config loads and watches the holdfast configuration file.
// The file is JSON5, so comments and trailing commas are allowed.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/holdfast/pkg/browser"
)

// BrowserConfig is the timing and recovery profile of the resilience
// layer. Durations are milliseconds; zero means the built-in default.
type BrowserConfig struct {
	DefaultTimeoutMS     int  `json:"default_timeout_ms"`
	OpenTimeoutMS        int  `json:"open_timeout_ms"`
	ShortTimeoutMS       int  `json:"short_timeout_ms"`
	CloseDialogTimeoutMS int  `json:"close_dialog_timeout_ms"`
	PollIntervalMS       int  `json:"poll_interval_ms"`
	MaxRecoveryAttempts  int  `json:"max_recovery_attempts"`
	MaxScanDepth         int  `json:"max_scan_depth"`
	RecoverySleepMS      int  `json:"recovery_sleep_ms"`
	LinkClickDelayMS     int  `json:"link_click_delay_ms"`
	RefreshOnFlaky       bool `json:"refresh_on_flaky"`
}

// DriverConfig controls the underlying browser process.
type DriverConfig struct {
	Headless     bool   `json:"headless"`
	ArtifactsDir string `json:"artifacts_dir"`
}

// TelemetryConfig controls the step-trace exporter.
type TelemetryConfig struct {
	Enabled      bool              `json:"enabled"`
	OTLPEndpoint string            `json:"otlp_endpoint"`
	Protocol     string            `json:"protocol"` // "grpc" (default) or "http"
	Insecure     bool              `json:"insecure"`
	ServiceName  string            `json:"service_name"`
	Headers      map[string]string `json:"headers"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// Config is the root of the configuration file.
type Config struct {
	BaseURL   string          `json:"base_url"`
	Browser   BrowserConfig   `json:"browser"`
	Driver    DriverConfig    `json:"driver"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Logging   LoggingConfig   `json:"logging"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Driver: DriverConfig{
			Headless:     true,
			ArtifactsDir: "artifacts",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			Insecure:     true,
			ServiceName:  "holdfast",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path and unmarshals it over Default. A missing file is
// not an error: the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Settings maps the browser section onto the resilience-layer timing
// profile. Unset fields keep the layer's own defaults.
func (c *Config) Settings() browser.Settings {
	s := browser.DefaultSettings()
	b := c.Browser
	if b.DefaultTimeoutMS > 0 {
		s.DefaultTimeout = time.Duration(b.DefaultTimeoutMS) * time.Millisecond
	}
	if b.OpenTimeoutMS > 0 {
		s.OpenTimeout = time.Duration(b.OpenTimeoutMS) * time.Millisecond
	}
	if b.ShortTimeoutMS > 0 {
		s.ShortTimeout = time.Duration(b.ShortTimeoutMS) * time.Millisecond
	}
	if b.CloseDialogTimeoutMS > 0 {
		s.CloseDialogTimeout = time.Duration(b.CloseDialogTimeoutMS) * time.Millisecond
	}
	if b.PollIntervalMS > 0 {
		s.PollInterval = time.Duration(b.PollIntervalMS) * time.Millisecond
	}
	if b.MaxRecoveryAttempts > 0 {
		s.MaxRecoveryAttempts = b.MaxRecoveryAttempts
	}
	if b.MaxScanDepth > 0 {
		s.MaxScanDepth = b.MaxScanDepth
	}
	if b.RecoverySleepMS > 0 {
		s.RecoverySleep = time.Duration(b.RecoverySleepMS) * time.Millisecond
	}
	if b.LinkClickDelayMS > 0 {
		s.LinkClickDelay = time.Duration(b.LinkClickDelayMS) * time.Millisecond
	}
	s.RefreshOnFlaky = b.RefreshOnFlaky
	s.ArtifactsDir = c.Driver.ArtifactsDir
	return s
}

// LogLevel parses the logging level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
