package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/roadsign/internal/batch"
	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/engine"
	"github.com/MeKo-Tech/roadsign/internal/preprocess"
	"github.com/MeKo-Tech/roadsign/internal/render"
	"github.com/MeKo-Tech/roadsign/internal/server"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for the roadsign application.
// It covers every command (classify, detect, batch, pdf, serve) and is
// loaded from configuration files, environment variables and flags.
type Config struct {
	// Global settings
	ModelsDir  string `mapstructure:"models_dir"  yaml:"models_dir"  json:"models_dir"`
	LogLevel   string `mapstructure:"log_level"   yaml:"log_level"   json:"log_level"`
	Verbose    bool   `mapstructure:"verbose"     yaml:"verbose"     json:"verbose"`
	Language   string `mapstructure:"language"    yaml:"language"    json:"language"`
	Backend    string `mapstructure:"backend"     yaml:"backend"     json:"backend"`
	NumThreads int    `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`

	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier" json:"classifier"`
	Detector   DetectorConfig   `mapstructure:"detector"   yaml:"detector"   json:"detector"`
	Output     OutputConfig     `mapstructure:"output"     yaml:"output"     json:"output"`
	Server     ServerConfig     `mapstructure:"server"     yaml:"server"     json:"server"`
	Batch      BatchConfig      `mapstructure:"batch"      yaml:"batch"      json:"batch"`
}

// ClassifierConfig contains speed limit classifier settings.
type ClassifierConfig struct {
	ModelPath  string `mapstructure:"model_path"  yaml:"model_path"  json:"model_path"`
	LabelsPath string `mapstructure:"labels_path" yaml:"labels_path" json:"labels_path"`
	InputSize  int    `mapstructure:"input_size"  yaml:"input_size"  json:"input_size"`
}

// DetectorConfig contains sign detector settings.
type DetectorConfig struct {
	ModelPath      string  `mapstructure:"model_path"      yaml:"model_path"      json:"model_path"`
	LabelsPath     string  `mapstructure:"labels_path"     yaml:"labels_path"     json:"labels_path"`
	InputSize      int     `mapstructure:"input_size"      yaml:"input_size"      json:"input_size"`
	ScoreThreshold float32 `mapstructure:"score_threshold" yaml:"score_threshold" json:"score_threshold"`
	MaxDetections  int     `mapstructure:"max_detections"  yaml:"max_detections"  json:"max_detections"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format        string `mapstructure:"format"         yaml:"format"         json:"format"`
	File          string `mapstructure:"file"           yaml:"file"           json:"file"`
	OverlayDir    string `mapstructure:"overlay_dir"    yaml:"overlay_dir"    json:"overlay_dir"`
	OverlayFormat string `mapstructure:"overlay_format" yaml:"overlay_format" json:"overlay_format"`
	OverlayColor  string `mapstructure:"overlay_color"  yaml:"overlay_color"  json:"overlay_color"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string `mapstructure:"host"                 yaml:"host"                 json:"host"`
	Port               int    `mapstructure:"port"                 yaml:"port"                 json:"port"`
	CORSOrigin         string `mapstructure:"cors_origin"          yaml:"cors_origin"          json:"cors_origin"`
	MaxUploadMB        int    `mapstructure:"max_upload_mb"        yaml:"max_upload_mb"        json:"max_upload_mb"`
	TimeoutSec         int    `mapstructure:"timeout_sec"          yaml:"timeout_sec"          json:"timeout_sec"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
	Warmup             int    `mapstructure:"warmup"               yaml:"warmup"               json:"warmup"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client limits for the inference endpoints.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled"              yaml:"enabled"              json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute"  yaml:"requests_per_minute"  json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour"    yaml:"requests_per_hour"    json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day"     yaml:"max_data_per_day"     json:"max_data_per_day"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers"           yaml:"workers"           json:"workers"`
	Recursive       bool     `mapstructure:"recursive"         yaml:"recursive"         json:"recursive"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Include         []string `mapstructure:"include"           yaml:"include"           json:"include"`
	Exclude         []string `mapstructure:"exclude"           yaml:"exclude"           json:"exclude"`
}

var (
	validLogLevels      = []string{"debug", "info", "warn", "error"}
	validLanguages      = []string{"pl", "en"}
	validOutputFormats  = []string{batch.FormatText, batch.FormatJSON, batch.FormatCSV, batch.FormatYAML}
	validOverlayFormats = []string{"png", "jpg", "jpeg", "webp"}
)

// DefaultConfig returns a configuration with sensible defaults. An empty
// ModelsDir defers to ROADSIGN_MODELS_DIR and then <project>/models.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Language: "pl",
		Backend:  string(engine.BackendONNX),
		Classifier: ClassifierConfig{
			InputSize: preprocess.ClassifierSize,
		},
		Detector: DetectorConfig{
			InputSize:      preprocess.DetectorSize,
			ScoreThreshold: detector.DefaultScoreThreshold,
			MaxDetections:  detector.DefaultMaxDetections,
		},
		Output: OutputConfig{
			Format:        batch.FormatText,
			OverlayFormat: string(render.FormatPNG),
			OverlayColor:  "#E61E1E",
		},
		Server: ServerConfig{
			Host:               "localhost",
			Port:               8080,
			CORSOrigin:         "*",
			MaxUploadMB:        50,
			TimeoutSec:         30,
			ShutdownTimeoutSec: 10,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
			},
		},
		Batch: BatchConfig{
			Workers: 4,
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if c.Language != "" && !slices.Contains(validLanguages, c.Language) {
		return fmt.Errorf("invalid language: %s (must be one of: %s)", c.Language, strings.Join(validLanguages, ", "))
	}
	if _, err := engine.ParseBackend(c.Backend); err != nil {
		return err
	}
	if c.NumThreads < 0 {
		return fmt.Errorf("invalid num_threads: %d (must not be negative)", c.NumThreads)
	}

	if c.Output.Format != "" && !slices.Contains(validOutputFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(validOutputFormats, ", "))
	}
	if c.Output.OverlayFormat != "" && !slices.Contains(validOverlayFormats, strings.ToLower(c.Output.OverlayFormat)) {
		return fmt.Errorf("invalid overlay format: %s (must be one of: %s)",
			c.Output.OverlayFormat, strings.Join(validOverlayFormats, ", "))
	}
	if c.Output.OverlayColor != "" && render.ParseHexColor(c.Output.OverlayColor) == nil {
		return fmt.Errorf("invalid overlay color: %s (must be #RRGGBB)", c.Output.OverlayColor)
	}

	if err := validateThreshold(float64(c.Detector.ScoreThreshold), "detector.score_threshold"); err != nil {
		return err
	}
	if c.Detector.MaxDetections < 0 {
		return fmt.Errorf("invalid detector.max_detections: %d (must not be negative)", c.Detector.MaxDetections)
	}
	if c.Classifier.InputSize < 0 || c.Detector.InputSize < 0 {
		return fmt.Errorf("invalid input size: classifier=%d detector=%d", c.Classifier.InputSize, c.Detector.InputSize)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.Warmup < 0 {
		return fmt.Errorf("invalid warmup iterations: %d (must not be negative)", c.Server.Warmup)
	}
	if rl := c.Server.RateLimit; rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDay < 0 {
		return errors.New("invalid rate limit: limits must not be negative")
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	return nil
}

// ToClassifierConfig builds the classifier configuration. Explicit paths win
// over the models directory layout.
func (c *Config) ToClassifierConfig() classifier.Config {
	cfg := classifier.DefaultConfig()
	cfg.Backend = engine.Backend(c.Backend)
	cfg.UpdateModelPath(c.ModelsDir)
	if c.Classifier.ModelPath != "" {
		cfg.ModelPath = c.Classifier.ModelPath
	}
	if c.Classifier.LabelsPath != "" {
		cfg.LabelsPath = c.Classifier.LabelsPath
	}
	if c.Classifier.InputSize > 0 {
		cfg.InputSize = c.Classifier.InputSize
	}
	cfg.NumThreads = c.NumThreads
	cfg.Language = c.Language
	return cfg
}

// ToDetectorConfig builds the detector configuration.
func (c *Config) ToDetectorConfig() detector.Config {
	cfg := detector.DefaultConfig()
	cfg.Backend = engine.Backend(c.Backend)
	cfg.UpdateModelPath(c.ModelsDir)
	if c.Detector.ModelPath != "" {
		cfg.ModelPath = c.Detector.ModelPath
	}
	if c.Detector.LabelsPath != "" {
		cfg.LabelsPath = c.Detector.LabelsPath
	}
	if c.Detector.InputSize > 0 {
		cfg.InputSize = c.Detector.InputSize
	}
	cfg.ScoreThreshold = c.Detector.ScoreThreshold
	if c.Detector.MaxDetections > 0 {
		cfg.MaxDetections = c.Detector.MaxDetections
	}
	cfg.NumThreads = c.NumThreads
	return cfg
}

// ToServerConfig builds the HTTP server configuration.
func (c *Config) ToServerConfig() server.Config {
	rl := c.Server.RateLimit
	return server.Config{
		Host:               c.Server.Host,
		Port:               c.Server.Port,
		CORSOrigin:         c.Server.CORSOrigin,
		MaxUploadMB:        int64(c.Server.MaxUploadMB),
		TimeoutSec:         c.Server.TimeoutSec,
		ShutdownTimeoutSec: c.Server.ShutdownTimeoutSec,
		Warmup:             c.Server.Warmup,
		ModelsDir:          c.ModelsDir,
		Language:           c.Language,
		Classifier:         c.ToClassifierConfig(),
		Detector:           c.ToDetectorConfig(),
		OverlayStyle:       c.RenderOptions(),
		RateLimit: server.RateLimitConfig{
			Enabled:           rl.Enabled,
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			MaxRequestsPerDay: rl.MaxRequestsPerDay,
			MaxDataPerDay:     rl.MaxDataPerDay,
		},
	}
}

// RenderOptions returns overlay drawing options using the configured color.
func (c *Config) RenderOptions() render.Options {
	opts := render.DefaultOptions()
	if col := render.ParseHexColor(c.Output.OverlayColor); col != nil {
		opts.BoxColor = col
	}
	return opts
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
