package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "roadsign"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "ROADSIGN"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance, where the root
// command binds its flags.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader on a private viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	if v == nil {
		v = viper.New()
	}
	return &Loader{v: v}
}

// Load reads the first roadsign.yaml found on the search path, applies
// environment overrides and defaults, and validates the result. A missing
// config file is not an error.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile is Load with an explicit config file. An empty configFile
// falls back to the search path.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation loads configuration without validating it.
// `config show` uses it to display broken settings.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables maps keys such as detector.score_threshold to
// ROADSIGN_DETECTOR_SCORE_THRESHOLD.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	setDefaults(l.v, DefaultConfig())
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("models_dir", d.ModelsDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("language", d.Language)
	v.SetDefault("backend", d.Backend)
	v.SetDefault("num_threads", d.NumThreads)

	v.SetDefault("classifier.model_path", d.Classifier.ModelPath)
	v.SetDefault("classifier.labels_path", d.Classifier.LabelsPath)
	v.SetDefault("classifier.input_size", d.Classifier.InputSize)

	v.SetDefault("detector.model_path", d.Detector.ModelPath)
	v.SetDefault("detector.labels_path", d.Detector.LabelsPath)
	v.SetDefault("detector.input_size", d.Detector.InputSize)
	v.SetDefault("detector.score_threshold", d.Detector.ScoreThreshold)
	v.SetDefault("detector.max_detections", d.Detector.MaxDetections)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.file", d.Output.File)
	v.SetDefault("output.overlay_dir", d.Output.OverlayDir)
	v.SetDefault("output.overlay_format", d.Output.OverlayFormat)
	v.SetDefault("output.overlay_color", d.Output.OverlayColor)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	v.SetDefault("server.shutdown_timeout_sec", d.Server.ShutdownTimeoutSec)
	v.SetDefault("server.warmup", d.Server.Warmup)
	v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	v.SetDefault("server.rate_limit.requests_per_hour", d.Server.RateLimit.RequestsPerHour)
	v.SetDefault("server.rate_limit.max_requests_per_day", d.Server.RateLimit.MaxRequestsPerDay)
	v.SetDefault("server.rate_limit.max_data_per_day", d.Server.RateLimit.MaxDataPerDay)

	v.SetDefault("batch.workers", d.Batch.Workers)
	v.SetDefault("batch.recursive", d.Batch.Recursive)
	v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)
	v.SetDefault("batch.include", d.Batch.Include)
	v.SetDefault("batch.exclude", d.Batch.Exclude)
}

// GenerateDefaultConfigFile writes the default configuration to filename,
// roadsign.yaml when empty. An existing file is not overwritten.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("config file already exists: %s", filename)
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	return v.WriteConfigAs(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{".", "./config"}

	if configDir, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && configDir != "" {
		paths = append(paths, filepath.Join(configDir, "roadsign"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "roadsign"))
	}

	paths = append(paths, "/etc/roadsign")
	return paths
}
