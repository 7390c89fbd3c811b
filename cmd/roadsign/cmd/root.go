// Package cmd implements the roadsign command line interface.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/roadsign/internal/config"
	"github.com/MeKo-Tech/roadsign/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by all subcommands of one root command.
type app struct {
	loader  *config.Loader
	cfgFile string
	cfg     *config.Config
}

// NewRootCommand builds a fresh command tree with its own configuration
// state.
func NewRootCommand() *cobra.Command {
	a := &app{loader: config.NewLoaderWithViper(viper.New())}

	rootCmd := &cobra.Command{
		Use:   "roadsign",
		Short: "Road sign classification and detection",
		Long: `roadsign recognizes road signs in photos using two on-device models:

- a speed limit classifier (224x224 input, top-1 label)
- an SSD sign detector (300x300 input, up to 10 boxes)

Both ONNX Runtime and TensorFlow Lite models are supported. Results are
printed in Polish by default; use --language en for English.

Examples:
  roadsign classify sign.jpg
  roadsign detect street.png --overlay-dir out/
  roadsign batch photos/ --mode detect --recursive --format csv
  roadsign serve --port 8080`,
		Version:           version.String(),
		SilenceUsage:      true,
		PersistentPreRunE: a.preRun,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is roadsign.yaml in ., ./config, $HOME/.config/roadsign, /etc/roadsign)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("models-dir", "", "directory containing the models (default $ROADSIGN_MODELS_DIR or <project>/models)")
	pf.String("language", "pl", "result language (pl, en)")
	pf.String("backend", "onnx", "inference backend (onnx, tflite)")
	pf.Int("threads", 0, "inference threads per model (0 = runtime default)")

	v := a.loader.GetViper()
	for key, flag := range map[string]string{
		"verbose":     "verbose",
		"log_level":   "log-level",
		"models_dir":  "models-dir",
		"language":    "language",
		"backend":     "backend",
		"num_threads": "threads",
	} {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	rootCmd.AddCommand(
		newClassifyCommand(a),
		newDetectCommand(a),
		newBatchCommand(a),
		newPDFCommand(a),
		newServeCommand(a),
		newModelsCommand(a),
		newBenchCommand(a),
		newConfigCommand(a),
	)
	return rootCmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// preRun loads the configuration and installs the JSON logger on stderr.
// Validation is left to the commands so that `config show` can display a
// broken file.
func (a *app) preRun(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loader.LoadWithFileWithoutValidation(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg
	setupLogging(cmd.ErrOrStderr(), cfg)
	if used := a.loader.GetConfigFileUsed(); used != "" {
		slog.Debug("Using config file", "path", used)
	}
	return nil
}

// config returns the validated configuration.
func (a *app) config() (*config.Config, error) {
	if a.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return a.cfg, nil
}

func setupLogging(w io.Writer, cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})))
}

// overrideString copies a changed flag value into dst.
func overrideString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func overrideInt(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func overrideBool(cmd *cobra.Command, name string, dst *bool) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetBool(name)
	}
}

func overrideStrings(cmd *cobra.Command, name string, dst *[]string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetStringSlice(name)
	}
}
