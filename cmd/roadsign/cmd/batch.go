package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/roadsign/internal/batch"
	"github.com/MeKo-Tech/roadsign/internal/config"
	"github.com/spf13/cobra"
)

func newBatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [path...]",
		Short: "Classify or detect signs in many images in parallel",
		Long: `Process image files and directories with a pool of workers. Every worker
loads its own model instance, so memory grows with --workers.

Examples:
  roadsign batch photos/
  roadsign batch photos/ --mode detect --recursive --workers 8
  roadsign batch photos/ --include "*.jpg" --exclude "*_thumb*" --format csv -o results.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			bc := cfg.Batch
			overrideInt(cmd, "workers", &bc.Workers)
			overrideBool(cmd, "recursive", &bc.Recursive)
			overrideBool(cmd, "continue-on-error", &bc.ContinueOnError)
			overrideStrings(cmd, "include", &bc.Include)
			overrideStrings(cmd, "exclude", &bc.Exclude)

			files, err := batch.Discover(args, bc.Recursive, bc.Include, bc.Exclude)
			if err != nil {
				return err
			}
			slog.Info("Discovered images", "count", len(files))
			if len(files) == 0 {
				return batch.ErrNoItems
			}
			return runItems(cmd, cfg, batch.ItemsFromPaths(files), bc)
		},
	}

	cmd.Flags().String("mode", "classify", "model to run (classify, detect)")
	cmd.Flags().IntP("workers", "w", 4, "number of parallel workers")
	cmd.Flags().BoolP("recursive", "r", false, "descend into subdirectories")
	cmd.Flags().StringSlice("include", nil, "glob patterns of files to include")
	cmd.Flags().StringSlice("exclude", nil, "glob patterns of files to exclude")
	cmd.Flags().Bool("continue-on-error", false, "keep going after an image fails")
	cmd.Flags().Bool("progress", false, "show a progress bar on stderr")
	cmd.Flags().StringP("format", "f", "text", "output format (text, json, csv, yaml)")
	cmd.Flags().StringP("output", "o", "", "write results to a file instead of stdout")
	addOverlayFlags(cmd)
	return cmd
}

// runItems runs items through the model chosen by --mode and writes the
// report. Shared by batch and pdf.
func runItems(cmd *cobra.Command, cfg *config.Config, items []batch.Item, bc config.BatchConfig) error {
	modeName, _ := cmd.Flags().GetString("mode")
	mode, err := batch.ParseMode(modeName)
	if err != nil {
		return err
	}
	format := cfg.Output.Format
	overrideString(cmd, "format", &format)
	output := cfg.Output.File
	overrideString(cmd, "output", &output)

	opts, err := overlayOptions(cmd, cfg)
	if err != nil {
		return err
	}
	opts.Workers = bc.Workers
	opts.ContinueOnError = bc.ContinueOnError
	if show, _ := cmd.Flags().GetBool("progress"); show {
		opts.Progress = batch.NewConsoleProgress(cmd.ErrOrStderr(), "Processing ")
	}

	var factory batch.Factory
	switch mode {
	case batch.ModeDetect:
		factory = batch.DetectorFactory(cfg.ToDetectorConfig(), cfg.Language)
	default:
		factory = batch.ClassifierFactory(cfg.ToClassifierConfig())
	}

	report, runErr := batch.Run(cmd.Context(), items, factory, opts)
	if report == nil {
		return runErr
	}
	printSummary(cmd, report)
	if err := writeResults(cmd, report, format, output); err != nil {
		if runErr != nil {
			return fmt.Errorf("%w (%w)", runErr, err)
		}
		return err
	}
	return runErr
}
