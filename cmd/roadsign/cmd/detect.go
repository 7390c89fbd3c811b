package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/roadsign/internal/batch"
	"github.com/MeKo-Tech/roadsign/internal/config"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/i18n"
	"github.com/MeKo-Tech/roadsign/internal/render"
	"github.com/spf13/cobra"
)

func newDetectCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect [image...]",
		Short: "Detect road signs in images",
		Long: `Run the SSD sign detector on one or more images and print every sign
scoring above the threshold, ordered as the model reports them.

Examples:
  roadsign detect street.jpg
  roadsign detect --threshold 0.3 --format json street.jpg
  roadsign detect --overlay-dir out/ --overlay-format webp photos/*.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			dcfg := cfg.ToDetectorConfig()
			overrideString(cmd, "model", &dcfg.ModelPath)
			overrideString(cmd, "labels", &dcfg.LabelsPath)
			overrideInt(cmd, "max-detections", &dcfg.MaxDetections)
			if cmd.Flags().Changed("threshold") {
				th, _ := cmd.Flags().GetFloat32("threshold")
				if th < 0 || th > 1 {
					return fmt.Errorf("invalid threshold: %.2f (must be between 0.0 and 1.0)", th)
				}
				dcfg.ScoreThreshold = th
			}
			format := cfg.Output.Format
			overrideString(cmd, "format", &format)
			output := cfg.Output.File
			overrideString(cmd, "output", &output)

			opts, err := overlayOptions(cmd, cfg)
			if err != nil {
				return err
			}
			opts.Workers = 1
			opts.ContinueOnError = true

			d := detector.New(dcfg)
			messages := i18n.New(cfg.Language)
			if !d.Ready() {
				fmt.Fprintln(cmd.OutOrStdout(), messages.NotLoaded())
				loadErr := d.LoadError()
				_ = d.Close()
				return fmt.Errorf("detector unavailable: %w", loadErr)
			}
			slog.Debug("Detector loaded", "model", dcfg.ModelPath, "threshold", dcfg.ScoreThreshold)

			report, err := batch.Run(cmd.Context(), batch.ItemsFromPaths(args), func() (batch.Worker, error) {
				return batch.NewDetectorWorker(d, messages), nil
			}, opts)
			if err != nil {
				return err
			}
			return writeResults(cmd, report, format, output)
		},
	}

	cmd.Flags().String("model", "", "path to the detector model (overrides models-dir layout)")
	cmd.Flags().String("labels", "", "path to a detector label file (default built-in catalog)")
	cmd.Flags().Float32("threshold", detector.DefaultScoreThreshold, "minimum score; detections must score strictly above it")
	cmd.Flags().Int("max-detections", detector.DefaultMaxDetections, "output slot capacity of the model")
	cmd.Flags().StringP("format", "f", "text", "output format (text, json, csv, yaml)")
	cmd.Flags().StringP("output", "o", "", "write results to a file instead of stdout")
	addOverlayFlags(cmd)
	return cmd
}

// addOverlayFlags registers the flags read by overlayOptions.
func addOverlayFlags(cmd *cobra.Command) {
	cmd.Flags().String("overlay-dir", "", "write images with drawn boxes to this directory")
	cmd.Flags().String("overlay-format", "png", "overlay image format (png, jpeg, webp)")
	cmd.Flags().String("overlay-color", "#E61E1E", "overlay box color (#RRGGBB)")
}

// overlayOptions builds batch options for overlay output from config and
// flags.
func overlayOptions(cmd *cobra.Command, cfg *config.Config) (batch.Options, error) {
	dir := cfg.Output.OverlayDir
	overrideString(cmd, "overlay-dir", &dir)
	formatName := cfg.Output.OverlayFormat
	overrideString(cmd, "overlay-format", &formatName)

	format, err := render.ParseFormat(formatName)
	if err != nil {
		return batch.Options{}, err
	}
	style := cfg.RenderOptions()
	if cmd.Flags().Changed("overlay-color") {
		hex, _ := cmd.Flags().GetString("overlay-color")
		col := render.ParseHexColor(strings.TrimSpace(hex))
		if col == nil {
			return batch.Options{}, fmt.Errorf("invalid overlay color: %s (must be #RRGGBB)", hex)
		}
		style.BoxColor = col
	}
	return batch.Options{OverlayDir: dir, OverlayFormat: format, OverlayStyle: &style}, nil
}
