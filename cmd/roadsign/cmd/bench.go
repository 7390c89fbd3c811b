package cmd

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/MeKo-Tech/roadsign/internal/benchmark"
	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/imageio"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
)

func newBenchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench [image]",
		Short: "Measure preprocessing and inference latency",
		Long: `Time preprocessing and both models on one image. Without an image a
640x480 gray frame is used. Models that fail to load are reported and
skipped.

Examples:
  roadsign bench
  roadsign bench street.jpg --iterations 200 --warmup 10
  roadsign bench --backend tflite --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			iterations, _ := cmd.Flags().GetInt("iterations")
			warmup, _ := cmd.Flags().GetInt("warmup")
			if iterations <= 0 {
				return fmt.Errorf("invalid iterations: %d (must be positive)", iterations)
			}

			var img image.Image = imaging.New(640, 480, color.Gray{Y: 128})
			if len(args) == 1 {
				loaded, _, err := imageio.Load(args[0])
				if err != nil {
					return err
				}
				img = loaded
			}

			suite := benchmark.NewSuite(warmup)
			suite.AddPreprocess(img)

			c := classifier.New(cfg.ToClassifierConfig())
			defer func() { _ = c.Close() }()
			if err := suite.AddClassifier(c, img); err != nil {
				slog.Warn("Skipping classifier benchmark", "error", err)
			}
			d := detector.New(cfg.ToDetectorConfig())
			defer func() { _ = d.Close() }()
			if err := suite.AddDetector(d, img); err != nil {
				slog.Warn("Skipping detector benchmark", "error", err)
			}

			results := suite.RunAll(iterations)
			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			fmt.Fprintf(out, "Benchmark (%s backend, %d iterations, %d warmup)\n", cfg.Backend, iterations, warmup)
			for _, r := range results {
				fmt.Fprintln(out, r.String())
			}
			for _, r := range results {
				if r.Err != nil {
					return fmt.Errorf("benchmark %s failed: %w", r.Name, r.Err)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntP("iterations", "n", 50, "timed calls per case")
	cmd.Flags().Int("warmup", 3, "untimed calls per case before timing")
	cmd.Flags().Bool("json", false, "print JSON instead of text")
	return cmd
}
