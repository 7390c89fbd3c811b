package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/roadsign/internal/batch"
	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/spf13/cobra"
)

func newClassifyCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [image...]",
		Short: "Classify speed limit signs in images",
		Long: `Run the speed limit classifier on one or more images and print the top-1
label with its confidence.

Examples:
  roadsign classify sign.jpg
  roadsign classify --language en sign1.png sign2.webp
  roadsign classify --format json *.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			ccfg := cfg.ToClassifierConfig()
			overrideString(cmd, "model", &ccfg.ModelPath)
			overrideString(cmd, "labels", &ccfg.LabelsPath)
			format := cfg.Output.Format
			overrideString(cmd, "format", &format)
			output := cfg.Output.File
			overrideString(cmd, "output", &output)

			c := classifier.New(ccfg)
			if !c.Ready() {
				fmt.Fprintln(cmd.OutOrStdout(), c.Messages().NotLoaded())
				loadErr := c.LoadError()
				_ = c.Close()
				return fmt.Errorf("classifier unavailable: %w", loadErr)
			}
			slog.Debug("Classifier loaded", "model", ccfg.ModelPath, "classes", c.Labels().Len())

			// the loaded classifier serves every image from a single worker
			report, err := batch.Run(cmd.Context(), batch.ItemsFromPaths(args), func() (batch.Worker, error) {
				return batch.NewClassifierWorker(c), nil
			}, batch.Options{Workers: 1, ContinueOnError: true})
			if err != nil {
				return err
			}
			return writeResults(cmd, report, format, output)
		},
	}

	cmd.Flags().String("model", "", "path to the classifier model (overrides models-dir layout)")
	cmd.Flags().String("labels", "", "path to a classifier label file (default built-in catalog)")
	cmd.Flags().StringP("format", "f", "text", "output format (text, json, csv, yaml)")
	cmd.Flags().StringP("output", "o", "", "write results to a file instead of stdout")
	return cmd
}
