package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/roadsign/internal/batch"
	"github.com/MeKo-Tech/roadsign/internal/source"
	"github.com/spf13/cobra"
)

func newPDFCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf [file...]",
		Short: "Classify or detect signs in images embedded in PDF files",
		Long: `Extract the images embedded in PDF documents and run the classifier or
detector on each of them. Page numbers are reported next to each result.

Examples:
  roadsign pdf report.pdf
  roadsign pdf report.pdf --pages 1-3,7 --mode detect
  roadsign pdf locked.pdf --password secret --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			bc := cfg.Batch
			overrideInt(cmd, "workers", &bc.Workers)
			overrideBool(cmd, "continue-on-error", &bc.ContinueOnError)

			var opts source.PDFOptions
			opts.Pages, _ = cmd.Flags().GetString("pages")
			opts.UserPassword, _ = cmd.Flags().GetString("password")
			opts.OwnerPassword, _ = cmd.Flags().GetString("owner-password")

			var items []batch.Item
			for _, file := range args {
				fileItems, err := source.PDFItems(file, opts)
				if err != nil {
					if source.IsPasswordError(err) {
						return fmt.Errorf("%s is encrypted; supply --password: %w", file, err)
					}
					return fmt.Errorf("%s: %w", file, err)
				}
				slog.Info("Extracted images from PDF", "file", file, "images", len(fileItems))
				items = append(items, fileItems...)
			}
			if len(items) == 0 {
				return batch.ErrNoItems
			}
			return runItems(cmd, cfg, items, bc)
		},
	}

	cmd.Flags().String("pages", "", "page range to process, e.g. 1-3,5 (default all)")
	cmd.Flags().String("password", "", "user password for encrypted PDFs")
	cmd.Flags().String("owner-password", "", "owner password for encrypted PDFs")
	cmd.Flags().String("mode", "classify", "model to run (classify, detect)")
	cmd.Flags().IntP("workers", "w", 4, "number of parallel workers")
	cmd.Flags().Bool("continue-on-error", false, "keep going after an image fails")
	cmd.Flags().Bool("progress", false, "show a progress bar on stderr")
	cmd.Flags().StringP("format", "f", "text", "output format (text, json, csv, yaml)")
	cmd.Flags().StringP("output", "o", "", "write results to a file instead of stdout")
	addOverlayFlags(cmd)
	return cmd
}
