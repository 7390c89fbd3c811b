package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/roadsign/internal/batch"
	"github.com/spf13/cobra"
)

// errItemsFailed is returned when at least one image of a run failed.
var errItemsFailed = errors.New("some images failed to process")

// openOutput returns the writer results go to: the named file, or stdout
// when path is empty.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // G304: user supplied output path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// writeResults renders a report. A single successful image in text format
// prints just its result text.
func writeResults(cmd *cobra.Command, report *batch.Report, format, outputFile string) error {
	w, closeFn, err := openOutput(cmd, outputFile)
	if err != nil {
		return err
	}

	if strings.EqualFold(format, batch.FormatText) && len(report.Results) == 1 && report.Results[0].Err == nil {
		_, err = fmt.Fprintln(w, strings.TrimRight(report.Results[0].Text, "\n"))
	} else {
		err = batch.Write(w, report.Results, format)
	}
	if cerr := closeFn(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	if report.Failed() > 0 {
		return fmt.Errorf("%w: %d of %d", errItemsFailed, report.Failed(), len(report.Results))
	}
	return nil
}

// printSummary reports batch totals on stderr.
func printSummary(cmd *cobra.Command, report *batch.Report) {
	fmt.Fprintf(cmd.ErrOrStderr(), "Processed %d images with %d workers in %s: %d succeeded, %d failed\n",
		len(report.Results), report.Workers, report.Duration.Round(time.Millisecond), report.Succeeded(), report.Failed())
}
