package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/roadsign/internal/detector"
	"gopkg.in/yaml.v3"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

// record is the serialized form of a Result.
type record struct {
	File           string               `json:"file"                     yaml:"file"`
	Page           int                  `json:"page,omitempty"           yaml:"page,omitempty"`
	Label          string               `json:"label,omitempty"          yaml:"label,omitempty"`
	Index          *int                 `json:"index,omitempty"          yaml:"index,omitempty"`
	Confidence     *float32             `json:"confidence,omitempty"     yaml:"confidence,omitempty"`
	Detections     []detector.Detection `json:"detections,omitempty"     yaml:"detections,omitempty"`
	Text           string               `json:"text,omitempty"           yaml:"text,omitempty"`
	Overlay        string               `json:"overlay,omitempty"        yaml:"overlay,omitempty"`
	Error          string               `json:"error,omitempty"          yaml:"error,omitempty"`
	DurationMillis int64                `json:"duration_ms"              yaml:"duration_ms"`
}

func toRecord(r Result) record {
	rec := record{
		File:           r.Item.Source,
		Page:           r.Item.Page,
		Detections:     r.Detections,
		Text:           r.Text,
		Overlay:        r.Overlay,
		DurationMillis: r.Duration.Milliseconds(),
	}
	if c := r.Classification; c != nil {
		rec.Label = c.Label
		rec.Index = &c.Index
		rec.Confidence = &c.Confidence
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Write renders results in format (text, json, csv or yaml).
func Write(w io.Writer, results []Result, format string) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		return writeJSON(w, results)
	case FormatCSV:
		return writeCSV(w, results)
	case FormatYAML:
		return writeYAML(w, results)
	case FormatText, "":
		return writeText(w, results)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func records(results []Result) []record {
	out := make([]record, len(results))
	for i, r := range results {
		out[i] = toRecord(r)
	}
	return out
}

func writeJSON(w io.Writer, results []Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Images []record `json:"images"`
	}{Images: records(results)})
}

func writeYAML(w io.Writer, results []Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(struct {
		Images []record `yaml:"images"`
	}{Images: records(results)}); err != nil {
		return err
	}
	return enc.Close()
}

func writeCSV(w io.Writer, results []Result) error {
	writer := csv.NewWriter(w)
	rows := [][]string{{"file", "page", "label", "index", "confidence", "ymin", "xmin", "ymax", "xmax", "error"}}

	for _, r := range results {
		file, page := r.Item.Source, strconv.Itoa(r.Item.Page)
		switch {
		case r.Err != nil:
			rows = append(rows, []string{file, page, "", "", "", "", "", "", "", r.Err.Error()})
		case r.Classification != nil:
			c := r.Classification
			rows = append(rows, []string{
				file, page, c.Label, strconv.Itoa(c.Index), formatFloat(c.Confidence), "", "", "", "", "",
			})
		case len(r.Detections) == 0:
			rows = append(rows, []string{file, page, "", "", "", "", "", "", "", ""})
		default:
			for _, d := range r.Detections {
				rows = append(rows, []string{
					file, page, d.Label, strconv.Itoa(d.ClassIndex), formatFloat(d.Confidence),
					formatFloat(d.Box.YMin()), formatFloat(d.Box.XMin()),
					formatFloat(d.Box.YMax()), formatFloat(d.Box.XMax()), "",
				})
			}
		}
	}

	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func writeText(w io.Writer, results []Result) error {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "# %s\n", r.Item.Name())
		if r.Err != nil {
			fmt.Fprintf(&b, "error: %v\n", r.Err)
			continue
		}
		b.WriteString(strings.TrimRight(r.Text, "\n"))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', 4, 32)
}
