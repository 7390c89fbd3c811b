// Package labels holds the ordered class-index to label mappings used by the
// classifier and detector models.
package labels

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrEmptyCatalog is returned when a label file contains no labels.
var ErrEmptyCatalog = errors.New("label catalog is empty")

var classifierLabels = []string{
	"speed limit 10",
	"speed limit 20",
	"speed limit 30",
	"speed limit 40",
	"speed limit 5",
	"speed limit 50",
	"speed limit 60",
	"speed limit 70",
	"speed limit 80",
}

var detectorLabels = []string{
	"unknown",
	"crosswalk",
	"stop",
	"main road",
	"give road",
	"children",
	"dont stop",
	"no parking",
	"dont move",
	"dont enter",
	"dont overtake",
	"speed limit 5",
	"speed limit 10",
	"speed limit 20",
	"speed limit 30",
	"speed limit 40",
	"speed limit 50",
	"speed limit 60",
	"speed limit 70",
	"speed limit 80",
	"speed limit 90",
	"speed limit 100",
}

// Catalog is an immutable, order-significant list of labels. The position of
// a label is its class index.
type Catalog struct {
	labels []string
}

// New builds a catalog from labels. The slice is copied.
func New(labels []string) Catalog {
	return Catalog{labels: append([]string(nil), labels...)}
}

// Classifier returns the built-in 9-class speed limit catalog.
func Classifier() Catalog { return New(classifierLabels) }

// Detector returns the built-in 22-class road sign catalog.
func Detector() Catalog { return New(detectorLabels) }

// Len returns the number of labels.
func (c Catalog) Len() int { return len(c.labels) }

// At returns the label for index i and whether i is within bounds.
func (c Catalog) At(i int) (string, bool) {
	if i < 0 || i >= len(c.labels) {
		return "", false
	}
	return c.labels[i], true
}

// Labels returns a copy of the labels in index order.
func (c Catalog) Labels() []string {
	return append([]string(nil), c.labels...)
}

// Load reads a label file with one label per line. Surrounding whitespace is
// trimmed and trailing blank lines are dropped; interior blank lines keep
// their slot so indices stay aligned with the model output.
func Load(path string) (Catalog, error) {
	f, err := os.Open(path) //nolint:gosec // G304: label path comes from configuration
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to open label file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing label file: %v\n", err)
		}
	}()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		out = append(out, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return Catalog{}, fmt.Errorf("failed to read label file %s: %w", path, err)
	}

	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return Catalog{}, fmt.Errorf("%s: %w", path, ErrEmptyCatalog)
	}
	return Catalog{labels: out}, nil
}

// LoadOrDefault loads path when it is non-empty and otherwise returns def.
func LoadOrDefault(path string, def Catalog) (Catalog, error) {
	if path == "" {
		return def, nil
	}
	return Load(path)
}
