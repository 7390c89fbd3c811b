package detector

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/roadsign/internal/labels"
)

// Box is [ymin, xmin, ymax, xmax] in normalized image coordinates, exactly as
// the model emits it.
type Box [4]float32

func (b Box) YMin() float32 { return b[0] }
func (b Box) XMin() float32 { return b[1] }
func (b Box) YMax() float32 { return b[2] }
func (b Box) XMax() float32 { return b[3] }

// Detection is one surviving candidate slot.
type Detection struct {
	Label      string  `json:"label"       yaml:"label"`
	ClassIndex int     `json:"class_index" yaml:"class_index"`
	Confidence float32 `json:"confidence"  yaml:"confidence"`
	Box        Box     `json:"box"         yaml:"box"`
}

func (d Detection) String() string {
	return fmt.Sprintf("%s (%.2f%%) [%.3f %.3f %.3f %.3f]",
		d.Label, d.Confidence*100, d.Box[0], d.Box[1], d.Box[2], d.Box[3])
}

// RawOutputs holds the four coordinated SSD outputs of one forward pass.
type RawOutputs struct {
	Locations []Box
	Classes   []float32
	Scores    []float32
	Count     float32
}

// ParseOutputs splits flat runner outputs (locations, classes, scores,
// count) into RawOutputs.
func ParseOutputs(outputs [][]float32) (RawOutputs, error) {
	if len(outputs) != 4 {
		return RawOutputs{}, fmt.Errorf("detector expects 4 outputs, got %d", len(outputs))
	}
	loc, classes, scores, count := outputs[0], outputs[1], outputs[2], outputs[3]
	if len(loc)%4 != 0 {
		return RawOutputs{}, fmt.Errorf("locations length %d is not a multiple of 4", len(loc))
	}
	if len(count) == 0 {
		return RawOutputs{}, fmt.Errorf("count output is empty")
	}
	boxes := make([]Box, len(loc)/4)
	for i := range boxes {
		copy(boxes[i][:], loc[i*4:i*4+4])
	}
	return RawOutputs{Locations: boxes, Classes: classes, Scores: scores, Count: count[0]}, nil
}

// DecodeOptions configures candidate filtering.
type DecodeOptions struct {
	ScoreThreshold float32 // keep scores strictly above this
	MaxDetections  int     // fixed output capacity of the model
}

// DefaultDecodeOptions matches the reference SSD export.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{ScoreThreshold: DefaultScoreThreshold, MaxDetections: DefaultMaxDetections}
}

// effectiveCount truncates the reported count and clamps it to capacity and
// to the number of slots actually present.
func effectiveCount(out RawOutputs, capacity int) int {
	c := float64(out.Count)
	if math.IsNaN(c) || c <= 0 {
		return 0
	}
	n := capacity
	if c < float64(capacity) {
		n = int(c)
	}
	n = min(n, len(out.Scores), len(out.Classes), len(out.Locations))
	return max(n, 0)
}

// Decode filters candidate slots in order. A slot survives when its score is
// strictly above the threshold and its truncated class index names a label;
// out-of-range classes are logged and skipped. Boxes are copied verbatim.
func Decode(out RawOutputs, catalog labels.Catalog, opts DecodeOptions) []Detection {
	n := effectiveCount(out, opts.MaxDetections)
	detections := make([]Detection, 0, n)
	for i := range n {
		score := out.Scores[i]
		if !(score > opts.ScoreThreshold) {
			continue
		}
		raw := out.Classes[i]
		if math.IsNaN(float64(raw)) {
			slog.Warn("Invalid class index", "slot", i, "class", raw)
			continue
		}
		classIndex := int(raw)
		label, ok := catalog.At(classIndex)
		if !ok {
			slog.Warn("Invalid class index", "slot", i, "class", classIndex, "catalog_size", catalog.Len())
			continue
		}
		detections = append(detections, Detection{
			Label:      label,
			ClassIndex: classIndex,
			Confidence: score,
			Box:        out.Locations[i],
		})
	}
	return detections
}
