package classifier

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/roadsign/internal/labels"
)

// ErrClassOutOfRange is returned when the winning index has no label.
var ErrClassOutOfRange = errors.New("class index outside label catalog")

// Result is the top-scoring class of one classification pass.
type Result struct {
	Index      int     `json:"index"      yaml:"index"`
	Label      string  `json:"label"      yaml:"label"`
	Confidence float32 `json:"confidence" yaml:"confidence"`
}

// Decode picks the arg-max of output. The scan starts from a floor of 0 and
// only a strictly greater value replaces the current best, so ties keep the
// lowest index and an all non-positive vector yields index 0 with
// confidence 0.
func Decode(output []float32, catalog labels.Catalog) (Result, error) {
	best := 0
	var maxConfidence float32
	for i, v := range output {
		if v > maxConfidence {
			maxConfidence = v
			best = i
		}
	}

	label, ok := catalog.At(best)
	if !ok {
		return Result{}, fmt.Errorf("%w: index %d, catalog size %d", ErrClassOutOfRange, best, catalog.Len())
	}
	return Result{Index: best, Label: label, Confidence: maxConfidence}, nil
}
