package detector

import (
	"testing"

	"github.com/MeKo-Tech/roadsign/internal/labels"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genRaw(scores, classes []float32, count float32) RawOutputs {
	boxes := make([]Box, len(scores))
	for i := range boxes {
		boxes[i] = Box{float32(i), 0, 0, 0}
	}
	return RawOutputs{Locations: boxes, Classes: classes, Scores: scores, Count: count}
}

func TestDecode_Invariants(t *testing.T) {
	properties := gopter.NewProperties(nil)
	catalog := labels.Detector()
	opts := DefaultDecodeOptions()

	properties.Property("detections respect capacity, threshold, catalog and slot order", prop.ForAll(
		func(scores, classes []float32, count float32) bool {
			dets := Decode(genRaw(scores, classes, count), catalog, opts)
			if len(dets) > opts.MaxDetections {
				return false
			}
			prevSlot := float32(-1)
			for _, d := range dets {
				if !(d.Confidence > opts.ScoreThreshold) {
					return false
				}
				if d.ClassIndex < 0 || d.ClassIndex >= catalog.Len() {
					return false
				}
				if want, _ := catalog.At(d.ClassIndex); want != d.Label {
					return false
				}
				// Box[0] carries the slot index in genRaw.
				if d.Box[0] <= prevSlot || d.Box[0] >= float32(opts.MaxDetections) {
					return false
				}
				prevSlot = d.Box[0]
			}
			return true
		},
		gen.SliceOfN(10, gen.Float32Range(0, 1)),
		gen.SliceOfN(10, gen.Float32Range(-5, 40)),
		gen.Float32Range(-2, 20),
	))

	properties.Property("every eligible slot below the count survives", prop.ForAll(
		func(scores []float32, count int) bool {
			classes := make([]float32, len(scores))
			for i := range classes {
				classes[i] = float32(i % catalog.Len())
			}
			dets := Decode(genRaw(scores, classes, float32(count)), catalog, opts)
			want := 0
			for i := 0; i < min(count, opts.MaxDetections, len(scores)); i++ {
				if scores[i] > opts.ScoreThreshold {
					want++
				}
			}
			return len(dets) == want
		},
		gen.SliceOfN(10, gen.Float32Range(0, 1)),
		gen.IntRange(0, 15),
	))

	properties.TestingRun(t)
}
