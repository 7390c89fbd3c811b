package testutil

import (
	"sync"

	"github.com/MeKo-Tech/roadsign/internal/engine"
	"github.com/MeKo-Tech/roadsign/internal/tensor"
)

// StaticRunner is an engine.Runner that returns canned outputs.
type StaticRunner struct {
	mu      sync.Mutex
	Outputs [][]float32
	Err     error

	calls     int
	closes    int
	lastInput tensor.Tensor
	lastSpecs []engine.OutputSpec
}

// NewStaticRunner returns a runner that always yields outputs.
func NewStaticRunner(outputs ...[]float32) *StaticRunner {
	return &StaticRunner{Outputs: outputs}
}

func (r *StaticRunner) Run(input tensor.Tensor, specs []engine.OutputSpec) ([][]float32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	r.lastInput = tensor.Tensor{Data: append([]float32(nil), input.Data...), Shape: input.Shape}
	r.lastSpecs = specs
	if r.closes > 0 {
		return nil, engine.ErrClosed
	}
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([][]float32, len(r.Outputs))
	for i, o := range r.Outputs {
		out[i] = append([]float32(nil), o...)
	}
	if err := engine.CheckOutputs(out, specs); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StaticRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

// Calls returns the number of Run invocations.
func (r *StaticRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Closes returns the number of Close invocations.
func (r *StaticRunner) Closes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// LastInput returns a copy of the most recent input tensor.
func (r *StaticRunner) LastInput() tensor.Tensor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastInput
}

// LastSpecs returns the output specs of the most recent call.
func (r *StaticRunner) LastSpecs() []engine.OutputSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSpecs
}

// DetectorOutputs lays out SSD-style outputs for a StaticRunner: locations
// [capacity×4], classes [capacity], scores [capacity] and a scalar count.
// Slots beyond the given boxes are zero-filled.
func DetectorOutputs(capacity int, boxes [][4]float32, classes, scores []float32, count float32) [][]float32 {
	loc := make([]float32, capacity*4)
	for i, b := range boxes {
		copy(loc[i*4:i*4+4], b[:])
	}
	cls := make([]float32, capacity)
	copy(cls, classes)
	sc := make([]float32, capacity)
	copy(sc, scores)
	return [][]float32{loc, cls, sc, {count}}
}
