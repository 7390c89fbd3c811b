// Package engine hides the native inference runtime behind a narrow Runner
// interface: given an input tensor and the expected output shapes, execute
// one forward pass and return the outputs as float32 slices.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/roadsign/internal/tensor"
)

// Backend selects the native runtime used to execute a model.
type Backend string

const (
	BackendONNX   Backend = "onnx"
	BackendTFLite Backend = "tflite"
)

var (
	ErrClosed             = errors.New("runner is closed")
	ErrEmptyModel         = errors.New("model file is empty")
	ErrBackendUnavailable = errors.New("inference backend not compiled in")
	ErrUnknownBackend     = errors.New("unknown inference backend")
)

// Runner executes a model. Implementations are safe to Close more than once;
// Run after Close returns ErrClosed.
type Runner interface {
	Run(input tensor.Tensor, outputs []OutputSpec) ([][]float32, error)
	Close() error
}

// OutputSpec declares one fixed-shape model output.
type OutputSpec struct {
	Name  string
	Shape []int64
}

// Len returns the number of float32 values the output holds.
func (s OutputSpec) Len() int { return tensor.Elements(s.Shape) }

// Config describes which model to load and how.
type Config struct {
	Name        string // used in logs and metrics, e.g. "classifier"
	ModelPath   string
	Backend     Backend
	NumThreads  int
	OutputNames []string // ONNX only; defaults to the model's declared order
}

// AssetError reports a model or label asset that could not be loaded.
type AssetError struct {
	Kind string // "model" or "labels"
	Path string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("failed to load %s asset %q: %v", e.Kind, e.Path, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// ShapeError reports an output whose length does not match its OutputSpec.
type ShapeError struct {
	Output string
	Want   int
	Got    int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("output %q has %d values, want %d", e.Output, e.Got, e.Want)
}

// ParseBackend validates a backend name. An empty name selects ONNX.
func ParseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case "", BackendONNX:
		return BackendONNX, nil
	case BackendTFLite:
		return BackendTFLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Load reads the model file fully into memory and creates a runner for it.
func Load(cfg Config) (Runner, error) {
	if cfg.ModelPath == "" {
		return nil, &AssetError{Kind: "model", Err: errors.New("model path is empty")}
	}
	data, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		modelLoadsTotal.WithLabelValues(cfg.Name, string(cfg.Backend), "error").Inc()
		return nil, &AssetError{Kind: "model", Path: cfg.ModelPath, Err: err}
	}
	r, err := FromBytes(cfg, data)
	if err != nil {
		var ae *AssetError
		if !errors.As(err, &ae) {
			err = &AssetError{Kind: "model", Path: cfg.ModelPath, Err: err}
		}
		return nil, err
	}
	return r, nil
}

// FromBytes creates a runner from an in-memory model.
func FromBytes(cfg Config, data []byte) (Runner, error) {
	backend, err := ParseBackend(string(cfg.Backend))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		modelLoadsTotal.WithLabelValues(cfg.Name, string(backend), "error").Inc()
		return nil, &AssetError{Kind: "model", Path: cfg.ModelPath, Err: ErrEmptyModel}
	}

	slog.Debug("Loading model",
		"name", cfg.Name,
		"backend", backend,
		"bytes", len(data),
		"num_threads", cfg.NumThreads)

	var r Runner
	switch backend {
	case BackendTFLite:
		r, err = newTFLiteRunner(data, cfg)
	default:
		r, err = newONNXRunner(data, cfg)
	}
	if err != nil {
		modelLoadsTotal.WithLabelValues(cfg.Name, string(backend), "error").Inc()
		return nil, err
	}
	modelLoadsTotal.WithLabelValues(cfg.Name, string(backend), "ok").Inc()
	return Instrument(r, cfg.Name, string(backend)), nil
}

// Instrument wraps r so that every Run is timed and failures are counted.
func Instrument(r Runner, name, backend string) Runner {
	return &instrumented{Runner: r, name: name, backend: backend}
}

type instrumented struct {
	Runner
	name    string
	backend string
}

func (i *instrumented) Run(input tensor.Tensor, outputs []OutputSpec) ([][]float32, error) {
	if err := tensor.Verify(input); err != nil {
		inferenceErrorsTotal.WithLabelValues(i.name, i.backend).Inc()
		return nil, fmt.Errorf("invalid %s input: %w", i.name, err)
	}
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		minVal, maxVal, mean := tensor.Stats(input.Data)
		slog.Debug("Input tensor", "model", i.name, "shape", input.Shape, "min", minVal, "max", maxVal, "mean", mean)
	}
	start := time.Now()
	out, err := i.Runner.Run(input, outputs)
	elapsed := time.Since(start)
	if err != nil {
		inferenceErrorsTotal.WithLabelValues(i.name, i.backend).Inc()
		return nil, err
	}
	inferenceDuration.WithLabelValues(i.name, i.backend).Observe(elapsed.Seconds())
	slog.Debug("Inference completed", "model", i.name, "backend", i.backend, "duration_ms", elapsed.Milliseconds())
	return out, nil
}

// CheckOutputs validates runtime outputs against their specs.
func CheckOutputs(outputs [][]float32, specs []OutputSpec) error {
	if len(outputs) != len(specs) {
		return fmt.Errorf("model produced %d outputs, want %d", len(outputs), len(specs))
	}
	for i, spec := range specs {
		if len(outputs[i]) != spec.Len() {
			return &ShapeError{Output: specName(spec, i), Want: spec.Len(), Got: len(outputs[i])}
		}
	}
	return nil
}

func specName(spec OutputSpec, i int) string {
	if spec.Name != "" {
		return spec.Name
	}
	return fmt.Sprintf("output_%d", i)
}
