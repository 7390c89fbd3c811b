// Package detector runs the SSD road sign detection model and turns its
// fixed-capacity outputs into labelled boxes.
package detector

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/roadsign/internal/engine"
	"github.com/MeKo-Tech/roadsign/internal/i18n"
	"github.com/MeKo-Tech/roadsign/internal/labels"
	"github.com/MeKo-Tech/roadsign/internal/models"
	"github.com/MeKo-Tech/roadsign/internal/preprocess"
)

// Defaults of the reference SSD export.
const (
	DefaultScoreThreshold float32 = 0.5
	DefaultMaxDetections          = 10
)

// ErrNotLoaded is returned by every call on a detector whose assets failed
// to load or which has been closed.
var ErrNotLoaded = errors.New("detector model is not loaded")

// Config holds configuration for the detector.
type Config struct {
	ModelPath      string         // Path to the model file
	LabelsPath     string         // Label file; empty uses the built-in catalog
	InputSize      int            // Square input resolution
	ScoreThreshold float32        // Keep candidates scoring strictly above this
	MaxDetections  int            // Output slot capacity of the model
	Backend        engine.Backend // onnx or tflite
	NumThreads     int            // 0 lets the runtime decide
	OutputNames    []string       // ONNX output order override
}

// DefaultConfig returns a default detector configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath:      models.DetectorModelPath("", string(engine.BackendONNX)),
		LabelsPath:     models.DetectorLabelsPath(""),
		InputSize:      preprocess.DetectorSize,
		ScoreThreshold: DefaultScoreThreshold,
		MaxDetections:  DefaultMaxDetections,
		Backend:        engine.BackendONNX,
	}
}

// UpdateModelPath points ModelPath and LabelsPath at modelsDir.
func (c *Config) UpdateModelPath(modelsDir string) {
	c.ModelPath = models.DetectorModelPath(modelsDir, string(c.Backend))
	c.LabelsPath = models.DetectorLabelsPath(modelsDir)
}

func (c *Config) applyDefaults() {
	if c.InputSize <= 0 {
		c.InputSize = preprocess.DetectorSize
	}
	if c.MaxDetections <= 0 {
		c.MaxDetections = DefaultMaxDetections
	}
}

// DecodeOptions returns the filtering options derived from the config.
func (c Config) DecodeOptions() DecodeOptions {
	return DecodeOptions{ScoreThreshold: c.ScoreThreshold, MaxDetections: c.MaxDetections}
}

// outputSpecs declares locations [1,N,4], classes [1,N], scores [1,N] and
// count [1].
func (c Config) outputSpecs() []engine.OutputSpec {
	n := int64(c.MaxDetections)
	return []engine.OutputSpec{
		{Name: "locations", Shape: []int64{1, n, 4}},
		{Name: "classes", Shape: []int64{1, n}},
		{Name: "scores", Shape: []int64{1, n}},
		{Name: "count", Shape: []int64{1}},
	}
}

// Detector owns a loaded model and its labels. Calls on one instance are
// serialized.
type Detector struct {
	mu      sync.Mutex
	config  Config
	runner  engine.Runner
	catalog labels.Catalog
	loadErr error
}

// New loads the model and labels. It never fails: when an asset cannot be
// loaded the error is logged and the detector stays inert, returning no
// detections.
func New(config Config) *Detector {
	config.applyDefaults()
	d := &Detector{config: config}

	slog.Debug("Initializing detector",
		"model_path", config.ModelPath,
		"labels_path", config.LabelsPath,
		"backend", config.Backend,
		"input_size", config.InputSize,
		"score_threshold", config.ScoreThreshold,
		"max_detections", config.MaxDetections)

	runner, err := engine.Load(engine.Config{
		Name:        "detector",
		ModelPath:   config.ModelPath,
		Backend:     config.Backend,
		NumThreads:  config.NumThreads,
		OutputNames: config.OutputNames,
	})
	if err != nil {
		d.loadErr = err
		slog.Error("Error initializing detector", "error", err)
		return d
	}

	catalog, err := labels.LoadOrDefault(config.LabelsPath, labels.Detector())
	if err != nil {
		if cerr := runner.Close(); cerr != nil {
			slog.Warn("Failed to close detector runner", "error", cerr)
		}
		d.loadErr = &engine.AssetError{Kind: "labels", Path: config.LabelsPath, Err: err}
		slog.Error("Error initializing detector", "error", d.loadErr)
		return d
	}

	d.runner = runner
	d.catalog = catalog
	slog.Debug("Detector initialized successfully", "labels", catalog.Len())
	return d
}

// NewWithRunner builds a detector around an already loaded runner. A nil
// runner yields an inert detector.
func NewWithRunner(runner engine.Runner, catalog labels.Catalog, config Config) *Detector {
	config.applyDefaults()
	d := &Detector{config: config}
	if runner == nil {
		d.loadErr = ErrNotLoaded
		return d
	}
	d.runner = runner
	d.catalog = catalog
	return d
}

// Ready reports whether the detector can run inference.
func (d *Detector) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runner != nil
}

// LoadError returns the asset failure that made the detector inert, if any.
func (d *Detector) LoadError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadErr
}

// Labels returns the label catalog in use.
func (d *Detector) Labels() labels.Catalog {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.catalog
}

// GetConfig returns a copy of the detector's configuration.
func (d *Detector) GetConfig() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// DetectObjects runs one detection pass over img.
func (d *Detector) DetectObjects(img image.Image) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.runner == nil {
		return nil, ErrNotLoaded
	}

	size := d.config.InputSize
	buf := preprocess.Acquire(size)
	defer preprocess.Release(buf)

	start := time.Now()
	input, err := preprocess.PrepareInto(img, size, buf)
	if err != nil {
		return nil, err
	}

	outputs, err := d.runner.Run(input, d.config.outputSpecs())
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	raw, err := ParseOutputs(outputs)
	if err != nil {
		return nil, err
	}

	detections := Decode(raw, d.catalog, d.config.DecodeOptions())
	slog.Debug("Detection completed",
		"reported_count", raw.Count,
		"detections", len(detections),
		"duration_ms", time.Since(start).Milliseconds())
	return detections, nil
}

// Detect returns the detections in img, or an empty slice when the model is
// unavailable or the pass fails. It never panics.
func (d *Detector) Detect(img image.Image) []Detection {
	dets, err := d.DetectObjects(img)
	if err != nil {
		if errors.Is(err, ErrNotLoaded) {
			slog.Error("Detector is not loaded", "load_error", d.LoadError())
		} else {
			slog.Error("Detection failed", "error", err)
		}
		return []Detection{}
	}
	return dets
}

// Warmup runs iterations forward passes on a blank image.
func (d *Detector) Warmup(iterations int) error {
	if iterations <= 0 {
		return nil
	}
	if !d.Ready() {
		return ErrNotLoaded
	}
	size := d.GetConfig().InputSize
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for range iterations {
		if _, err := d.DetectObjects(img); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the model and labels. It is safe to call more than once.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.runner != nil {
		err = d.runner.Close()
		d.runner = nil
	}
	d.catalog = labels.Catalog{}
	return err
}

// Entries converts detections for i18n summaries.
func Entries(dets []Detection) []i18n.Entry {
	out := make([]i18n.Entry, len(dets))
	for i, d := range dets {
		out[i] = i18n.Entry{Label: d.Label, Confidence: d.Confidence}
	}
	return out
}

// Summary renders detections as the user-facing result text.
func Summary(dets []Detection, m i18n.Messages) string {
	return m.Summary(Entries(dets))
}
