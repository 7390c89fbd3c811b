// Package classifier runs the speed limit classification model and maps its
// output vector to a label.
package classifier

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

// ErrNotLoaded is returned by every call on a classifier whose assets failed
// to load or which has been closed.
var ErrNotLoaded = errors.New("classifier model is not loaded")

// Config holds configuration for the classifier.
type Config struct {
	ModelPath  string         // Path to the model file
	LabelsPath string         // Label file; empty uses the built-in catalog
	InputSize  int            // Square input resolution
	Backend    engine.Backend // onnx or tflite
	NumThreads int            // 0 lets the runtime decide
	Language   string         // Language of result strings (pl, en)
}

// DefaultConfig returns a default classifier configuration.
func DefaultConfig() Config {
	return Config{
		ModelPath:  models.ClassifierModelPath("", string(engine.BackendONNX)),
		LabelsPath: models.ClassifierLabelsPath(""),
		InputSize:  preprocess.ClassifierSize,
		Backend:    engine.BackendONNX,
	}
}

// UpdateModelPath points ModelPath and LabelsPath at modelsDir.
func (c *Config) UpdateModelPath(modelsDir string) {
	c.ModelPath = models.ClassifierModelPath(modelsDir, string(c.Backend))
	c.LabelsPath = models.ClassifierLabelsPath(modelsDir)
}

// Classifier owns a loaded model and its labels. Calls on one instance are
// serialized.
type Classifier struct {
	mu       sync.Mutex
	config   Config
	runner   engine.Runner
	catalog  labels.Catalog
	messages i18n.Messages
	loadErr  error
}

// New loads the model and labels. It never fails: when an asset cannot be
// loaded the error is logged and the classifier stays inert, answering every
// call with the "not loaded" result.
func New(config Config) *Classifier {
	if config.InputSize <= 0 {
		config.InputSize = preprocess.ClassifierSize
	}
	c := &Classifier{config: config, messages: i18n.New(config.Language)}

	slog.Debug("Initializing classifier",
		"model_path", config.ModelPath,
		"labels_path", config.LabelsPath,
		"backend", config.Backend,
		"input_size", config.InputSize)

	runner, err := engine.Load(engine.Config{
		Name:       "classifier",
		ModelPath:  config.ModelPath,
		Backend:    config.Backend,
		NumThreads: config.NumThreads,
	})
	if err != nil {
		c.loadErr = err
		slog.Error("Error initializing classifier", "error", err)
		return c
	}

	catalog, err := labels.LoadOrDefault(config.LabelsPath, labels.Classifier())
	if err != nil {
		if cerr := runner.Close(); cerr != nil {
			slog.Warn("Failed to close classifier runner", "error", cerr)
		}
		c.loadErr = &engine.AssetError{Kind: "labels", Path: config.LabelsPath, Err: err}
		slog.Error("Error initializing classifier", "error", c.loadErr)
		return c
	}

	c.runner = runner
	c.catalog = catalog
	slog.Debug("Classifier initialized successfully", "labels", catalog.Len())
	return c
}

// NewWithRunner builds a classifier around an already loaded runner. A nil
// runner yields an inert classifier.
func NewWithRunner(runner engine.Runner, catalog labels.Catalog, config Config) *Classifier {
	if config.InputSize <= 0 {
		config.InputSize = preprocess.ClassifierSize
	}
	c := &Classifier{config: config, messages: i18n.New(config.Language)}
	if runner == nil {
		c.loadErr = ErrNotLoaded
		return c
	}
	c.runner = runner
	c.catalog = catalog
	return c
}

// Ready reports whether the classifier can run inference.
func (c *Classifier) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runner != nil
}

// LoadError returns the asset failure that made the classifier inert, if any.
func (c *Classifier) LoadError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Labels returns the label catalog in use.
func (c *Classifier) Labels() labels.Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog
}

// Config returns a copy of the classifier's configuration.
func (c *Classifier) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Predict classifies img and returns the top class.
func (c *Classifier) Predict(img image.Image) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runner == nil {
		return Result{}, ErrNotLoaded
	}

	size := c.config.InputSize
	buf := preprocess.Acquire(size)
	defer preprocess.Release(buf)

	start := time.Now()
	input, err := preprocess.PrepareInto(img, size, buf)
	if err != nil {
		return Result{}, err
	}

	outputs, err := c.runner.Run(input, []engine.OutputSpec{
		{Name: "probabilities", Shape: []int64{1, int64(c.catalog.Len())}},
	})
	if err != nil {
		return Result{}, fmt.Errorf("classification failed: %w", err)
	}

	res, err := Decode(outputs[0], c.catalog)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("Classification completed",
		"label", res.Label,
		"index", res.Index,
		"confidence", res.Confidence,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// Classify returns the human-readable top class, for example
// "Znak: speed limit 60 (pewność: 80.00%)". When the model is unavailable it
// returns the "not loaded" sentinel; it never panics.
func (c *Classifier) Classify(img image.Image) string {
	res, err := c.Predict(img)
	switch {
	case err == nil:
		return c.messages.Classification(res.Label, res.Confidence)
	case errors.Is(err, preprocess.ErrNilImage), errors.Is(err, preprocess.ErrEmptyImage):
		slog.Error("Cannot classify image", "error", err)
		return c.messages.InvalidImage()
	case errors.Is(err, ErrNotLoaded):
		slog.Error("Classifier is not loaded", "load_error", c.LoadError())
		return c.messages.NotLoaded()
	default:
		slog.Error("Classification failed", "error", err)
		return c.messages.NotLoaded()
	}
}

// Messages returns the formatter used for result strings.
func (c *Classifier) Messages() i18n.Messages { return c.messages }

// Warmup runs iterations forward passes on a blank image.
func (c *Classifier) Warmup(iterations int) error {
	if iterations <= 0 {
		return nil
	}
	if !c.Ready() {
		return ErrNotLoaded
	}
	size := c.Config().InputSize
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for range iterations {
		if _, err := c.Predict(img); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the model and labels. It is safe to call more than once.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.runner != nil {
		err = c.runner.Close()
		c.runner = nil
	}
	c.catalog = labels.Catalog{}
	return err
}
