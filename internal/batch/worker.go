package batch

import (
	"image"

	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/i18n"
)

// Outcome is what a worker produces for one image.
type Outcome struct {
	Classification *classifier.Result
	Detections     []detector.Detection
	Text           string
}

// Worker processes images with a single model instance. A worker is used
// by one goroutine at a time.
type Worker interface {
	Process(img image.Image) (Outcome, error)
	Close() error
}

// Factory builds a fresh worker.
type Factory func() (Worker, error)

// ClassifierFactory loads a classifier per worker. A classifier whose assets
// fail to load is reported as an error instead of running inert.
func ClassifierFactory(cfg classifier.Config) Factory {
	return func() (Worker, error) {
		c := classifier.New(cfg)
		if !c.Ready() {
			err := c.LoadError()
			_ = c.Close()
			return nil, err
		}
		return NewClassifierWorker(c), nil
	}
}

// DetectorFactory loads a detector per worker. Summaries are rendered in lang.
func DetectorFactory(cfg detector.Config, lang string) Factory {
	return func() (Worker, error) {
		d := detector.New(cfg)
		if !d.Ready() {
			err := d.LoadError()
			_ = d.Close()
			return nil, err
		}
		return NewDetectorWorker(d, i18n.New(lang)), nil
	}
}

type classifierWorker struct {
	c *classifier.Classifier
}

// NewClassifierWorker adapts a classifier to the Worker interface.
func NewClassifierWorker(c *classifier.Classifier) Worker {
	return &classifierWorker{c: c}
}

func (w *classifierWorker) Process(img image.Image) (Outcome, error) {
	res, err := w.c.Predict(img)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Classification: &res,
		Text:           w.c.Messages().Classification(res.Label, res.Confidence),
	}, nil
}

func (w *classifierWorker) Close() error { return w.c.Close() }

type detectorWorker struct {
	d *detector.Detector
	m i18n.Messages
}

// NewDetectorWorker adapts a detector to the Worker interface.
func NewDetectorWorker(d *detector.Detector, m i18n.Messages) Worker {
	return &detectorWorker{d: d, m: m}
}

func (w *detectorWorker) Process(img image.Image) (Outcome, error) {
	dets, err := w.d.DetectObjects(img)
	if err != nil {
		return Outcome{}, err
	}
	if dets == nil {
		dets = []detector.Detection{}
	}
	return Outcome{Detections: dets, Text: detector.Summary(dets, w.m)}, nil
}

func (w *detectorWorker) Close() error { return w.d.Close() }
