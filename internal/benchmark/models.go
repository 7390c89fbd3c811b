package benchmark

import (
	"fmt"
	"image"

	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/preprocess"
)

// Case names registered by the helpers below.
const (
	CasePreprocessClassifier = "preprocess_224"
	CasePreprocessDetector   = "preprocess_300"
	CaseClassifier           = "classifier_predict"
	CaseDetector             = "detector_detect"
)

// AddPreprocess times resizing and normalization at both model sizes,
// reusing pooled buffers as the models do.
func (s *Suite) AddPreprocess(img image.Image) {
	for _, c := range []struct {
		name string
		size int
	}{
		{CasePreprocessClassifier, preprocess.ClassifierSize},
		{CasePreprocessDetector, preprocess.DetectorSize},
	} {
		size := c.size
		s.Add(c.name, func() error {
			buf := preprocess.Acquire(size)
			defer preprocess.Release(buf)
			_, err := preprocess.PrepareInto(img, size, buf)
			return err
		})
	}
}

// AddClassifier times Predict on img. A classifier that is not ready is
// rejected with its load error.
func (s *Suite) AddClassifier(c *classifier.Classifier, img image.Image) error {
	if !c.Ready() {
		return fmt.Errorf("classifier not ready: %w", c.LoadError())
	}
	s.Add(CaseClassifier, func() error {
		_, err := c.Predict(img)
		return err
	})
	return nil
}

// AddDetector times DetectObjects on img.
func (s *Suite) AddDetector(d *detector.Detector, img image.Image) error {
	if !d.Ready() {
		return fmt.Errorf("detector not ready: %w", d.LoadError())
	}
	s.Add(CaseDetector, func() error {
		_, err := d.DetectObjects(img)
		return err
	})
	return nil
}
