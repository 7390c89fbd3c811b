package server

import (
	"bytes"
	"errors"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/labels"
	"github.com/MeKo-Tech/roadsign/internal/testutil"
	"github.com/stretchr/testify/require"
)

// speedLimit60 puts 0.8 on the "speed limit 60" slot of the classifier.
var speedLimit60 = []float32{0, 0, 0, 0, 0, 0, 0.8, 0, 0}

func readyClassifier() *classifier.Classifier {
	return classifier.NewWithRunner(testutil.NewStaticRunner(speedLimit60), labels.Classifier(), classifier.Config{})
}

// stopDetector reports one "stop" sign in the upper-left quadrant.
func stopDetector() *detector.Detector {
	outputs := testutil.DetectorOutputs(10, [][4]float32{{0.1, 0.1, 0.5, 0.5}}, []float32{2}, []float32{0.9}, 1)
	return detector.NewWithRunner(testutil.NewStaticRunner(outputs...), labels.Detector(), detector.Config{})
}

// inertClassifier is a classifier whose model failed to load.
type inertClassifier struct{}

func (inertClassifier) Ready() bool { return false }
func (inertClassifier) Predict(image.Image) (classifier.Result, error) {
	return classifier.Result{}, classifier.ErrNotLoaded
}
func (inertClassifier) Close() error { return nil }

// failingDetector is ready but every pass fails.
type failingDetector struct{}

func (failingDetector) Ready() bool { return true }
func (failingDetector) DetectObjects(image.Image) ([]detector.Detection, error) {
	return nil, errors.New("runner exploded")
}
func (failingDetector) Close() error { return nil }

func newTestServer(cls ClassifierService, det DetectorService) *Server {
	return New(cls, det, Config{Language: "en", MaxUploadMB: 1})
}

func multipartRequest(t *testing.T, target, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "upload.png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func signPNG(t *testing.T) []byte {
	t.Helper()
	return testutil.EncodePNG(t, testutil.SignImage(64, 48))
}
