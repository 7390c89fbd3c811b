package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/labels"
	"github.com/MeKo-Tech/roadsign/internal/testutil"
	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	s := newTestServer(readyClassifier(), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.ClassifierReady)
	assert.False(t, resp.DetectorReady)
	assert.NotEmpty(t, resp.Time)
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestModelsHandler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classifier_224.onnx"), []byte("x"), 0o600))

	s := New(nil, nil, Config{ModelsDir: dir})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ModelsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, len(resp.Models), resp.Count)

	found := map[string]bool{}
	for _, m := range resp.Models {
		found[m.Filename] = m.Exists
	}
	assert.True(t, found["classifier_224.onnx"])
	assert.False(t, found["detect.onnx"])
}

func TestClassifyHandler(t *testing.T) {
	s := newTestServer(readyClassifier(), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, multipartRequest(t, "/classify", "image", signPNG(t)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ClassifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "speed limit 60", resp.Label)
	assert.Equal(t, 6, resp.Index)
	assert.InDelta(t, 0.8, resp.Confidence, 1e-6)
	assert.Equal(t, "Sign: speed limit 60 (confidence: 80.00%)", resp.Text)
}

func TestClassifyHandler_PolishText(t *testing.T) {
	s := New(readyClassifier(), nil, Config{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, multipartRequest(t, "/classify", "image", signPNG(t)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClassifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Znak: speed limit 60 (pewność: 80.00%)", resp.Text)
}

func TestClassifyHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		server *Server
		req    func(t *testing.T) *http.Request
		status int
		errSub string
	}{
		{
			name:   "not loaded",
			server: newTestServer(inertClassifier{}, nil),
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "/classify", "image", signPNG(t)) },
			status: http.StatusServiceUnavailable,
			errSub: "Model is not loaded.",
		},
		{
			name:   "missing field",
			server: newTestServer(readyClassifier(), nil),
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "/classify", "", nil) },
			status: http.StatusBadRequest,
			errSub: "No image file provided",
		},
		{
			name:   "not an image",
			server: newTestServer(readyClassifier(), nil),
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/classify", "image", []byte("definitely not a png"))
			},
			status: http.StatusBadRequest,
			errSub: "Invalid image format",
		},
		{
			name:   "not multipart",
			server: newTestServer(readyClassifier(), nil),
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/classify", strings.NewReader("{}"))
			},
			status: http.StatusBadRequest,
			errSub: "Failed to parse form data",
		},
		{
			name:   "too large",
			server: newTestServer(readyClassifier(), nil),
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/classify", "image", bytes.Repeat([]byte{0xff}, 2*1024*1024))
			},
			status: http.StatusRequestEntityTooLarge,
			errSub: "File too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.server.Handler().ServeHTTP(rec, tt.req(t))
			assert.Equal(t, tt.status, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.errSub)
		})
	}
}

func TestClassifyHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(readyClassifier(), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/classify", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDetectHandler(t *testing.T) {
	s := newTestServer(nil, stopDetector())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, multipartRequest(t, "/detect", "image", signPNG(t)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp DetectResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "stop", resp.Detections[0].Label)
	assert.Equal(t, 2, resp.Detections[0].ClassIndex)
	assert.Equal(t, detector.Box{0.1, 0.1, 0.5, 0.5}, resp.Detections[0].Box)
	assert.Equal(t, "Result:\nstop (90.00%)\n", resp.Summary)
}

func TestDetectHandler_NoDetections(t *testing.T) {
	outputs := testutil.DetectorOutputs(10, nil, nil, nil, 0)
	det := detector.NewWithRunner(testutil.NewStaticRunner(outputs...), labels.Detector(), detector.Config{})
	s := newTestServer(nil, det)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, multipartRequest(t, "/detect", "image", signPNG(t)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"detections":[]`)
	assert.Contains(t, rec.Body.String(), "No signs detected.")
}

func TestDetectHandler_Overlay(t *testing.T) {
	s := newTestServer(nil, stopDetector())

	t.Run("png", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, multipartRequest(t, "/detect?overlay=png", "image", signPNG(t)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

		img, err := png.Decode(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, 64, img.Bounds().Dx())
		assert.Equal(t, 48, img.Bounds().Dy())
	})

	t.Run("webp", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, multipartRequest(t, "/detect?overlay=webp", "image", signPNG(t)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))

		img, err := webp.Decode(rec.Body)
		require.NoError(t, err)
		assert.Equal(t, 64, img.Bounds().Dx())
	})

	t.Run("unknown format", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, multipartRequest(t, "/detect?overlay=gif", "image", signPNG(t)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDetectHandler_Errors(t *testing.T) {
	t.Run("not loaded", func(t *testing.T) {
		s := newTestServer(nil, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, multipartRequest(t, "/detect", "image", signPNG(t)))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("inference failure", func(t *testing.T) {
		s := newTestServer(nil, failingDetector{})
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, multipartRequest(t, "/detect", "image", signPNG(t)))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "runner exploded")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(readyClassifier(), nil)
	h := s.Handler()

	h.ServeHTTP(httptest.NewRecorder(), multipartRequest(t, "/classify", "image", signPNG(t)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "roadsign_http_requests_total")
	assert.Contains(t, rec.Body.String(), "roadsign_server_inference_requests_total")
}

func TestServerClose(t *testing.T) {
	cls := readyClassifier()
	det := stopDetector()
	s := newTestServer(cls, det)

	require.NoError(t, s.Close())
	assert.False(t, cls.Ready())
	assert.False(t, det.Ready())
	require.NoError(t, s.Close())
}
