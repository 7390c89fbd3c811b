package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/imageio"
	"github.com/MeKo-Tech/roadsign/internal/models"
	"github.com/MeKo-Tech/roadsign/internal/render"
	"github.com/MeKo-Tech/roadsign/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:          "healthy",
		Version:         version.Version,
		Time:            time.Now().UTC().Format(time.RFC3339),
		ClassifierReady: s.classifier != nil && s.classifier.Ready(),
		DetectorReady:   s.detector != nil && s.detector.Ready(),
	}
	writeJSON(w, http.StatusOK, response)
}

// modelsHandler lists the expected model assets and whether they exist.
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list := models.ListAvailableModels(s.modelsDir, s.backend)
	writeJSON(w, http.StatusOK, ModelsResponse{Models: list, Count: len(list)})
}

// classifyHandler runs the speed limit classifier on an uploaded image.
func (s *Server) classifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.classifier == nil || !s.classifier.Ready() {
		s.writeErrorResponse(w, s.messages.NotLoaded(), http.StatusServiceUnavailable)
		return
	}

	img, ok := s.readUploadedImage(w, r)
	if !ok {
		return
	}

	start := time.Now()
	res, err := s.classifier.Predict(img)
	inferenceDuration.WithLabelValues("classify").Observe(time.Since(start).Seconds())
	if err != nil {
		inferenceRequestsTotal.WithLabelValues("classify", "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Classification failed: %v", err), http.StatusInternalServerError)
		return
	}
	inferenceRequestsTotal.WithLabelValues("classify", "success").Inc()

	writeJSON(w, http.StatusOK, ClassifyResponse{
		Label:      res.Label,
		Index:      res.Index,
		Confidence: res.Confidence,
		Text:       s.messages.Classification(res.Label, res.Confidence),
	})
}

// detectHandler runs the sign detector on an uploaded image. With
// ?overlay=png|jpeg|webp the annotated image is returned instead of JSON.
func (s *Server) detectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.detector == nil || !s.detector.Ready() {
		s.writeErrorResponse(w, s.messages.NotLoaded(), http.StatusServiceUnavailable)
		return
	}

	var overlay render.Format
	if q := r.URL.Query().Get("overlay"); q != "" {
		f, err := render.ParseFormat(q)
		if err != nil {
			s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		overlay = f
	}

	img, ok := s.readUploadedImage(w, r)
	if !ok {
		return
	}

	dets, err := s.runDetection(img)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Detection failed: %v", err), http.StatusInternalServerError)
		return
	}

	if overlay != "" {
		w.Header().Set("Content-Type", overlay.ContentType())
		if err := render.Encode(w, render.Draw(img, dets, s.overlayStyle), overlay); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding overlay: %v\n", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, DetectResponse{
		Detections: dets,
		Count:      len(dets),
		Summary:    detector.Summary(dets, s.messages),
	})
}

// runDetection wraps DetectObjects with metrics and guarantees a non-nil slice.
func (s *Server) runDetection(img image.Image) ([]detector.Detection, error) {
	start := time.Now()
	dets, err := s.detector.DetectObjects(img)
	inferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		inferenceRequestsTotal.WithLabelValues("detect", "error").Inc()
		return nil, err
	}
	inferenceRequestsTotal.WithLabelValues("detect", "success").Inc()
	signsDetected.Observe(float64(len(dets)))
	if dets == nil {
		dets = []detector.Detection{}
	}
	return dets, nil
}

// readUploadedImage decodes the multipart "image" field. On failure it writes
// the error response and returns false.
func (s *Server) readUploadedImage(w http.ResponseWriter, r *http.Request) (image.Image, bool) {
	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "File too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, "No image file provided", http.StatusBadRequest)
		return nil, false
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read image data", http.StatusInternalServerError)
		return nil, false
	}

	img, _, err := imageio.DecodeBytes(data)
	if err != nil {
		s.writeErrorResponse(w, "Invalid image format", http.StatusBadRequest)
		return nil, false
	}
	return img, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding response: %v\n", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Success: false, Error: message})
}
