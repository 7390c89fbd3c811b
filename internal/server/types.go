// Package server exposes the classifier and detector over HTTP and WebSocket.
package server

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"

	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/i18n"
	"github.com/MeKo-Tech/roadsign/internal/models"
	"github.com/MeKo-Tech/roadsign/internal/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ClassifierService is the part of *classifier.Classifier the server uses.
type ClassifierService interface {
	Ready() bool
	Predict(img image.Image) (classifier.Result, error)
	Close() error
}

// DetectorService is the part of *detector.Detector the server uses.
type DetectorService interface {
	Ready() bool
	DetectObjects(img image.Image) ([]detector.Detection, error)
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	classifier   ClassifierService
	detector     DetectorService
	messages     i18n.Messages
	modelsDir    string
	backend      string
	corsOrigin   string
	maxUploadMB  int64
	overlayStyle render.Options
	rateLimiter  *RateLimiter
}

// Config holds server configuration.
type Config struct {
	Host               string
	Port               int
	CORSOrigin         string
	MaxUploadMB        int64
	TimeoutSec         int
	ShutdownTimeoutSec int
	Warmup             int
	ModelsDir          string
	Language           string
	Classifier         classifier.Config
	Detector           detector.Config
	OverlayStyle       render.Options
	RateLimit          RateLimitConfig
}

// Response types for API endpoints.
type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version,omitempty"`
	Time            string `json:"time"`
	ClassifierReady bool   `json:"classifier_ready"`
	DetectorReady   bool   `json:"detector_ready"`
}

type ModelsResponse struct {
	Models []models.ModelInfo `json:"models"`
	Count  int                `json:"count"`
}

type ClassifyResponse struct {
	Label      string  `json:"label"`
	Index      int     `json:"index"`
	Confidence float32 `json:"confidence"`
	Text       string  `json:"text"`
}

type DetectResponse struct {
	Detections []detector.Detection `json:"detections"`
	Count      int                  `json:"count"`
	Summary    string               `json:"summary"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewServer loads both models from config and wraps them in a server. A model
// that fails to load leaves its endpoint answering 503; the server still starts.
func NewServer(config Config) (*Server, error) {
	if config.Port < 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", config.Port)
	}

	cls := classifier.New(config.Classifier)
	det := detector.New(config.Detector)
	if !cls.Ready() && !det.Ready() {
		slog.Warn("No model could be loaded, inference endpoints will return 503",
			"classifier_error", cls.LoadError(), "detector_error", det.LoadError())
	}

	if config.Warmup > 0 {
		if err := warmup(cls, det, config.Warmup); err != nil {
			slog.Warn("Model warmup failed", "error", err)
		}
	}

	return New(cls, det, config), nil
}

func warmup(cls *classifier.Classifier, det *detector.Detector, n int) error {
	var errs []error
	if cls.Ready() {
		errs = append(errs, cls.Warmup(n))
	}
	if det.Ready() {
		errs = append(errs, det.Warmup(n))
	}
	return errors.Join(errs...)
}

// New builds a server around already constructed services.
func New(cls ClassifierService, det DetectorService, config Config) *Server {
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 50
	}
	corsOrigin := config.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	style := config.OverlayStyle
	if style.BoxColor == nil {
		style = render.DefaultOptions()
	}

	s := &Server{
		classifier:   cls,
		detector:     det,
		messages:     i18n.New(config.Language),
		modelsDir:    config.ModelsDir,
		backend:      string(config.Classifier.Backend),
		corsOrigin:   corsOrigin,
		maxUploadMB:  maxUpload,
		overlayStyle: style,
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit)
	}
	return s
}

// Close releases server resources.
func (s *Server) Close() error {
	var errs []error
	if s.classifier != nil {
		errs = append(errs, s.classifier.Close())
	}
	if s.detector != nil {
		errs = append(errs, s.detector.Close())
	}
	return errors.Join(errs...)
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/models", s.corsMiddleware(s.modelsHandler))
	mux.HandleFunc("/classify", s.corsMiddleware(s.rateLimitMiddleware(s.classifyHandler)))
	mux.HandleFunc("/detect", s.corsMiddleware(s.rateLimitMiddleware(s.detectHandler)))
	mux.HandleFunc("/ws", s.corsMiddleware(s.webSocketHandler))
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns a mux with all routes installed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
