package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/imageio"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketRequest is a text frame asking for one inference. Image holds the
// encoded picture and travels as base64 in JSON.
type WebSocketRequest struct {
	Type  string `json:"type"` // "classify" or "detect"
	Image []byte `json:"image"`
}

// WebSocketResponse answers a WebSocketRequest.
type WebSocketResponse struct {
	Type       string               `json:"type"`
	Result     *classifier.Result   `json:"result,omitempty"`
	Text       string               `json:"text,omitempty"`
	Detections []detector.Detection `json:"detections,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// WebSocketConnWriter is the write side of a WebSocket connection.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.corsOrigin == "*" || origin == "" || origin == s.corsOrigin
		},
	}
}

// webSocketHandler streams frames from a client. A binary message is an
// encoded image answered with a JSON array of detections; a text message is
// a WebSocketRequest.
func (s *Server) webSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(conn)
}

func (s *Server) handleWebSocketConnection(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	conn.SetReadLimit(s.maxUploadMB * 1024 * 1024)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		switch messageType {
		case websocket.BinaryMessage:
			s.handleWebSocketFrame(conn, data)
		case websocket.TextMessage:
			s.handleWebSocketMessage(conn, data)
		}
	}
}

// handleWebSocketFrame detects signs in a raw image frame.
func (s *Server) handleWebSocketFrame(conn WebSocketConnWriter, data []byte) {
	dets, err := s.detectBytes(data)
	if err != nil {
		s.sendWebSocket(conn, WebSocketResponse{Type: "error", Error: err.Error()})
		return
	}
	s.sendWebSocket(conn, dets)
}

// handleWebSocketMessage processes a JSON request.
func (s *Server) handleWebSocketMessage(conn WebSocketConnWriter, data []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocket(conn, WebSocketResponse{Type: "error", Error: fmt.Sprintf("Failed to parse request: %v", err)})
		return
	}

	resp := WebSocketResponse{Type: req.Type}
	switch req.Type {
	case "classify":
		res, err := s.classifyBytes(req.Image)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = &res
			resp.Text = s.messages.Classification(res.Label, res.Confidence)
		}
	case "detect":
		dets, err := s.detectBytes(req.Image)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Detections = dets
			resp.Text = detector.Summary(dets, s.messages)
		}
	default:
		resp = WebSocketResponse{Type: "error", Error: "Unsupported request type: " + req.Type}
	}
	s.sendWebSocket(conn, resp)
}

func (s *Server) classifyBytes(data []byte) (classifier.Result, error) {
	if s.classifier == nil || !s.classifier.Ready() {
		return classifier.Result{}, errors.New(s.messages.NotLoaded())
	}
	img, _, err := imageio.DecodeBytes(data)
	if err != nil {
		return classifier.Result{}, err
	}
	start := time.Now()
	res, err := s.classifier.Predict(img)
	inferenceDuration.WithLabelValues("ws_classify").Observe(time.Since(start).Seconds())
	if err != nil {
		inferenceRequestsTotal.WithLabelValues("ws_classify", "error").Inc()
		return classifier.Result{}, err
	}
	inferenceRequestsTotal.WithLabelValues("ws_classify", "success").Inc()
	return res, nil
}

func (s *Server) detectBytes(data []byte) ([]detector.Detection, error) {
	if s.detector == nil || !s.detector.Ready() {
		return nil, errors.New(s.messages.NotLoaded())
	}
	img, _, err := imageio.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	return s.runDetection(img)
}

// sendWebSocket marshals v and writes it as a text message.
func (s *Server) sendWebSocket(conn WebSocketConnWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
