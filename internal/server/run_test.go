package server

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeGracefulShutdown(t *testing.T) {
	s := newTestServer(readyClassifier(), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln, 5*time.Second, time.Second) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx // test
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenAndServeBadAddress(t *testing.T) {
	s := newTestServer(nil, nil)
	err := s.ListenAndServe(context.Background(), "256.0.0.1:99999", time.Second, time.Second)
	require.Error(t, err)
}

func TestNewServerWithMissingModels(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Port: 8080, ModelsDir: dir}
	cfg.Classifier.ModelPath = dir + "/missing.onnx"
	cfg.Detector.ModelPath = dir + "/missing.onnx"

	s, err := NewServer(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.False(t, s.classifier.Ready())
	assert.False(t, s.detector.Ready())

	_, err = NewServer(Config{Port: 70000})
	require.Error(t, err)
}
