package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MeKo-Tech/roadsign/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server for sign recognition",
		Long: `Start an HTTP server that provides REST and WebSocket endpoints for sign
classification and detection.

The server provides the following endpoints:
  POST /classify  - Classify an uploaded image (multipart field "image")
  POST /detect    - Detect signs in an uploaded image (?overlay=png|jpeg|webp)
  GET  /ws        - WebSocket streaming of classify/detect requests
  GET  /health    - Health check endpoint
  GET  /models    - List available models
  GET  /metrics   - Prometheus metrics

Examples:
  roadsign serve
  roadsign serve --port 8080
  roadsign serve --host 0.0.0.0 --port 3000 --rate-limit`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			sc := cfg.ToServerConfig()
			overrideString(cmd, "host", &sc.Host)
			overrideInt(cmd, "port", &sc.Port)
			overrideString(cmd, "cors-origin", &sc.CORSOrigin)
			if cmd.Flags().Changed("max-upload-mb") {
				sc.MaxUploadMB, _ = cmd.Flags().GetInt64("max-upload-mb")
			}
			overrideInt(cmd, "timeout", &sc.TimeoutSec)
			overrideInt(cmd, "shutdown-timeout", &sc.ShutdownTimeoutSec)
			overrideInt(cmd, "warmup", &sc.Warmup)
			overrideBool(cmd, "rate-limit", &sc.RateLimit.Enabled)
			overrideInt(cmd, "requests-per-minute", &sc.RateLimit.RequestsPerMinute)
			overrideInt(cmd, "requests-per-hour", &sc.RateLimit.RequestsPerHour)

			if sc.Port < 1 || sc.Port > 65535 {
				return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", sc.Port)
			}

			srv, err := server.NewServer(sc)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			defer func() {
				if err := srv.Close(); err != nil {
					slog.Warn("Failed to release models", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			addr := net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port))
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)
			return srv.ListenAndServe(ctx, addr,
				time.Duration(sc.TimeoutSec)*time.Second,
				time.Duration(sc.ShutdownTimeoutSec)*time.Second)
		},
	}

	cmd.Flags().String("host", "localhost", "server host")
	cmd.Flags().IntP("port", "p", 8080, "server port")
	cmd.Flags().String("cors-origin", "*", "allowed CORS origin")
	cmd.Flags().Int64("max-upload-mb", 50, "maximum upload size in MB")
	cmd.Flags().Int("timeout", 30, "request timeout in seconds")
	cmd.Flags().Int("shutdown-timeout", 10, "graceful shutdown timeout in seconds")
	cmd.Flags().Int("warmup", 0, "warmup inferences per model before serving")
	cmd.Flags().Bool("rate-limit", false, "enable per-client rate limiting")
	cmd.Flags().Int("requests-per-minute", 60, "rate limit: requests per minute per client")
	cmd.Flags().Int("requests-per-hour", 1000, "rate limit: requests per hour per client")
	return cmd
}
