// Package cli holds the process setup shared by the workshop binaries.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/derar-alhussein/agents-workshop/utils/pkg/metrics"
)

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// EnvString overrides *dst with the environment variable key when it is set.
func EnvString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// EnvBool sets *dst when the environment variable key is "true".
func EnvBool(dst *bool, key string) {
	if os.Getenv(key) == "true" {
		*dst = true
	}
}

// InitSentry initializes error reporting when SENTRY_DSN is set. The returned
// function flushes pending events and must be deferred by the caller.
func InitSentry(release string) (func(), error) {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return func() {}, nil
	}
	env := os.Getenv("SENTRY_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          release,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// ServeMetrics records build info and, when addr is set, starts the prometheus
// endpoint on it in the background.
func ServeMetrics(log *slog.Logger, addr, binary, version, commit, date string) {
	metrics.BuildInfo.WithLabelValues(binary, version, commit, date).Set(1)
	if addr == "" {
		return
	}
	go func() {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			log.Error("failed to start prometheus metrics server listener", "error", err)
			return
		}
		log.Info("prometheus metrics server listening", "address", listener.Addr().String())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.Serve(listener, mux); err != nil {
			log.Error("failed to start prometheus metrics server", "error", err)
		}
	}()
}
