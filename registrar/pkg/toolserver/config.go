package toolserver

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/derar-alhussein/agents-workshop/registrar/pkg/funcclient"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

// VersionInfo contains build-time version information.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger     *slog.Logger
	ClickHouse clickhouse.Client
	Functions  *funcclient.Client
	Namespace  namespace.Namespace
	Clock      clockwork.Clock

	ListenAddr         string
	RateLimitPerMinute int
	RateLimitBurst     int
	ReadHeaderTimeout  time.Duration
	ShutdownTimeout    time.Duration
	VersionInfo        VersionInfo
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.Functions == nil {
		return errors.New("function client is required")
	}
	if cfg.Namespace == (namespace.Namespace{}) {
		cfg.Namespace = namespace.Default()
	}
	if err := cfg.Namespace.Validate(); err != nil {
		return fmt.Errorf("invalid namespace: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RateLimitPerMinute < 0 {
		return errors.New("rate limit must not be negative")
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return nil
}
