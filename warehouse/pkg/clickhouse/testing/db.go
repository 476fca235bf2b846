package clickhousetesting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcch "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/derar-alhussein/agents-workshop/utils/pkg/retry"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

type DBConfig struct {
	Database       string
	Username       string
	Password       string
	Port           string
	ContainerImage string
}

type DB struct {
	log       *slog.Logger
	cfg       *DBConfig
	addr      string
	container *tcch.ClickHouseContainer
}

// Addr returns the ClickHouse native protocol address (host:port).
func (db *DB) Addr() string {
	return db.addr
}

// Config returns a client config for the given database.
func (db *DB) Config(database string) clickhouse.Config {
	return clickhouse.Config{
		Addr:     db.addr,
		Database: database,
		Username: db.cfg.Username,
		Password: db.cfg.Password,
	}
}

func (db *DB) Close() {
	terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := testcontainers.TerminateContainer(db.container, testcontainers.StopContext(terminateCtx)); err != nil {
		db.log.Error("failed to terminate ClickHouse container", "error", err)
	}
}

func (cfg *DBConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = "test"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.Port == "" {
		cfg.Port = "9000"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "clickhouse/clickhouse-server:latest"
	}
	return nil
}

// NewClient returns a client connected to the container's default database.
// ClickHouse may need a moment after container start to accept connections.
func NewClient(t *testing.T, db *DB) clickhouse.Client {
	var client clickhouse.Client
	err := retry.Do(t.Context(), connectRetryConfig(), func() error {
		var err error
		client, err = clickhouse.NewClient(t.Context(), db.log, db.Config(db.cfg.Database))
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
	})
	return client
}

// NewNamespace returns a random namespace that is unique to the test. The
// backing database is not created; dropping it is registered as cleanup.
func NewNamespace(t *testing.T, db *DB) namespace.Namespace {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	ns := namespace.Namespace{Catalog: "test_" + suffix, Schema: "product"}

	client := NewClient(t, db)
	t.Cleanup(func() {
		dropCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		conn, err := client.Conn(dropCtx)
		if err != nil {
			return
		}
		_ = conn.Exec(dropCtx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", clickhouse.QuoteIdentifier(ns.Database())))
	})
	return ns
}

// NewTestConn returns a connection together with a fresh, already created
// database for the test.
func NewTestConn(t *testing.T, db *DB) (clickhouse.Connection, string) {
	ns := NewNamespace(t, db)
	client := NewClient(t, db)
	conn, err := client.Conn(t.Context())
	require.NoError(t, err)
	err = clickhouse.EnsureNamespace(t.Context(), db.log, conn, ns)
	require.NoError(t, err)
	return conn, ns.Database()
}

func NewDB(ctx context.Context, log *slog.Logger, cfg *DBConfig) (*DB, error) {
	if cfg == nil {
		cfg = &DBConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate DB config: %w", err)
	}

	var container *tcch.ClickHouseContainer
	err := retry.Do(ctx, containerRetryConfig(), func() error {
		var err error
		container, err = tcch.Run(ctx,
			cfg.ContainerImage,
			tcch.WithDatabase(cfg.Database),
			tcch.WithUsername(cfg.Username),
			tcch.WithPassword(cfg.Password),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start ClickHouse container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, nat.Port(fmt.Sprintf("%s/tcp", cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse container mapped port: %w", err)
	}

	return &DB{
		log:       log,
		cfg:       cfg,
		addr:      fmt.Sprintf("%s:%s", host, mappedPort.Port()),
		container: container,
	}, nil
}

func containerRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseBackoff: 750 * time.Millisecond,
		MaxBackoff:  3 * time.Second,
		Retryable:   isRetryableContainerStartErr,
	}
}

func connectRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		Retryable:   isRetryableConnectionErr,
	}
}

func isRetryableContainerStartErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded") ||
		strings.Contains(s, "/containers/") && strings.Contains(s, "json") ||
		strings.Contains(s, "Get \"http://%2Fvar%2Frun%2Fdocker.sock")
}

func isRetryableConnectionErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "handshake") ||
		strings.Contains(s, "unexpected packet") ||
		strings.Contains(s, "failed to ping") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "dial tcp")
}
