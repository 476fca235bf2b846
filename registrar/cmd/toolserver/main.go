package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/getsentry/sentry-go"
	flag "github.com/spf13/pflag"

	"github.com/derar-alhussein/agents-workshop/registrar/pkg/funcclient"
	"github.com/derar-alhussein/agents-workshop/registrar/pkg/toolserver"
	"github.com/derar-alhussein/agents-workshop/utils/pkg/cli"
	"github.com/derar-alhussein/agents-workshop/utils/pkg/logger"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/postgres"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	if err = cli.LoadDotEnv(); err != nil {
		return err
	}

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	metricsAddrFlag := flag.String("metrics-addr", "", "Separate address for prometheus metrics (HTTP mode also serves /metrics on --listen-addr)")

	catalogFlag := flag.String("catalog", namespace.DefaultCatalog, "Catalog to serve functions from (or set CATALOG_NAME env var)")
	schemaFlag := flag.String("schema", namespace.DefaultSchema, "Schema to serve functions from (or set SCHEMA_NAME env var)")

	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP listen address (or set LISTEN_ADDR env var)")
	stdioFlag := flag.Bool("stdio", false, "Serve MCP over stdin/stdout instead of HTTP")
	rateLimitFlag := flag.Int("rate-limit-per-minute", 100, "Requests per minute allowed per client IP on /mcp")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database used for the initial connection (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Function registry
	registryFlag := flag.String("registry", funcclient.RegistryClickHouse, "Where Go function registrations are stored: clickhouse or postgres (or set FUNCTION_REGISTRY env var)")
	postgresURLFlag := flag.String("postgres-url", "", "Postgres URL of the function registry (or set POSTGRES_URL env var)")

	flag.Parse()

	cli.EnvString(catalogFlag, "CATALOG_NAME")
	cli.EnvString(schemaFlag, "SCHEMA_NAME")
	cli.EnvString(listenAddrFlag, "LISTEN_ADDR")
	cli.EnvString(clickhouseAddrFlag, "CLICKHOUSE_ADDR_TCP")
	cli.EnvString(clickhouseDatabaseFlag, "CLICKHOUSE_DATABASE")
	cli.EnvString(clickhouseUsernameFlag, "CLICKHOUSE_USERNAME")
	cli.EnvString(clickhousePasswordFlag, "CLICKHOUSE_PASSWORD")
	cli.EnvBool(clickhouseSecureFlag, "CLICKHOUSE_SECURE")
	cli.EnvString(registryFlag, "FUNCTION_REGISTRY")
	cli.EnvString(postgresURLFlag, "POSTGRES_URL")

	// In stdio mode stdout carries the protocol, so logs go to stderr.
	logOut := os.Stdout
	if *stdioFlag {
		logOut = os.Stderr
	}
	log := logger.NewWithWriter(logOut, *verboseFlag)

	flushSentry, err := cli.InitSentry(version)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			sentry.CaptureException(err)
		}
		flushSentry()
	}()

	cli.ServeMetrics(log, *metricsAddrFlag, "toolserver", version, commit, date)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *clickhouseAddrFlag == "" {
		return fmt.Errorf("--clickhouse-addr is required")
	}
	chClient, err := clickhouse.NewClient(ctx, log, clickhouse.Config{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	})
	if err != nil {
		return err
	}
	defer chClient.Close()

	store, closeStore, err := funcclient.OpenStore(ctx, log, *registryFlag, chClient, postgres.Config{URL: *postgresURLFlag})
	if err != nil {
		return err
	}
	defer closeStore()

	functions, err := funcclient.New(funcclient.Config{Logger: log, Store: store})
	if err != nil {
		return err
	}

	srv, err := toolserver.New(ctx, toolserver.Config{
		Logger:             log,
		ClickHouse:         chClient,
		Functions:          functions,
		Namespace:          namespace.Namespace{Catalog: *catalogFlag, Schema: *schemaFlag},
		ListenAddr:         *listenAddrFlag,
		RateLimitPerMinute: *rateLimitFlag,
		VersionInfo:        toolserver.VersionInfo{Version: version, Commit: commit, Date: date},
	})
	if err != nil {
		return err
	}

	if *stdioFlag {
		return srv.RunStdio(ctx)
	}
	return srv.RunHTTP(ctx)
}
