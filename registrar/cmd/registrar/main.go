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
	"github.com/derar-alhussein/agents-workshop/registrar/pkg/tools"
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
	metricsAddrFlag := flag.String("metrics-addr", "", "Address to listen on for prometheus metrics (empty = disabled)")

	catalogFlag := flag.String("catalog", namespace.DefaultCatalog, "Catalog to register functions in (or set CATALOG_NAME env var)")
	schemaFlag := flag.String("schema", namespace.DefaultSchema, "Schema to register functions in (or set SCHEMA_NAME env var)")
	smokeTestUserFlag := flag.String("smoke-test-user", tools.DefaultSmokeTestUser, "Customer name used to smoke test get_order_history")
	listFlag := flag.Bool("list", false, "List the functions registered in the namespace and exit")

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
	cli.EnvString(clickhouseAddrFlag, "CLICKHOUSE_ADDR_TCP")
	cli.EnvString(clickhouseDatabaseFlag, "CLICKHOUSE_DATABASE")
	cli.EnvString(clickhouseUsernameFlag, "CLICKHOUSE_USERNAME")
	cli.EnvString(clickhousePasswordFlag, "CLICKHOUSE_PASSWORD")
	cli.EnvBool(clickhouseSecureFlag, "CLICKHOUSE_SECURE")
	cli.EnvString(registryFlag, "FUNCTION_REGISTRY")
	cli.EnvString(postgresURLFlag, "POSTGRES_URL")

	log := logger.New(*verboseFlag)

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

	cli.ServeMetrics(log, *metricsAddrFlag, "registrar", version, commit, date)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *clickhouseAddrFlag == "" {
		return fmt.Errorf("--clickhouse-addr is required")
	}
	chCfg := clickhouse.Config{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}
	chClient, err := clickhouse.NewClient(ctx, log, chCfg)
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

	registrar, err := tools.New(tools.Config{
		Logger:           log,
		ClickHouse:       chClient,
		ClickHouseConfig: chCfg,
		Functions:        functions,
		Namespace:        namespace.Namespace{Catalog: *catalogFlag, Schema: *schemaFlag},
		SmokeTestUser:    *smokeTestUserFlag,
	})
	if err != nil {
		return err
	}

	if *listFlag {
		names, err := registrar.ListFunctions(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	registrations, err := registrar.Run(ctx)
	if err != nil {
		return err
	}
	for _, reg := range registrations {
		if reg.Language == funcclient.LanguageGo {
			fmt.Printf("%s (%s): %s\n", reg.FullName, reg.Language, reg.Output)
			continue
		}
		fmt.Printf("%s (%s): %d rows\n", reg.FullName, reg.Language, reg.Rows)
	}
	return nil
}
