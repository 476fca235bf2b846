package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/getsentry/sentry-go"
	flag "github.com/spf13/pflag"

	"github.com/derar-alhussein/agents-workshop/loader/pkg/loader"
	"github.com/derar-alhussein/agents-workshop/utils/pkg/cli"
	"github.com/derar-alhussein/agents-workshop/utils/pkg/logger"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
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

	catalogFlag := flag.String("catalog", namespace.DefaultCatalog, "Catalog to load into (or set CATALOG_NAME env var)")
	schemaFlag := flag.String("schema", namespace.DefaultSchema, "Schema to load into (or set SCHEMA_NAME env var)")
	baseURLFlag := flag.String("base-url", loader.DefaultBaseURL, "Base URL of the dataset CSVs, http(s):// or s3:// (or set DATASET_BASE_URL env var)")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database used for the initial connection (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// S3 configuration, only used for s3:// base URLs
	s3RegionFlag := flag.String("s3-region", "", "AWS region for s3:// datasets (or set AWS_REGION env var)")
	s3EndpointFlag := flag.String("s3-endpoint", "", "S3-compatible endpoint override (or set AWS_S3_ENDPOINT env var)")

	flag.Parse()

	cli.EnvString(catalogFlag, "CATALOG_NAME")
	cli.EnvString(schemaFlag, "SCHEMA_NAME")
	cli.EnvString(baseURLFlag, "DATASET_BASE_URL")
	cli.EnvString(clickhouseAddrFlag, "CLICKHOUSE_ADDR_TCP")
	cli.EnvString(clickhouseDatabaseFlag, "CLICKHOUSE_DATABASE")
	cli.EnvString(clickhouseUsernameFlag, "CLICKHOUSE_USERNAME")
	cli.EnvString(clickhousePasswordFlag, "CLICKHOUSE_PASSWORD")
	cli.EnvBool(clickhouseSecureFlag, "CLICKHOUSE_SECURE")
	cli.EnvString(s3RegionFlag, "AWS_REGION")
	cli.EnvString(s3EndpointFlag, "AWS_S3_ENDPOINT")

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

	cli.ServeMetrics(log, *metricsAddrFlag, "loader", version, commit, date)

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

	datasets := loader.DefaultDatasets(*baseURLFlag)
	router := &loader.Router{HTTP: &loader.HTTPSource{}}
	if loader.UsesScheme(datasets, "s3") {
		s3Source, err := loader.NewS3Source(ctx, loader.S3Config{
			Region:       *s3RegionFlag,
			Endpoint:     *s3EndpointFlag,
			UsePathStyle: *s3EndpointFlag != "",
		})
		if err != nil {
			return err
		}
		router.S3 = s3Source
	}

	l, err := loader.New(loader.Config{
		Logger:           log,
		ClickHouse:       chClient,
		ClickHouseConfig: chCfg,
		Namespace:        namespace.Namespace{Catalog: *catalogFlag, Schema: *schemaFlag},
		Datasets:         datasets,
		Source:           router,
	})
	if err != nil {
		return err
	}

	results, err := l.Run(ctx)
	if err != nil {
		return err
	}
	for _, res := range results {
		fmt.Printf("%s: %d rows, %d columns\n", res.Table, res.Rows, res.Columns)
	}
	return nil
}
