package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/derar-alhussein/agents-workshop/admin/internal/admin"
	"github.com/derar-alhussein/agents-workshop/utils/pkg/cli"
	"github.com/derar-alhussein/agents-workshop/utils/pkg/logger"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := cli.LoadDotEnv(); err != nil {
		return err
	}

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	catalogFlag := flag.String("catalog", namespace.DefaultCatalog, "Catalog to operate on (or set CATALOG_NAME env var)")
	schemaFlag := flag.String("schema", namespace.DefaultSchema, "Schema to operate on (or set SCHEMA_NAME env var)")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database used for the initial connection (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	postgresURLFlag := flag.String("postgres-url", "", "Postgres URL of the function registry (or set POSTGRES_URL env var)")

	// Commands
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "Create the namespace and run its ClickHouse migrations using goose")
	clickhouseMigrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "Show the ClickHouse migration status of the namespace")
	clickhouseMigrateDownFlag := flag.Bool("clickhouse-migrate-down", false, "Roll back the most recent ClickHouse migration of the namespace")
	postgresMigrateFlag := flag.Bool("postgres-migrate", false, "Run the Postgres function registry migrations using goose")
	resetNamespaceFlag := flag.Bool("reset-namespace", false, "Drop all tables and views in the namespace")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	cli.EnvString(catalogFlag, "CATALOG_NAME")
	cli.EnvString(schemaFlag, "SCHEMA_NAME")
	cli.EnvString(clickhouseAddrFlag, "CLICKHOUSE_ADDR_TCP")
	cli.EnvString(clickhouseDatabaseFlag, "CLICKHOUSE_DATABASE")
	cli.EnvString(clickhouseUsernameFlag, "CLICKHOUSE_USERNAME")
	cli.EnvString(clickhousePasswordFlag, "CLICKHOUSE_PASSWORD")
	cli.EnvBool(clickhouseSecureFlag, "CLICKHOUSE_SECURE")
	cli.EnvString(postgresURLFlag, "POSTGRES_URL")

	log := logger.New(*verboseFlag)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *postgresMigrateFlag {
		if *postgresURLFlag == "" {
			return fmt.Errorf("--postgres-url is required for --postgres-migrate")
		}
		return postgres.RunMigrations(ctx, log, postgres.Config{URL: *postgresURLFlag})
	}

	ns := namespace.Namespace{Catalog: *catalogFlag, Schema: *schemaFlag}
	if err := ns.Validate(); err != nil {
		return fmt.Errorf("invalid namespace: %w", err)
	}
	chCfg := clickhouse.Config{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}
	nsCfg := chCfg.WithDatabase(ns.Database())

	switch {
	case *clickhouseMigrateFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate")
		}
		chClient, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return err
		}
		defer chClient.Close()
		conn, err := chClient.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to get connection: %w", err)
		}
		if err := clickhouse.EnsureNamespace(ctx, log, conn, ns); err != nil {
			return err
		}
		return clickhouse.RunMigrations(ctx, log, nsCfg)

	case *clickhouseMigrateStatusFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-status")
		}
		return clickhouse.MigrationStatus(ctx, log, nsCfg)

	case *clickhouseMigrateDownFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --clickhouse-migrate-down")
		}
		return clickhouse.Down(ctx, log, nsCfg)

	case *resetNamespaceFlag:
		if *clickhouseAddrFlag == "" {
			return fmt.Errorf("--clickhouse-addr is required for --reset-namespace")
		}
		chClient, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return err
		}
		defer chClient.Close()
		_, err = admin.ResetNamespace(ctx, admin.ResetConfig{
			Logger:      log,
			ClickHouse:  chClient,
			Namespace:   ns,
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			In:          os.Stdin,
			Out:         os.Stdout,
		})
		return err
	}

	flag.Usage()
	return nil
}
