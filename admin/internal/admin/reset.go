package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

type ResetConfig struct {
	Logger      *slog.Logger
	ClickHouse  clickhouse.Client
	Namespace   namespace.Namespace
	DryRun      bool
	SkipConfirm bool
	// In is read for the confirmation prompt, Out receives the report.
	In  io.Reader
	Out io.Writer
}

func (cfg *ResetConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse client is required")
	}
	if err := cfg.Namespace.Validate(); err != nil {
		return fmt.Errorf("invalid namespace: %w", err)
	}
	if cfg.In == nil && !cfg.SkipConfirm && !cfg.DryRun {
		return errors.New("confirmation input is required without --yes")
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return nil
}

// ResetResult lists what ResetNamespace dropped, or would drop on a dry run.
type ResetResult struct {
	Tables    []string
	Views     []string
	Cancelled bool
}

// ResetNamespace drops every table and view in the namespace database, views
// first. Without SkipConfirm the operator must type "yes".
func ResetNamespace(ctx context.Context, cfg ResetConfig) (*ResetResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	out := cfg.Out
	database := cfg.Namespace.Database()

	conn, err := cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	views, err := clickhouse.ListViews(ctx, conn, database)
	if err != nil {
		return nil, err
	}
	tables, err := clickhouse.ListTables(ctx, conn, database)
	if err != nil {
		return nil, err
	}
	result := &ResetResult{Tables: tables, Views: views}

	if len(tables) == 0 && len(views) == 0 {
		fmt.Fprintf(out, "No tables or views found in %s\n", cfg.Namespace)
		return result, nil
	}

	fmt.Fprintf(out, "WARNING: This will DROP %d table(s) and %d view(s) from %s (database %s):\n\n", len(tables), len(views), cfg.Namespace, database)
	if len(tables) > 0 {
		fmt.Fprintln(out, "Tables:")
		for _, table := range tables {
			fmt.Fprintf(out, "  - %s\n", table)
		}
	}
	if len(views) > 0 {
		fmt.Fprintln(out, "\nViews:")
		for _, view := range views {
			fmt.Fprintf(out, "  - %s\n", view)
		}
	}

	if cfg.DryRun {
		fmt.Fprintln(out, "\n[DRY RUN] Would drop the above tables and views")
		return result, nil
	}

	if !cfg.SkipConfirm {
		fmt.Fprintf(out, "\nThis is a DESTRUCTIVE operation that cannot be undone!\n")
		fmt.Fprintf(out, "Type 'yes' to confirm: ")

		response, err := bufio.NewReader(cfg.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read confirmation: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Fprintf(out, "\nConfirmation failed. Operation cancelled.\n")
			result.Cancelled = true
			return result, nil
		}
		fmt.Fprintln(out)
	}

	// Views first, they depend on tables.
	for _, view := range views {
		query := fmt.Sprintf("DROP VIEW IF EXISTS %s.%s", clickhouse.QuoteIdentifier(database), clickhouse.QuoteIdentifier(view))
		if err := conn.Exec(ctx, query); err != nil {
			return nil, fmt.Errorf("failed to drop view %s: %w", view, err)
		}
		log.Debug("admin: dropped view", "view", view)
	}
	for _, table := range tables {
		query := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", clickhouse.QuoteIdentifier(database), clickhouse.QuoteIdentifier(table))
		if err := conn.Exec(ctx, query); err != nil {
			return nil, fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Debug("admin: dropped table", "table", table)
	}

	fmt.Fprintf(out, "Successfully dropped %d table(s) and %d view(s)\n", len(tables), len(views))
	return result, nil
}
