package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Column is a column name and its ClickHouse type.
type Column struct {
	Name string
	Type string
}

// ReplaceTable writes count rows into a fresh staging table and then swaps it
// with database.table, so the target is either fully replaced (contents and
// schema) or left as it was. writeRowFn returns the values of row i in column
// order.
func ReplaceTable(
	ctx context.Context,
	log *slog.Logger,
	conn Connection,
	database, table string,
	columns []Column,
	count int,
	writeRowFn func(int) ([]any, error),
) error {
	if len(columns) == 0 {
		return errors.New("at least one column is required")
	}

	staging := fmt.Sprintf("%s_staging_%s", table, strings.ReplaceAll(uuid.NewString(), "-", ""))
	stagingName := QuoteIdentifier(database) + "." + QuoteIdentifier(staging)
	targetName := QuoteIdentifier(database) + "." + QuoteIdentifier(table)

	if err := conn.Exec(ctx, createTableDDL(stagingName, columns)); err != nil {
		return fmt.Errorf("failed to create staging table %s: %w", staging, err)
	}

	swapped := false
	defer func() {
		if swapped {
			return
		}
		// Leave the target untouched on failure; the staging table is garbage.
		if dropErr := conn.Exec(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+stagingName); dropErr != nil {
			log.Warn("failed to drop staging table", "table", staging, "error", dropErr)
		}
	}()

	if err := insertRows(ContextWithSyncInsert(ctx), conn, stagingName, len(columns), count, writeRowFn); err != nil {
		return err
	}

	exists, err := TableExists(ctx, conn, database, table)
	if err != nil {
		return err
	}

	if exists {
		if err := conn.Exec(ctx, fmt.Sprintf("EXCHANGE TABLES %s AND %s", stagingName, targetName)); err != nil {
			return fmt.Errorf("failed to exchange %s with staging table: %w", table, err)
		}
		swapped = true
		// The staging name now holds the previous contents.
		if err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+stagingName); err != nil {
			return fmt.Errorf("failed to drop previous contents of %s: %w", table, err)
		}
	} else {
		if err := conn.Exec(ctx, fmt.Sprintf("RENAME TABLE %s TO %s", stagingName, targetName)); err != nil {
			return fmt.Errorf("failed to rename staging table to %s: %w", table, err)
		}
		swapped = true
	}

	log.Debug("replaced table", "database", database, "table", table, "rows", count, "columns", len(columns))
	return nil
}

func createTableDDL(name string, columns []Column) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = QuoteIdentifier(col.Name) + " " + col.Type
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n) ENGINE = MergeTree\nORDER BY tuple()", name, strings.Join(defs, ",\n\t"))
}

func insertRows(ctx context.Context, conn Connection, table string, columnCount, count int, writeRowFn func(int) ([]any, error)) error {
	if count == 0 {
		return nil
	}

	batch, err := conn.PrepareBatch(ctx, "INSERT INTO "+table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Close()

	for i := range count {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during batch insert: %w", ctx.Err())
		default:
		}

		row, err := writeRowFn(i)
		if err != nil {
			return fmt.Errorf("failed to get row data %d: %w", i, err)
		}
		if len(row) != columnCount {
			return fmt.Errorf("row %d has %d columns, expected exactly %d", i, len(row), columnCount)
		}
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}
