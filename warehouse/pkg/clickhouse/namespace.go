package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

// EnsureNamespace creates the database backing ns if it does not exist.
func EnsureNamespace(ctx context.Context, log *slog.Logger, conn Connection, ns namespace.Namespace) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	log.Info("creating namespace if not exists", "namespace", ns.String(), "database", ns.Database())
	if err := conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", QuoteIdentifier(ns.Database()))); err != nil {
		return fmt.Errorf("failed to create database %s: %w", ns.Database(), err)
	}
	return nil
}

// TableExists reports whether database.table exists (tables and views alike).
func TableExists(ctx context.Context, conn Connection, database, table string) (bool, error) {
	var exists uint8
	query := fmt.Sprintf("EXISTS TABLE %s.%s", QuoteIdentifier(database), QuoteIdentifier(table))
	if err := conn.QueryRow(ctx, query).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s.%s: %w", database, table, err)
	}
	return exists == 1, nil
}

// ListViews returns the names of the views in database, sorted.
func ListViews(ctx context.Context, conn Connection, database string) ([]string, error) {
	return listTables(ctx, conn, `
		SELECT name
		FROM system.tables
		WHERE database = ?
		  AND engine IN ('View', 'MaterializedView')
		ORDER BY name
	`, database)
}

// ListTables returns the names of the tables in database that are not views,
// sorted.
func ListTables(ctx context.Context, conn Connection, database string) ([]string, error) {
	return listTables(ctx, conn, `
		SELECT name
		FROM system.tables
		WHERE database = ?
		  AND engine NOT IN ('View', 'MaterializedView')
		ORDER BY name
	`, database)
}

func listTables(ctx context.Context, conn Connection, query, database string) ([]string, error) {
	rows, err := conn.Query(ctx, query, database)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return names, nil
}

// QuoteIdentifier backtick-quotes a database, table or column name.
func QuoteIdentifier(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "`", "\\`")
	return "`" + s + "`"
}

// QuoteString renders s as a single-quoted SQL string literal.
func QuoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
