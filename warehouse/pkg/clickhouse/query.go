package clickhouse

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ColumnMetadata represents metadata about a column.
type ColumnMetadata struct {
	Name             string
	DatabaseTypeName string
}

// QueryResult represents the result of a query execution with column metadata.
type QueryResult struct {
	Columns     []string
	ColumnTypes []ColumnMetadata
	Rows        []map[string]any
	Count       int
}

// Query executes a raw SQL query and returns the rows keyed by column name.
// Nullable columns scan to nil or the dereferenced value.
func Query(ctx context.Context, conn Connection, query string, args ...any) (*QueryResult, error) {
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return scanQueryResults(rows)
}

func scanQueryResults(rows driver.Rows) (*QueryResult, error) {
	columns := rows.Columns()
	columnTypes := rows.ColumnTypes()

	colMetadata := make([]ColumnMetadata, len(columnTypes))
	for i, ct := range columnTypes {
		colMetadata[i] = ColumnMetadata{
			Name:             ct.Name(),
			DatabaseTypeName: ct.DatabaseTypeName(),
		}
	}

	result := &QueryResult{
		Columns:     columns,
		ColumnTypes: colMetadata,
		Rows:        []map[string]any{},
	}

	for rows.Next() {
		targets := make([]any, len(columnTypes))
		for i, ct := range columnTypes {
			targets[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = dereference(targets[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	result.Count = len(result.Rows)
	return result, nil
}

func dereference(ptr any) any {
	v := reflect.ValueOf(ptr).Elem()
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}
