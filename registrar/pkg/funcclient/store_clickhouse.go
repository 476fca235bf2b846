package funcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

const registryColumns = `full_name, catalog_name, schema_name, name, comment, input_params,
	data_type, full_data_type, external_language, created_at, updated_at`

// ClickHouseStore keeps registrations in the function_registry table of each
// namespace database.
type ClickHouseStore struct {
	client clickhouse.Client
}

func NewClickHouseStore(client clickhouse.Client) (*ClickHouseStore, error) {
	if client == nil {
		return nil, errors.New("clickhouse client is required")
	}
	return &ClickHouseStore{client: client}, nil
}

func registryTable(ns namespace.Namespace) string {
	return clickhouse.QuoteIdentifier(ns.Database()) + ".function_registry"
}

func (s *ClickHouseStore) Get(ctx context.Context, fullName string) (*FunctionInfo, error) {
	ns, _, err := namespace.ParseFullName(fullName)
	if err != nil {
		return nil, err
	}
	conn, err := s.client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE full_name = ?", registryColumns, registryTable(ns))
	rows, err := conn.Query(ctx, query, fullName)
	if err != nil {
		return nil, fmt.Errorf("failed to query function registry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating function registry: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, fullName)
	}
	return scanClickHouseInfo(rows)
}

func (s *ClickHouseStore) Put(ctx context.Context, info *FunctionInfo) error {
	ns := namespace.Namespace{Catalog: info.CatalogName, Schema: info.SchemaName}
	if err := ns.Validate(); err != nil {
		return err
	}
	params, err := json.Marshal(info.InputParams)
	if err != nil {
		return fmt.Errorf("failed to encode input params: %w", err)
	}

	conn, err := s.client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}

	ctx = clickhouse.ContextWithSyncInsert(ctx)
	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", registryTable(ns), registryColumns))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer batch.Close()

	err = batch.Append(
		info.FullName,
		info.CatalogName,
		info.SchemaName,
		info.Name,
		info.Comment,
		string(params),
		info.DataType,
		info.FullDataType,
		info.ExternalLanguage,
		info.CreatedAt,
		info.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append registry row: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to write registry row: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) List(ctx context.Context, catalog, schema string) ([]FunctionInfo, error) {
	ns := namespace.Namespace{Catalog: catalog, Schema: schema}
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	conn, err := s.client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}

	exists, err := clickhouse.TableExists(ctx, conn, ns.Database(), "function_registry")
	if err != nil {
		return nil, err
	}
	if !exists {
		return []FunctionInfo{}, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE catalog_name = ? AND schema_name = ? ORDER BY name", registryColumns, registryTable(ns))
	rows, err := conn.Query(ctx, query, catalog, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query function registry: %w", err)
	}
	defer rows.Close()

	infos := []FunctionInfo{}
	for rows.Next() {
		info, err := scanClickHouseInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating function registry: %w", err)
	}
	return infos, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClickHouseInfo(row scanner) (*FunctionInfo, error) {
	var (
		info      FunctionInfo
		params    string
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(
		&info.FullName,
		&info.CatalogName,
		&info.SchemaName,
		&info.Name,
		&info.Comment,
		&params,
		&info.DataType,
		&info.FullDataType,
		&info.ExternalLanguage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan registry row: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &info.InputParams); err != nil {
		return nil, fmt.Errorf("failed to decode input params of %s: %w", info.FullName, err)
	}
	info.CreatedAt = createdAt.UTC()
	info.UpdatedAt = updatedAt.UTC()
	return &info, nil
}
