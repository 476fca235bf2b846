package funcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

// PostgresStore keeps registrations of every namespace in one Postgres table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("postgres pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, fullName string) (*FunctionInfo, error) {
	ns, name, err := namespace.ParseFullName(fullName)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		SELECT catalog_name, schema_name, name, comment, input_params,
		       data_type, full_data_type, external_language, created_at, updated_at
		FROM function_registry
		WHERE catalog_name = $1 AND schema_name = $2 AND name = $3
	`, ns.Catalog, ns.Schema, name)

	info, err := scanPostgresInfo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, fullName)
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *PostgresStore) Put(ctx context.Context, info *FunctionInfo) error {
	params, err := json.Marshal(info.InputParams)
	if err != nil {
		return fmt.Errorf("failed to encode input params: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO function_registry (
			catalog_name, schema_name, name, comment, input_params,
			data_type, full_data_type, external_language, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (catalog_name, schema_name, name) DO UPDATE SET
			comment = EXCLUDED.comment,
			input_params = EXCLUDED.input_params,
			data_type = EXCLUDED.data_type,
			full_data_type = EXCLUDED.full_data_type,
			external_language = EXCLUDED.external_language,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`,
		info.CatalogName, info.SchemaName, info.Name, info.Comment, params,
		info.DataType, info.FullDataType, info.ExternalLanguage, info.CreatedAt, info.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert registry row: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, catalog, schema string) ([]FunctionInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT catalog_name, schema_name, name, comment, input_params,
		       data_type, full_data_type, external_language, created_at, updated_at
		FROM function_registry
		WHERE catalog_name = $1 AND schema_name = $2
		ORDER BY name
	`, catalog, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query function registry: %w", err)
	}
	defer rows.Close()

	infos := []FunctionInfo{}
	for rows.Next() {
		info, err := scanPostgresInfo(rows)
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

func scanPostgresInfo(row pgx.Row) (*FunctionInfo, error) {
	var (
		info   FunctionInfo
		params []byte
	)
	err := row.Scan(
		&info.CatalogName,
		&info.SchemaName,
		&info.Name,
		&info.Comment,
		&params,
		&info.DataType,
		&info.FullDataType,
		&info.ExternalLanguage,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan registry row: %w", err)
	}
	if err := json.Unmarshal(params, &info.InputParams); err != nil {
		return nil, fmt.Errorf("failed to decode input params: %w", err)
	}
	info.FullName = namespace.Namespace{Catalog: info.CatalogName, Schema: info.SchemaName}.FullName(info.Name)
	info.CreatedAt = info.CreatedAt.UTC()
	info.UpdatedAt = info.UpdatedAt.UTC()
	return &info, nil
}
