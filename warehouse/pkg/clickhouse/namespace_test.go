package clickhouse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	clickhousetesting "github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse/testing"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
	agentstesting "github.com/derar-alhussein/agents-workshop/utils/pkg/testing"
)

func TestAgents_ClickHouse_Quote(t *testing.T) {
	t.Parallel()

	require.Equal(t, "`date_time`", clickhouse.QuoteIdentifier("date_time"))
	require.Equal(t, "`odd\\`name`", clickhouse.QuoteIdentifier("odd`name"))
	require.Equal(t, `'Nicolas Pelaez'`, clickhouse.QuoteString("Nicolas Pelaez"))
	require.Equal(t, `'O\'Brien'`, clickhouse.QuoteString("O'Brien"))
	require.Equal(t, `'a\\b'`, clickhouse.QuoteString(`a\b`))
}

func TestAgents_ClickHouse_EnsureNamespace(t *testing.T) {
	t.Parallel()

	log := agentstesting.NewLogger()
	ns := clickhousetesting.NewNamespace(t, sharedDB)
	conn, err := clickhousetesting.NewClient(t, sharedDB).Conn(t.Context())
	require.NoError(t, err)

	t.Run("creates the database and is idempotent", func(t *testing.T) {
		require.NoError(t, clickhouse.EnsureNamespace(t.Context(), log, conn, ns))
		require.NoError(t, clickhouse.EnsureNamespace(t.Context(), log, conn, ns))

		result, err := clickhouse.Query(t.Context(), conn, "SELECT name FROM system.databases WHERE name = ?", ns.Database())
		require.NoError(t, err)
		require.Equal(t, 1, result.Count)
	})

	t.Run("rejects invalid namespace", func(t *testing.T) {
		err := clickhouse.EnsureNamespace(t.Context(), log, conn, namespace.Namespace{Catalog: "bad-name", Schema: "product"})
		require.ErrorContains(t, err, "invalid catalog")
	})
}

func TestAgents_ClickHouse_ListViews(t *testing.T) {
	t.Parallel()

	conn, database := clickhousetesting.NewTestConn(t, sharedDB)
	ctx := t.Context()

	require.NoError(t, conn.Exec(ctx, "CREATE TABLE `"+database+"`.t (x Int64) ENGINE = MergeTree ORDER BY tuple()"))
	require.NoError(t, conn.Exec(ctx, "CREATE OR REPLACE VIEW `"+database+"`.v_b AS SELECT x FROM `"+database+"`.t"))
	require.NoError(t, conn.Exec(ctx, "CREATE OR REPLACE VIEW `"+database+"`.v_a AS SELECT x FROM `"+database+"`.t"))

	views, err := clickhouse.ListViews(ctx, conn, database)
	require.NoError(t, err)
	require.Equal(t, []string{"v_a", "v_b"}, views)

	tables, err := clickhouse.ListTables(ctx, conn, database)
	require.NoError(t, err)
	require.Equal(t, []string{"t"}, tables)

	exists, err := clickhouse.TableExists(ctx, conn, database, "v_a")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = clickhouse.TableExists(ctx, conn, database, "missing")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestAgents_ClickHouse_Migrations(t *testing.T) {
	t.Parallel()

	log := agentstesting.NewLogger()
	_, database := clickhousetesting.NewTestConn(t, sharedDB)
	cfg := sharedDB.Config(database)

	require.NoError(t, clickhouse.RunMigrations(t.Context(), log, cfg))
	// Re-running is a no-op.
	require.NoError(t, clickhouse.RunMigrations(t.Context(), log, cfg))

	version, err := clickhouse.MigrationVersion(t.Context(), log, cfg)
	require.NoError(t, err)
	require.Equal(t, int64(2), version)
}
