package admin_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/derar-alhussein/agents-workshop/admin/internal/admin"
	agentstesting "github.com/derar-alhussein/agents-workshop/utils/pkg/testing"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
)

// seed creates a dataset table and a view over it next to the migrated
// bookkeeping tables.
func seed(t *testing.T, info *agentstesting.ClientInfo) clickhouse.Connection {
	t.Helper()
	conn, err := info.Client.Conn(t.Context())
	require.NoError(t, err)
	db := clickhouse.QuoteIdentifier(info.Namespace.Database())
	require.NoError(t, conn.Exec(t.Context(), "CREATE TABLE "+db+".policies (policy String) ENGINE = MergeTree ORDER BY tuple()"))
	require.NoError(t, conn.Exec(t.Context(), "CREATE OR REPLACE VIEW "+db+".get_return_policy AS SELECT policy FROM "+db+".policies"))
	return conn
}

func TestAgents_Admin_ResetNamespace(t *testing.T) {
	t.Parallel()

	t.Run("dry run drops nothing", func(t *testing.T) {
		t.Parallel()
		info := agentstesting.NewClientWithInfo(t, sharedDB)
		conn := seed(t, info)

		var out bytes.Buffer
		result, err := admin.ResetNamespace(t.Context(), admin.ResetConfig{
			Logger:     agentstesting.NewLogger(),
			ClickHouse: info.Client,
			Namespace:  info.Namespace,
			DryRun:     true,
			Out:        &out,
		})
		require.NoError(t, err)
		require.Equal(t, []string{"get_return_policy"}, result.Views)
		require.Contains(t, result.Tables, "policies")
		require.Contains(t, result.Tables, "function_registry")
		require.Contains(t, out.String(), "[DRY RUN]")

		views, err := clickhouse.ListViews(t.Context(), conn, info.Namespace.Database())
		require.NoError(t, err)
		require.Len(t, views, 1)
	})

	t.Run("declined confirmation cancels", func(t *testing.T) {
		t.Parallel()
		info := agentstesting.NewClientWithInfo(t, sharedDB)
		conn := seed(t, info)

		result, err := admin.ResetNamespace(t.Context(), admin.ResetConfig{
			Logger:     agentstesting.NewLogger(),
			ClickHouse: info.Client,
			Namespace:  info.Namespace,
			In:         strings.NewReader("no\n"),
		})
		require.NoError(t, err)
		require.True(t, result.Cancelled)

		exists, err := clickhouse.TableExists(t.Context(), conn, info.Namespace.Database(), "policies")
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("confirmed reset drops views and tables", func(t *testing.T) {
		t.Parallel()
		info := agentstesting.NewClientWithInfo(t, sharedDB)
		conn := seed(t, info)

		result, err := admin.ResetNamespace(t.Context(), admin.ResetConfig{
			Logger:     agentstesting.NewLogger(),
			ClickHouse: info.Client,
			Namespace:  info.Namespace,
			In:         strings.NewReader("YES\n"),
		})
		require.NoError(t, err)
		require.False(t, result.Cancelled)

		views, err := clickhouse.ListViews(t.Context(), conn, info.Namespace.Database())
		require.NoError(t, err)
		require.Empty(t, views)
		tables, err := clickhouse.ListTables(t.Context(), conn, info.Namespace.Database())
		require.NoError(t, err)
		require.Empty(t, tables)
	})

	t.Run("requires input unless skipping confirmation", func(t *testing.T) {
		t.Parallel()
		info := agentstesting.NewClientWithInfo(t, sharedDB)
		_, err := admin.ResetNamespace(t.Context(), admin.ResetConfig{
			Logger:     agentstesting.NewLogger(),
			ClickHouse: info.Client,
			Namespace:  info.Namespace,
		})
		require.ErrorContains(t, err, "confirmation input is required")
	})
}
