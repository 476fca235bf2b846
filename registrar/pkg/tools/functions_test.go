package tools_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/derar-alhussein/agents-workshop/registrar/pkg/tools"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

func TestAgents_Tools_Definitions(t *testing.T) {
	t.Parallel()

	ns := namespace.Namespace{Catalog: "agents_lab", Schema: "product"}

	t.Run("registration order", func(t *testing.T) {
		t.Parallel()
		var names []string
		for _, fn := range tools.SQLFunctions() {
			names = append(names, fn.Name)
		}
		require.Equal(t, []string{tools.GetLatestReturn, tools.GetReturnPolicy, tools.GetOrderHistory}, names)
	})

	t.Run("declared return types", func(t *testing.T) {
		t.Parallel()
		fn, ok := tools.LookupSQLFunction(tools.GetOrderHistory)
		require.True(t, ok)
		require.Equal(t, "TABLE(returns_last_12_months INT, issue_category STRING, todays_date DATE)", fn.FullDataType())

		_, ok = tools.LookupSQLFunction("drop_everything")
		require.False(t, ok)
	})

	t.Run("ddl targets the namespace database", func(t *testing.T) {
		t.Parallel()
		fn, _ := tools.LookupSQLFunction(tools.GetReturnPolicy)
		ddl := tools.CreateDDL(ns, fn)
		require.Contains(t, ddl, "CREATE OR REPLACE VIEW `agents_lab__product`.`get_return_policy` AS")
		require.Contains(t, ddl, "FROM `agents_lab__product`.policies")
		require.Contains(t, ddl, "WHERE policy = 'Return Policy'")

		fn, _ = tools.LookupSQLFunction(tools.GetOrderHistory)
		require.Contains(t, tools.CreateDDL(ns, fn), "WHERE name = {user_name:String}")
	})

	t.Run("invoke query binds and escapes arguments", func(t *testing.T) {
		t.Parallel()
		fn, _ := tools.LookupSQLFunction(tools.GetOrderHistory)
		query, err := tools.InvokeQuery(ns, fn, map[string]string{"user_name": `O'Brien\`})
		require.NoError(t, err)
		require.Equal(t, "SELECT * FROM `agents_lab__product`.`get_order_history`(user_name = 'O\\'Brien\\\\')", query)

		_, err = tools.InvokeQuery(ns, fn, nil)
		require.ErrorContains(t, err, "takes 1 arguments, got 0")
		_, err = tools.InvokeQuery(ns, fn, map[string]string{"name": "x"})
		require.ErrorContains(t, err, `missing argument "user_name"`)

		fn, _ = tools.LookupSQLFunction(tools.GetLatestReturn)
		query, err = tools.InvokeQuery(ns, fn, nil)
		require.NoError(t, err)
		require.Equal(t, "SELECT * FROM `agents_lab__product`.`get_latest_return`", query)
	})

	t.Run("todays date uses the clock", func(t *testing.T) {
		t.Parallel()
		clock := clockwork.NewFakeClockAt(time.Date(2025, 2, 3, 23, 59, 0, 0, time.UTC))
		fn := tools.TodaysDate(clock)
		require.Equal(t, tools.GetTodaysDate, fn.Name)
		out, err := fn.Call(t.Context(), nil)
		require.NoError(t, err)
		require.Equal(t, "2025-02-03", out)
	})
}
