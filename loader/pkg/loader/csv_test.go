package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
)

func TestAgents_Loader_ParseCSV(t *testing.T) {
	t.Parallel()

	t.Run("infers column types", func(t *testing.T) {
		t.Parallel()
		table, err := ParseCSV(strings.NewReader(
			"id,score,active,name,date_time\n" +
				"1,1.5,true,Alice,2024-01-01 10:00:00\n" +
				"2,2,FALSE,Bob,2024-01-02 11:30:00\n"))
		require.NoError(t, err)
		require.Equal(t, []clickhouse.Column{
			{Name: "id", Type: "Int64"},
			{Name: "score", Type: "Float64"},
			{Name: "active", Type: "Bool"},
			{Name: "name", Type: "String"},
			{Name: "date_time", Type: "String"},
		}, table.Columns)
		require.Len(t, table.Rows, 2)
		require.Equal(t, []any{int64(2), float64(2), false, "Bob", "2024-01-02 11:30:00"}, table.Rows[1])
	})

	t.Run("nulls make columns nullable", func(t *testing.T) {
		t.Parallel()
		table, err := ParseCSV(strings.NewReader("n,label\n1,\nNA,x\n"))
		require.NoError(t, err)
		require.Equal(t, "Nullable(Int64)", table.Columns[0].Type)
		require.Equal(t, "Nullable(String)", table.Columns[1].Type)

		n, ok := table.Rows[0][0].(*int64)
		require.True(t, ok)
		require.Equal(t, int64(1), *n)
		require.Nil(t, table.Rows[0][1])
		require.Nil(t, table.Rows[1][0])
		label, ok := table.Rows[1][1].(*string)
		require.True(t, ok)
		require.Equal(t, "x", *label)
	})

	t.Run("numbers followed by words become strings", func(t *testing.T) {
		t.Parallel()
		table, err := ParseCSV(strings.NewReader("v\n1\ntrue\n"))
		require.NoError(t, err)
		require.Equal(t, "String", table.Columns[0].Type)
		require.Equal(t, "1", table.Rows[0][0])
	})

	t.Run("header only", func(t *testing.T) {
		t.Parallel()
		table, err := ParseCSV(strings.NewReader("policy,policy_details,last_updated\n"))
		require.NoError(t, err)
		require.Len(t, table.Columns, 3)
		require.Equal(t, "Nullable(String)", table.Columns[0].Type)
		require.Empty(t, table.Rows)
	})

	t.Run("quoted fields with commas and newlines", func(t *testing.T) {
		t.Parallel()
		table, err := ParseCSV(strings.NewReader("policy,policy_details\n\"Return Policy\",\"30 days, no questions\nasked\"\n"))
		require.NoError(t, err)
		require.Len(t, table.Rows, 1)
		require.Equal(t, "30 days, no questions\nasked", table.Rows[0][1])
	})

	t.Run("short records are padded with nulls", func(t *testing.T) {
		t.Parallel()
		table, err := ParseCSV(strings.NewReader("a,b\n1,2\n3\n"))
		require.NoError(t, err)
		require.Equal(t, "Int64", table.Columns[0].Type)
		require.Equal(t, "Nullable(Int64)", table.Columns[1].Type)
		require.Nil(t, table.Rows[1][1])
	})

	t.Run("long records are an error", func(t *testing.T) {
		t.Parallel()
		_, err := ParseCSV(strings.NewReader("a,b\n1,2,3\n"))
		require.ErrorContains(t, err, "expected 2 fields, saw 3")
	})

	t.Run("malformed quoting is an error", func(t *testing.T) {
		t.Parallel()
		_, err := ParseCSV(strings.NewReader("a,b\n\"unterminated,2\n"))
		require.ErrorContains(t, err, "failed to read csv record")
	})

	t.Run("empty document is an error", func(t *testing.T) {
		t.Parallel()
		_, err := ParseCSV(strings.NewReader(""))
		require.ErrorContains(t, err, "no header row")
	})
}

func TestAgents_Loader_ColumnNames(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		[]string{"a", "Unnamed: 1", "a.1", "b", "a.2"},
		columnNames([]string{"\ufeffa", "", "a", "b", "a"}),
	)
	require.Equal(t,
		[]string{"a", "a.1", "a.2"},
		columnNames([]string{"a", "a.1", "a"}),
	)
}
