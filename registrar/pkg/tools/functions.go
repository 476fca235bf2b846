// Package tools defines the agent tools of the workshop and registers them in a
// namespace: table-valued SQL functions rendered as ClickHouse views, and Go
// functions registered through funcclient.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/derar-alhussein/agents-workshop/registrar/pkg/funcclient"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

const (
	GetLatestReturn = "get_latest_return"
	GetReturnPolicy = "get_return_policy"
	GetOrderHistory = "get_order_history"
	GetTodaysDate   = "get_todays_date"

	// ReturnPolicyName is the policy get_return_policy looks up.
	ReturnPolicyName = "Return Policy"
)

// Column is a declared return column of a table-valued function.
type Column struct {
	Name string
	Type string
}

// SQLFunction is a table-valued function over the namespace's tables.
type SQLFunction struct {
	Name    string
	Comment string
	Params  []funcclient.Param
	Returns []Column
	// Query renders the function body against the given quoted database.
	// Params appear as ClickHouse query parameters, e.g. {user_name:String}.
	Query func(db string) string
}

// FullDataType renders the declared return type, e.g.
// TABLE(policy STRING, last_updated DATE).
func (f SQLFunction) FullDataType() string {
	cols := make([]string, len(f.Returns))
	for i, c := range f.Returns {
		cols[i] = c.Name + " " + c.Type
	}
	return "TABLE(" + strings.Join(cols, ", ") + ")"
}

// ReturnNames returns the declared return column names in order.
func (f SQLFunction) ReturnNames() []string {
	names := make([]string, len(f.Returns))
	for i, c := range f.Returns {
		names[i] = c.Name
	}
	return names
}

// parseTimestamp reads a loaded CSV timestamp column whatever type inference
// gave it. Unparseable values become NULL and sort last.
func parseTimestamp(col string) string {
	return fmt.Sprintf("parseDateTimeBestEffortOrNull(toString(%s))", col)
}

// SQLFunctions returns the table-valued functions in registration order.
func SQLFunctions() []SQLFunction {
	return []SQLFunction{
		{
			Name:    GetLatestReturn,
			Comment: "Returns the most recent customer service interaction, such as returns.",
			Returns: []Column{
				{Name: "purchase_date", Type: "DATE"},
				{Name: "issue_category", Type: "STRING"},
				{Name: "issue_description", Type: "STRING"},
				{Name: "name", Type: "STRING"},
			},
			Query: func(db string) string {
				return fmt.Sprintf(`SELECT
    toDate(%[2]s) AS purchase_date,
    issue_category,
    issue_description,
    name
FROM %[1]s.cust_service_data
ORDER BY %[2]s DESC
LIMIT 1`, db, parseTimestamp("date_time"))
			},
		},
		{
			Name:    GetReturnPolicy,
			Comment: "Returns the details of the Return Policy",
			Returns: []Column{
				{Name: "policy", Type: "STRING"},
				{Name: "policy_details", Type: "STRING"},
				{Name: "last_updated", Type: "DATE"},
			},
			Query: func(db string) string {
				return fmt.Sprintf(`SELECT
    policy,
    policy_details,
    toDate(%[2]s) AS last_updated
FROM %[1]s.policies
WHERE policy = %[3]s
LIMIT 1`, db, parseTimestamp("last_updated"), clickhouse.QuoteString(ReturnPolicyName))
			},
		},
		{
			Name:    GetOrderHistory,
			Comment: "This takes the user_name of a customer as an input and returns the number of returns and the issue category",
			Params:  []funcclient.Param{{Name: "user_name", Type: "STRING"}},
			Returns: []Column{
				{Name: "returns_last_12_months", Type: "INT"},
				{Name: "issue_category", Type: "STRING"},
				{Name: "todays_date", Type: "DATE"},
			},
			// returns_last_12_months counts every interaction of the customer;
			// no time window is applied.
			Query: func(db string) string {
				return fmt.Sprintf(`SELECT
    toInt32(count()) AS returns_last_12_months,
    issue_category,
    today() AS todays_date
FROM %s.cust_service_data
WHERE name = {user_name:String}
GROUP BY issue_category`, db)
			},
		},
	}
}

// LookupSQLFunction returns the table-valued function called name.
func LookupSQLFunction(name string) (SQLFunction, bool) {
	for _, fn := range SQLFunctions() {
		if fn.Name == name {
			return fn, true
		}
	}
	return SQLFunction{}, false
}

// TodaysDate returns the get_todays_date function, reading the date from clock.
func TodaysDate(clock clockwork.Clock) funcclient.GoFunction {
	return funcclient.GoFunction{
		Name:       GetTodaysDate,
		Comment:    "Returns today's date in 'YYYY-MM-DD' format.",
		ReturnType: "STRING",
		Call: func(ctx context.Context, args map[string]string) (string, error) {
			return clock.Now().Format("2006-01-02"), nil
		},
	}
}

// GoFunctions returns the Go functions in registration order.
func GoFunctions(clock clockwork.Clock) []funcclient.GoFunction {
	return []funcclient.GoFunction{TodaysDate(clock)}
}

// CreateDDL renders the statement that creates or replaces fn in ns.
func CreateDDL(ns namespace.Namespace, fn SQLFunction) string {
	db := clickhouse.QuoteIdentifier(ns.Database())
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s.%s AS\n%s", db, clickhouse.QuoteIdentifier(fn.Name), fn.Query(db))
}

// InvokeQuery renders a SELECT over fn with args bound to its params.
func InvokeQuery(ns namespace.Namespace, fn SQLFunction, args map[string]string) (string, error) {
	if len(args) != len(fn.Params) {
		return "", fmt.Errorf("%s takes %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}
	target := clickhouse.QuoteIdentifier(ns.Database()) + "." + clickhouse.QuoteIdentifier(fn.Name)
	if len(fn.Params) == 0 {
		return "SELECT * FROM " + target, nil
	}
	bound := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		v, ok := args[p.Name]
		if !ok {
			return "", fmt.Errorf("%s: missing argument %q", fn.Name, p.Name)
		}
		bound[i] = p.Name + " = " + clickhouse.QuoteString(v)
	}
	return fmt.Sprintf("SELECT * FROM %s(%s)", target, strings.Join(bound, ", ")), nil
}

// Invoke runs fn in ns and checks the result against the declared return
// columns.
func Invoke(ctx context.Context, conn clickhouse.Connection, ns namespace.Namespace, fn SQLFunction, args map[string]string) (*clickhouse.QueryResult, error) {
	query, err := InvokeQuery(ns, fn, args)
	if err != nil {
		return nil, err
	}
	result, err := clickhouse.Query(ctx, conn, query)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", ns.FullName(fn.Name), err)
	}
	want := fn.ReturnNames()
	if len(result.Columns) != len(want) {
		return nil, fmt.Errorf("%s returned columns %v, declared %v", ns.FullName(fn.Name), result.Columns, want)
	}
	for i := range want {
		if result.Columns[i] != want[i] {
			return nil, fmt.Errorf("%s returned columns %v, declared %v", ns.FullName(fn.Name), result.Columns, want)
		}
	}
	return result, nil
}
