package toolserver_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/derar-alhussein/agents-workshop/loader/pkg/loader"
	"github.com/derar-alhussein/agents-workshop/registrar/pkg/funcclient"
	"github.com/derar-alhussein/agents-workshop/registrar/pkg/toolserver"
	"github.com/derar-alhussein/agents-workshop/registrar/pkg/tools"
	agentstesting "github.com/derar-alhussein/agents-workshop/utils/pkg/testing"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
)

const (
	custServiceCSV = `date_time,issue_category,issue_description,name
2024-05-01 10:15:00,Returns,Package arrived damaged,Nicolas Pelaez
2024-06-11 09:00:00,Billing,Charged twice,Nicolas Pelaez
`
	policiesCSV = `policy,policy_details,last_updated
Return Policy,Returns accepted within 30 days,2024-01-15
`
)

func loadTables(t *testing.T, info *agentstesting.ClientInfo) {
	t.Helper()
	conn, err := info.Client.Conn(t.Context())
	require.NoError(t, err)
	for name, body := range map[string]string{"cust_service_data": custServiceCSV, "policies": policiesCSV} {
		table, err := loader.ParseCSV(strings.NewReader(body))
		require.NoError(t, err)
		err = clickhouse.ReplaceTable(t.Context(), agentstesting.NewLogger(), conn, info.Namespace.Database(), name, table.Columns, len(table.Rows), func(i int) ([]any, error) {
			return table.Rows[i], nil
		})
		require.NoError(t, err)
	}
}

// newServer prepares a namespace, optionally registers the functions in it and
// starts a tool server over it.
func newServer(t *testing.T, register bool, rateLimitBurst int) *toolserver.Server {
	t.Helper()
	log := agentstesting.NewLogger()
	info := agentstesting.NewClientWithInfo(t, sharedDB)
	loadTables(t, info)

	store, err := funcclient.NewClickHouseStore(info.Client)
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC))

	if register {
		functions, err := funcclient.New(funcclient.Config{Logger: log, Store: store, Clock: clock})
		require.NoError(t, err)
		registrar, err := tools.New(tools.Config{
			Logger:           log,
			ClickHouse:       info.Client,
			ClickHouseConfig: info.Config,
			Functions:        functions,
			Namespace:        info.Namespace,
			Clock:            clock,
		})
		require.NoError(t, err)
		_, err = registrar.Run(t.Context())
		require.NoError(t, err)
	}

	// A separate client, as in a separate process: implementations are linked
	// by the server itself.
	functions, err := funcclient.New(funcclient.Config{Logger: log, Store: store, Clock: clock})
	require.NoError(t, err)
	srv, err := toolserver.New(t.Context(), toolserver.Config{
		Logger:         log,
		ClickHouse:     info.Client,
		Functions:      functions,
		Namespace:      info.Namespace,
		Clock:          clock,
		RateLimitBurst: rateLimitBurst,
		VersionInfo:    toolserver.VersionInfo{Version: "v1.2.3", Commit: "abc", Date: "2024-08-01"},
	})
	require.NoError(t, err)
	return srv
}

func connect(t *testing.T, srv *toolserver.Server) *mcp.ClientSession {
	t.Helper()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer().Connect(t.Context(), serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(t.Context(), clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callText(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(t.Context(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestAgents_ToolServer_MCP(t *testing.T) {
	t.Parallel()

	t.Run("registers only functions present in the namespace", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, false, 0)
		require.Empty(t, srv.Tools())
	})

	t.Run("serves every registered function", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, true, 0)
		require.Equal(t, []string{
			tools.GetLatestReturn,
			tools.GetOrderHistory,
			tools.GetReturnPolicy,
			tools.GetTodaysDate,
		}, srv.Tools())

		session := connect(t, srv)
		res, err := session.ListTools(t.Context(), nil)
		require.NoError(t, err)
		require.Len(t, res.Tools, 4)

		text, isErr := callText(t, session, tools.GetTodaysDate, map[string]any{})
		require.False(t, isErr)
		require.Equal(t, "2024-08-01", text)

		text, isErr = callText(t, session, tools.GetLatestReturn, map[string]any{})
		require.False(t, isErr)
		var latest []map[string]any
		require.NoError(t, json.Unmarshal([]byte(text), &latest))
		require.Len(t, latest, 1)
		require.Equal(t, "2024-06-11", latest[0]["purchase_date"])
		require.Equal(t, "Billing", latest[0]["issue_category"])

		text, isErr = callText(t, session, tools.GetOrderHistory, map[string]any{"user_name": "Nicolas Pelaez"})
		require.False(t, isErr)
		var history []map[string]any
		require.NoError(t, json.Unmarshal([]byte(text), &history))
		require.Len(t, history, 2)
		for _, row := range history {
			require.Equal(t, float64(1), row["returns_last_12_months"])
		}

		text, isErr = callText(t, session, tools.GetReturnPolicy, map[string]any{})
		require.False(t, isErr)
		require.Contains(t, text, "Returns accepted within 30 days")
	})
}

func TestAgents_ToolServer_HTTP(t *testing.T) {
	t.Parallel()

	srv := newServer(t, false, 1)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(httpSrv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, "ok\n", string(body))
	})

	t.Run("version", func(t *testing.T) {
		resp, err := http.Get(httpSrv.URL + "/version")
		require.NoError(t, err)
		defer resp.Body.Close()
		var info toolserver.VersionInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
		require.Equal(t, toolserver.VersionInfo{Version: "v1.2.3", Commit: "abc", Date: "2024-08-01"}, info)
	})

	t.Run("mcp endpoint is rate limited", func(t *testing.T) {
		resp, err := http.Get(httpSrv.URL + "/mcp")
		require.NoError(t, err)
		resp.Body.Close()
		require.NotEqual(t, http.StatusTooManyRequests, resp.StatusCode)

		resp, err = http.Get(httpSrv.URL + "/mcp")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("Retry-After"))

		var body toolserver.RateLimitError
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, "rate_limit_exceeded", body.Error)
	})
}

func TestAgents_ToolServer_RateLimiter(t *testing.T) {
	t.Parallel()

	rl := toolserver.NewRateLimiter(60, 2)
	allowed, _ := rl.AllowWithRetry("10.0.0.1")
	require.True(t, allowed)
	allowed, _ = rl.AllowWithRetry("10.0.0.1")
	require.True(t, allowed)
	allowed, retryAfter := rl.AllowWithRetry("10.0.0.1")
	require.False(t, allowed)
	require.Greater(t, retryAfter, time.Duration(0))

	allowed, _ = rl.AllowWithRetry("10.0.0.2")
	require.True(t, allowed)
}
