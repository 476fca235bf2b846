package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/derar-alhussein/agents-workshop/registrar/pkg/tools"
	"github.com/derar-alhussein/agents-workshop/utils/pkg/metrics"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
)

type noArgs struct{}

type orderHistoryArgs struct {
	UserName string `json:"user_name" jsonschema:"the name of the customer"`
}

// registerTools adds a tool for every function that exists in the namespace
// and returns their names.
func (s *Server) registerTools(ctx context.Context) ([]string, error) {
	names, err := tools.ListFunctions(ctx, s.cfg.ClickHouse, s.cfg.Functions, s.cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to list functions: %w", err)
	}

	goFuncs := make(map[string]bool)
	for _, fn := range tools.GoFunctions(s.cfg.Clock) {
		goFuncs[fn.Name] = true
		s.cfg.Functions.Link(s.cfg.Namespace.FullName(fn.Name), fn)
	}

	var registered []string
	for _, name := range names {
		if fn, ok := tools.LookupSQLFunction(name); ok {
			s.addSQLTool(fn)
			registered = append(registered, name)
			continue
		}
		if goFuncs[name] {
			if err := s.addGoTool(ctx, name); err != nil {
				return nil, err
			}
			registered = append(registered, name)
			continue
		}
		s.log.Debug("toolserver: skipping function without implementation", "function", name)
	}
	return registered, nil
}

func (s *Server) addSQLTool(fn tools.SQLFunction) {
	tool := &mcp.Tool{
		Name:        fn.Name,
		Description: fn.Comment,
	}
	if len(fn.Params) == 0 {
		mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, _ noArgs) (*mcp.CallToolResult, any, error) {
			return s.callSQL(ctx, fn, nil), nil, nil
		})
		return
	}
	// Only get_order_history takes arguments.
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, in orderHistoryArgs) (*mcp.CallToolResult, any, error) {
		return s.callSQL(ctx, fn, map[string]string{"user_name": in.UserName}), nil, nil
	})
}

func (s *Server) addGoTool(ctx context.Context, name string) error {
	fullName := s.cfg.Namespace.FullName(name)
	info, err := s.cfg.Functions.GetFunction(ctx, fullName)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", fullName, err)
	}
	tool := &mcp.Tool{
		Name:        name,
		Description: info.Comment,
	}
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, _ noArgs) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		out, err := s.cfg.Functions.Execute(ctx, fullName, nil)
		s.observe(name, start, err)
		if err != nil {
			return errorResult(err), nil, nil
		}
		return textResult(out), nil, nil
	})
	return nil
}

func (s *Server) callSQL(ctx context.Context, fn tools.SQLFunction, args map[string]string) *mcp.CallToolResult {
	start := time.Now()
	result, err := s.invokeSQL(ctx, fn, args)
	s.observe(fn.Name, start, err)
	if err != nil {
		return errorResult(err)
	}
	return textResult(result)
}

func (s *Server) invokeSQL(ctx context.Context, fn tools.SQLFunction, args map[string]string) (string, error) {
	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	result, err := tools.Invoke(ctx, conn, s.cfg.Namespace, fn, args)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(formatRows(fn, result))
	if err != nil {
		return "", fmt.Errorf("failed to encode rows: %w", err)
	}
	return string(data), nil
}

// formatRows renders DATE columns as YYYY-MM-DD instead of full timestamps.
func formatRows(fn tools.SQLFunction, result *clickhouse.QueryResult) []map[string]any {
	dates := make(map[string]bool)
	for _, c := range fn.Returns {
		if c.Type == "DATE" {
			dates[c.Name] = true
		}
	}
	rows := make([]map[string]any, len(result.Rows))
	for i, row := range result.Rows {
		out := make(map[string]any, len(row))
		for k, v := range row {
			if t, ok := v.(time.Time); ok && dates[k] {
				v = t.Format("2006-01-02")
			}
			out[k] = v
		}
		rows[i] = out
	}
	return rows
}

func (s *Server) observe(tool string, start time.Time, err error) {
	metrics.ToolCallsTotal.WithLabelValues(tool, metrics.Status(err)).Inc()
	metrics.ToolCallDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	if err != nil {
		s.log.Warn("toolserver: tool call failed", "tool", tool, "error", err)
		return
	}
	s.log.Debug("toolserver: tool call", "tool", tool, "duration", time.Since(start))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}}}
}
