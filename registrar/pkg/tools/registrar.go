package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"

	"github.com/derar-alhussein/agents-workshop/registrar/pkg/funcclient"
	"github.com/derar-alhussein/agents-workshop/utils/pkg/metrics"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

const DefaultSmokeTestUser = "Nicolas Pelaez"

type Config struct {
	Logger     *slog.Logger
	ClickHouse clickhouse.Client
	// ClickHouseConfig is used to run migrations in the namespace database.
	ClickHouseConfig clickhouse.Config
	Functions        *funcclient.Client
	Namespace        namespace.Namespace
	SmokeTestUser    string
	Clock            clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse client is required")
	}
	if err := cfg.ClickHouseConfig.Validate(); err != nil {
		return fmt.Errorf("invalid clickhouse config: %w", err)
	}
	if cfg.Functions == nil {
		return errors.New("function client is required")
	}
	if cfg.Namespace == (namespace.Namespace{}) {
		cfg.Namespace = namespace.Default()
	}
	if err := cfg.Namespace.Validate(); err != nil {
		return fmt.Errorf("invalid namespace: %w", err)
	}
	if cfg.SmokeTestUser == "" {
		cfg.SmokeTestUser = DefaultSmokeTestUser
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Registration is the outcome of registering and smoke testing one function.
type Registration struct {
	FullName string
	Language string
	// Rows is the smoke test's row count for SQL functions.
	Rows int
	// Output is the smoke test's return value for Go functions.
	Output string
}

type Registrar struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Registrar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Registrar{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Run creates or replaces every function in order, smoke testing each one
// right after it is registered. The first failure aborts the run.
func (r *Registrar) Run(ctx context.Context) ([]Registration, error) {
	conn, err := r.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	ns := r.cfg.Namespace
	if err := clickhouse.EnsureNamespace(ctx, r.log, conn, ns); err != nil {
		return nil, err
	}
	if err := clickhouse.RunMigrations(ctx, r.log, r.cfg.ClickHouseConfig.WithDatabase(ns.Database())); err != nil {
		return nil, err
	}

	var registrations []Registration
	for _, fn := range SQLFunctions() {
		reg, err := r.registerSQL(ctx, conn, fn)
		if err != nil {
			return registrations, err
		}
		registrations = append(registrations, *reg)
	}
	for _, fn := range GoFunctions(r.cfg.Clock) {
		reg, err := r.registerGo(ctx, fn)
		if err != nil {
			return registrations, err
		}
		registrations = append(registrations, *reg)
	}
	return registrations, nil
}

func (r *Registrar) smokeTestArgs(fn SQLFunction) map[string]string {
	args := make(map[string]string, len(fn.Params))
	for _, p := range fn.Params {
		if p.Name == "user_name" {
			args[p.Name] = r.cfg.SmokeTestUser
		}
	}
	return args
}

func (r *Registrar) registerSQL(ctx context.Context, conn clickhouse.Connection, fn SQLFunction) (reg *Registration, err error) {
	fullName := r.cfg.Namespace.FullName(fn.Name)
	ctx, finish := r.startSpan(ctx, fullName, "SQL")
	defer func() { finish(err) }()

	if err := conn.Exec(ctx, CreateDDL(r.cfg.Namespace, fn)); err != nil {
		return nil, fmt.Errorf("failed to create function %s: %w", fullName, err)
	}
	r.log.Info("registrar: created function", "function", fullName, "returns", fn.FullDataType())

	result, err := Invoke(ctx, conn, r.cfg.Namespace, fn, r.smokeTestArgs(fn))
	if err != nil {
		return nil, fmt.Errorf("smoke test of %s failed: %w", fullName, err)
	}
	r.log.Info("registrar: smoke test", "function", fullName, "rows", result.Count)
	for _, row := range result.Rows {
		r.log.Debug("registrar: smoke test row", "function", fullName, "row", row)
	}

	return &Registration{FullName: fullName, Language: "SQL", Rows: result.Count}, nil
}

func (r *Registrar) registerGo(ctx context.Context, fn funcclient.GoFunction) (reg *Registration, err error) {
	fullName := r.cfg.Namespace.FullName(fn.Name)
	ctx, finish := r.startSpan(ctx, fullName, funcclient.LanguageGo)
	defer func() { finish(err) }()

	info, err := r.cfg.Functions.CreateGoFunction(ctx, fn, r.cfg.Namespace.Catalog, r.cfg.Namespace.Schema, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create function %s: %w", fullName, err)
	}

	out, err := r.cfg.Functions.Execute(ctx, info.FullName, nil)
	if err != nil {
		return nil, fmt.Errorf("smoke test of %s failed: %w", fullName, err)
	}
	r.log.Info("registrar: smoke test", "function", fullName, "output", out)

	return &Registration{FullName: info.FullName, Language: info.ExternalLanguage, Output: out}, nil
}

func (r *Registrar) startSpan(ctx context.Context, fullName, language string) (context.Context, func(error)) {
	span := sentry.StartSpan(ctx, "registrar.function", sentry.WithDescription(fullName))
	span.SetTag("language", language)
	start := time.Now()
	return span.Context(), func(err error) {
		metrics.FunctionRegistrationsTotal.WithLabelValues(fullName, metrics.Status(err)).Inc()
		if err != nil {
			span.Status = sentry.SpanStatusInternalError
		} else {
			span.Status = sentry.SpanStatusOK
		}
		span.SetData("duration_ms", time.Since(start).Milliseconds())
		span.Finish()
	}
}

// ListFunctions returns the names of the functions registered in the
// namespace: SQL functions present as views and Go functions in the registry.
func (r *Registrar) ListFunctions(ctx context.Context) ([]string, error) {
	return ListFunctions(ctx, r.cfg.ClickHouse, r.cfg.Functions, r.cfg.Namespace)
}

// ListFunctions is the standalone form of Registrar.ListFunctions.
func ListFunctions(ctx context.Context, client clickhouse.Client, functions *funcclient.Client, ns namespace.Namespace) ([]string, error) {
	conn, err := client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	views, err := clickhouse.ListViews(ctx, conn, ns.Database())
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{})
	for _, fn := range SQLFunctions() {
		known[fn.Name] = struct{}{}
	}

	var names []string
	for _, v := range views {
		if _, ok := known[v]; ok {
			names = append(names, v)
		}
	}

	infos, err := functions.ListFunctions(ctx, ns.Catalog, ns.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list registered functions: %w", err)
	}
	for _, info := range infos {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names, nil
}
