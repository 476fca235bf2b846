package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/derar-alhussein/agents-workshop/utils/pkg/metrics"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
)

// Result describes one dataset written by Run.
type Result struct {
	Dataset string
	Table   string
	Rows    int
	Columns int
}

type Loader struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loader{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Run ensures the namespace exists and then loads every dataset in order. The
// first failure aborts the run: datasets loaded before it stay replaced and the
// rest are not touched.
func (l *Loader) Run(ctx context.Context) ([]Result, error) {
	conn, err := l.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	ns := l.cfg.Namespace
	if err := clickhouse.EnsureNamespace(ctx, l.log, conn, ns); err != nil {
		return nil, err
	}
	if err := clickhouse.RunMigrations(ctx, l.log, l.cfg.ClickHouseConfig.WithDatabase(ns.Database())); err != nil {
		return nil, err
	}

	runID := uuid.New()
	l.log.Info("loader: starting run", "run_id", runID, "namespace", ns.String(), "datasets", len(l.cfg.Datasets))

	results := make([]Result, 0, len(l.cfg.Datasets))
	for _, ds := range l.cfg.Datasets {
		res, err := l.loadDataset(ctx, conn, runID, ds)
		if err != nil {
			return results, fmt.Errorf("failed to load dataset %s: %w", ds.Name, err)
		}
		results = append(results, *res)
	}

	l.log.Info("loader: run complete", "run_id", runID, "datasets", len(results))
	return results, nil
}

func (l *Loader) loadDataset(ctx context.Context, conn clickhouse.Connection, runID uuid.UUID, ds Dataset) (res *Result, err error) {
	span := sentry.StartSpan(ctx, "loader.dataset", sentry.WithDescription(ds.Name))
	span.SetTag("dataset", ds.Name)
	span.SetData("source_url", ds.URL)
	ctx = span.Context()
	defer span.Finish()

	start := time.Now()
	defer func() {
		metrics.DatasetLoadsTotal.WithLabelValues(ds.Name, metrics.Status(err)).Inc()
		metrics.DatasetLoadDuration.WithLabelValues(ds.Name).Observe(time.Since(start).Seconds())
		if err != nil {
			span.Status = sentry.SpanStatusInternalError
		} else {
			span.Status = sentry.SpanStatusOK
		}
	}()

	l.log.Debug("loader: fetching dataset", "dataset", ds.Name, "url", ds.URL)
	body, err := l.cfg.Source.Fetch(ctx, ds.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", ds.URL, err)
	}
	defer body.Close()

	table, err := ParseCSV(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ds.URL, err)
	}

	database := l.cfg.Namespace.Database()
	err = clickhouse.ReplaceTable(ctx, l.log, conn, database, ds.Name, table.Columns, len(table.Rows), func(i int) ([]any, error) {
		return table.Rows[i], nil
	})
	if err != nil {
		return nil, err
	}
	metrics.DatasetRowsLoaded.WithLabelValues(ds.Name).Add(float64(len(table.Rows)))

	if err := l.recordRun(ctx, conn, runID, ds, table); err != nil {
		return nil, err
	}

	l.log.Info("loader: dataset loaded",
		"dataset", ds.Name,
		"table", l.cfg.Namespace.FullName(ds.Name),
		"rows", len(table.Rows),
		"columns", len(table.Columns),
		"duration", time.Since(start),
	)

	return &Result{
		Dataset: ds.Name,
		Table:   l.cfg.Namespace.FullName(ds.Name),
		Rows:    len(table.Rows),
		Columns: len(table.Columns),
	}, nil
}

func (l *Loader) recordRun(ctx context.Context, conn clickhouse.Connection, runID uuid.UUID, ds Dataset, table *Table) error {
	query := fmt.Sprintf(
		"INSERT INTO %s.load_runs (run_id, dataset, source_url, row_count, column_count, loaded_at)",
		clickhouse.QuoteIdentifier(l.cfg.Namespace.Database()),
	)
	batch, err := conn.PrepareBatch(clickhouse.ContextWithSyncInsert(ctx), query)
	if err != nil {
		return fmt.Errorf("failed to prepare load run batch: %w", err)
	}
	defer batch.Close()

	if err := batch.Append(runID, ds.Name, ds.URL, uint64(len(table.Rows)), uint32(len(table.Columns)), l.cfg.Clock.Now().UTC()); err != nil {
		return fmt.Errorf("failed to append load run: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to record load run: %w", err)
	}
	return nil
}
