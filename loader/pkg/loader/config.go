package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/clickhouse"
	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

const DefaultBaseURL = "https://raw.githubusercontent.com/derar-alhussein/agents-workshop/data"

// Dataset is a named CSV source that becomes the table of the same name.
type Dataset struct {
	Name string
	URL  string
}

// DefaultDatasets returns the workshop datasets under baseURL, in load order.
func DefaultDatasets(baseURL string) []Dataset {
	baseURL = strings.TrimRight(baseURL, "/")
	names := []string{"cust_service_data", "policies", "product_docs"}
	datasets := make([]Dataset, 0, len(names))
	for _, name := range names {
		datasets = append(datasets, Dataset{Name: name, URL: baseURL + "/" + name + ".csv"})
	}
	return datasets
}

type Config struct {
	Logger     *slog.Logger
	ClickHouse clickhouse.Client
	// ClickHouseConfig is used to run migrations in the namespace database.
	ClickHouseConfig clickhouse.Config
	Namespace        namespace.Namespace
	Datasets         []Dataset
	Source           Source
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
	if cfg.Namespace == (namespace.Namespace{}) {
		cfg.Namespace = namespace.Default()
	}
	if err := cfg.Namespace.Validate(); err != nil {
		return fmt.Errorf("invalid namespace: %w", err)
	}
	if len(cfg.Datasets) == 0 {
		cfg.Datasets = DefaultDatasets(DefaultBaseURL)
	}
	seen := make(map[string]struct{}, len(cfg.Datasets))
	for _, ds := range cfg.Datasets {
		if err := namespace.ValidateIdentifier(ds.Name); err != nil {
			return fmt.Errorf("invalid dataset name: %w", err)
		}
		if _, ok := seen[ds.Name]; ok {
			return fmt.Errorf("duplicate dataset %q", ds.Name)
		}
		seen[ds.Name] = struct{}{}
		if ds.URL == "" {
			return fmt.Errorf("dataset %q has no url", ds.Name)
		}
	}
	if cfg.Source == nil {
		cfg.Source = &Router{HTTP: &HTTPSource{Client: http.DefaultClient}}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}
