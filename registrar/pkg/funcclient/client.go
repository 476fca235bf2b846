package funcclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/derar-alhussein/agents-workshop/warehouse/pkg/namespace"
)

type Config struct {
	Logger *slog.Logger
	Store  Store
	Clock  clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Client struct {
	log   *slog.Logger
	cfg   Config
	mu    sync.RWMutex
	impls map[string]GoFunction
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		log:   cfg.Logger,
		cfg:   cfg,
		impls: make(map[string]GoFunction),
	}, nil
}

// CreateGoFunction registers fn as catalog.schema.<fn.Name> and links its
// implementation. Without replace, an existing registration is an error.
// Replacing keeps the original creation time.
func (c *Client) CreateGoFunction(ctx context.Context, fn GoFunction, catalog, schema string, replace bool) (*FunctionInfo, error) {
	if err := fn.validate(); err != nil {
		return nil, err
	}
	ns := namespace.Namespace{Catalog: catalog, Schema: schema}
	if err := ns.Validate(); err != nil {
		return nil, fmt.Errorf("invalid namespace: %w", err)
	}
	if err := namespace.ValidateIdentifier(fn.Name); err != nil {
		return nil, fmt.Errorf("invalid function name: %w", err)
	}
	fullName := ns.FullName(fn.Name)

	now := c.cfg.Clock.Now().UTC()
	createdAt := now
	existing, err := c.cfg.Store.Get(ctx, fullName)
	switch {
	case err == nil:
		if !replace {
			return nil, fmt.Errorf("%w: %s", ErrFunctionExists, fullName)
		}
		createdAt = existing.CreatedAt
	case errors.Is(err, ErrFunctionNotFound):
	default:
		return nil, fmt.Errorf("failed to look up %s: %w", fullName, err)
	}

	params := fn.Params
	if params == nil {
		params = []Param{}
	}
	info := &FunctionInfo{
		FullName:         fullName,
		CatalogName:      catalog,
		SchemaName:       schema,
		Name:             fn.Name,
		Comment:          fn.Comment,
		InputParams:      params,
		DataType:         fn.ReturnType,
		FullDataType:     fn.ReturnType,
		ExternalLanguage: LanguageGo,
		CreatedAt:        createdAt,
		UpdatedAt:        now,
	}
	if err := c.cfg.Store.Put(ctx, info); err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", fullName, err)
	}

	c.Link(fullName, fn)
	c.log.Info("funcclient: registered function", "function", fullName, "replace", replace)
	return info, nil
}

// Link attaches an implementation to fullName without touching the store. It
// is how a process serves functions registered by another one.
func (c *Client) Link(fullName string, fn GoFunction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.impls[fullName] = fn
}

func (c *Client) GetFunction(ctx context.Context, fullName string) (*FunctionInfo, error) {
	return c.cfg.Store.Get(ctx, fullName)
}

func (c *Client) ListFunctions(ctx context.Context, catalog, schema string) ([]FunctionInfo, error) {
	return c.cfg.Store.List(ctx, catalog, schema)
}

// Execute resolves the registration of fullName and calls its linked
// implementation with args, which must name exactly the declared params.
func (c *Client) Execute(ctx context.Context, fullName string, args map[string]string) (string, error) {
	info, err := c.cfg.Store.Get(ctx, fullName)
	if err != nil {
		return "", err
	}

	c.mu.RLock()
	fn, ok := c.impls[fullName]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no implementation linked for %s", fullName)
	}

	if len(args) != len(info.InputParams) {
		return "", fmt.Errorf("%s takes %d arguments, got %d", fullName, len(info.InputParams), len(args))
	}
	for _, p := range info.InputParams {
		if _, ok := args[p.Name]; !ok {
			return "", fmt.Errorf("%s: missing argument %q", fullName, p.Name)
		}
	}

	out, err := fn.Call(ctx, args)
	if err != nil {
		return "", fmt.Errorf("failed to execute %s: %w", fullName, err)
	}
	return out, nil
}
