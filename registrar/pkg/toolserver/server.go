// Package toolserver exposes the functions registered in a namespace as Model
// Context Protocol tools, over stdio or streamable HTTP.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const serverName = "agents-workshop-tools"

type Server struct {
	log     *slog.Logger
	cfg     Config
	mcp     *mcp.Server
	tools   []string
	limiter *RateLimiter
}

// New resolves the functions present in the namespace and registers a tool
// for each of them.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log:     cfg.Logger,
		cfg:     cfg,
		mcp:     mcp.NewServer(&mcp.Implementation{Name: serverName, Version: cfg.VersionInfo.Version}, nil),
		limiter: NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst),
	}

	registered, err := s.registerTools(ctx)
	if err != nil {
		return nil, err
	}
	if len(registered) == 0 {
		s.log.Warn("toolserver: no functions found in namespace", "namespace", cfg.Namespace.String())
	}
	s.tools = registered
	s.log.Info("toolserver: tools registered", "namespace", cfg.Namespace.String(), "tools", registered)
	return s, nil
}

// Tools returns the names of the registered tools.
func (s *Server) Tools() []string {
	return s.tools
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok\n")); err != nil {
			s.log.Error("failed to write healthz response", "error", err)
		}
	})
	r.Get("/version", s.versionHandler)
	r.Handle("/metrics", promhttp.Handler())

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	r.With(s.limiter.Middleware).Handle("/mcp", streamable)
	return r
}

func (s *Server) versionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(s.cfg.VersionInfo); err != nil {
		s.log.Error("failed to write version response", "error", err)
	}
}

// RunStdio serves MCP over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.log.Info("toolserver: serving on stdio")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// RunHTTP serves the HTTP routes on cfg.ListenAddr until ctx is done.
func (s *Server) RunHTTP(ctx context.Context) error {
	if s.cfg.ListenAddr == "" {
		return errors.New("listen addr is required")
	}
	httpSrv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("toolserver: http listening", "address", s.cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to listen and serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.limiter.Prune()
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("toolserver: stopping", "reason", context.Cause(ctx), "address", s.cfg.ListenAddr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		s.log.Info("toolserver: http server shutdown complete")
		return nil
	})
	return g.Wait()
}
