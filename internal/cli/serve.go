package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/parley/internal/config"
	httpadapter "github.com/aretw0/parley/pkg/adapters/http"
	"github.com/aretw0/parley/pkg/adapters/mcp"
)

// ServeOptions contains the configuration for the serve command.
type ServeOptions struct {
	ConfigPath string
	Addr       string
	Debug      bool
}

// NewHTTPHandler builds the HTTP API for app.
func NewHTTPHandler(app *App) (http.Handler, error) {
	limiter, err := app.NewLimiter()
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit: %w", err)
	}
	return httpadapter.NewHandler(app.Orchestrator,
		httpadapter.WithAPIKey(app.Config.Server.APIKey),
		httpadapter.WithRateLimiter(limiter),
		httpadapter.WithSessions(app.Sessions),
		httpadapter.WithLogger(app.Logger),
		httpadapter.WithMetricsHandler(app.MetricsHandler()),
	), nil
}

// RunServe serves the HTTP API until SIGINT/SIGTERM.
func RunServe(opts ServeOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if err := cfg.RequireServerKey(); err != nil {
		return err
	}

	app, err := Build(cfg, BuildOptions{Logger: createLogger(cfg.LogLevel, cfg.LogFormat, opts.Debug), WithModel: true})
	if err != nil {
		return err
	}
	defer app.Close()

	handler, err := NewHTTPHandler(app)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	serverErrors := make(chan error, 1)
	go func() {
		app.Logger.Info("HTTP server listening", "address", cfg.Server.Addr, "store", cfg.Store.Backend)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
		app.Logger.Info("Shutdown signal received, shutting down server...", "signal", fmt.Sprint(sigCtx.Signal()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

// MCPOptions contains the configuration for the mcp command.
type MCPOptions struct {
	ConfigPath string
	Transport  string // stdio or sse
	Addr       string
	Debug      bool
}

// RunMCP serves the orchestrator as an MCP server.
func RunMCP(opts MCPOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	// Stdout carries the protocol; logs go to Stderr only.
	app, err := Build(cfg, BuildOptions{Logger: createLogger(cfg.LogLevel, cfg.LogFormat, opts.Debug), WithModel: true})
	if err != nil {
		return err
	}
	defer app.Close()

	server := mcp.NewServer(app.Orchestrator, mcp.WithSessions(app.Sessions), mcp.WithLogger(app.Logger))

	switch opts.Transport {
	case "", "stdio":
		return server.ServeStdio()
	case "sse":
		addr := opts.Addr
		if addr == "" {
			addr = ":8081"
		}
		sigCtx := NewSignalContext(context.Background())
		defer sigCtx.Cancel()
		return server.ServeSSE(sigCtx, addr, "http://localhost"+addr)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or sse)", opts.Transport)
	}
}
