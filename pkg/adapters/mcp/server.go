// Package mcp exposes the orchestrator as a Model Context Protocol server,
// so MCP clients can route utterances through the registered handlers.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/aretw0/parley/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// HandlersURI is the resource listing the registered handlers.
const HandlersURI = "parley://handlers"

// QueryResponse is the structured result of the query tool.
type QueryResponse struct {
	SessionID string `json:"session_id,omitempty" jsonschema_description:"Session the turn was recorded in"`
	Handler   string `json:"handler,omitempty" jsonschema_description:"Handler selected by the classifier"`
	Output    string `json:"output" jsonschema_description:"Text produced by the handler"`
	Error     string `json:"error,omitempty" jsonschema_description:"Routing failure, if any"`
	Messages  int    `json:"messages" jsonschema_description:"History length after the turn"`
}

// Orchestrator is the subset of *parley.Orchestrator used by the server.
type Orchestrator interface {
	session.TurnRunner
	Handlers() []domain.HandlerDescriptor
}

// Server wraps the orchestrator and exposes it as an MCP Server.
type Server struct {
	orchestrator Orchestrator
	sessions     *session.Manager
	mcpServer    *server.MCPServer
	logger       *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSessions threads session_id arguments through the session manager.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) {
		s.sessions = m
	}
}

// WithLogger sets the server logger. It must not write to stdout when serving stdio.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(o Orchestrator, opts ...Option) *Server {
	s := &Server{
		orchestrator: o,
		mcpServer:    server.NewMCPServer("parley-mcp", strings.TrimSpace(parley.Version)),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	// TOOL: query
	queryTool := mcp.NewTool("query",
		mcp.WithDescription("Route a user message to the most suitable handler and return its response."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user utterance")),
		mcp.WithString("session_id", mcp.Description("Session to thread history through (optional; omitted means a one-off turn)")),
		mcp.WithOutputSchema[QueryResponse](),
	)
	s.mcpServer.AddTool(queryTool, mcp.NewStructuredToolHandler(s.handleQuery))

	// TOOL: list_handlers
	s.mcpServer.AddTool(mcp.NewTool("list_handlers",
		mcp.WithDescription("List the handlers the classifier can route to."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := json.Marshal(s.orchestrator.Handlers())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode handlers: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (QueryResponse, error) {
	message, _ := args["message"].(string)
	sessionID, _ := args["session_id"].(string)

	clean, err := runner.SanitizeInput(message)
	if err != nil {
		s.logger.Warn("MCP Query: Input rejected", "err", err, "size", len(message))
		return QueryResponse{}, fmt.Errorf("input rejected: %w", err)
	}

	if s.sessions == nil {
		sessionID = ""
	}
	rich, err := runner.RunAndDiff(ctx, s.orchestrator, s.sessions, sessionID, clean)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("session turn failed: %w", err)
	}
	res := rich.Result

	resp := QueryResponse{
		SessionID: sessionID,
		Handler:   res.Handler,
		Output:    res.Output,
		Messages:  res.State.Len(),
	}
	if res.Err != nil {
		s.logger.Warn("MCP Query: Turn failed", "session_id", sessionID, "err", res.Err)
		resp.Error = res.Err.Error()
	}
	return resp, nil
}

func (s *Server) registerResources() {
	// EXPOSE: parley://handlers
	s.mcpServer.AddResource(mcp.NewResource(HandlersURI, "Registered Handlers",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.orchestrator.Handlers())
		if err != nil {
			return nil, fmt.Errorf("failed to encode handlers: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      HandlersURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
