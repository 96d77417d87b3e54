package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ratelimit"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/aretw0/parley/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIKeyHeader carries the shared secret on /api routes.
const APIKeyHeader = "X-API-Key"

// maxBodyBytes bounds the /api/query payload; message lists are small.
const maxBodyBytes = 1 << 20

// Orchestrator is the subset of *parley.Orchestrator used by the server.
type Orchestrator interface {
	session.TurnRunner
	Handlers() []domain.HandlerDescriptor
}

var _ Orchestrator = (*parley.Orchestrator)(nil)

// Server exposes the orchestrator over HTTP.
type Server struct {
	orchestrator Orchestrator
	sessions     *session.Manager
	limiter      ratelimit.Limiter
	apiKey       string
	metrics      http.Handler
	logger       *slog.Logger
	Streams      *StreamManager
}

// Option configures the Server.
type Option func(*Server)

// WithAPIKey requires the X-API-Key header on /api routes. Empty disables auth.
func WithAPIKey(key string) Option {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithRateLimiter limits POST /api/query per client address.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithSessions enables session_id threading and the /api/sessions routes.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) {
		s.sessions = m
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler replaces the default promhttp handler served on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewServer builds a Server around the orchestrator.
func NewServer(o Orchestrator, opts ...Option) *Server {
	s := &Server{
		orchestrator: o,
		metrics:      promhttp.Handler(),
		logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Streams:      NewStreamManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger
	return s
}

// NewHandler is a shortcut for NewServer(o, opts...).Handler().
func NewHandler(o Orchestrator, opts ...Option) http.Handler {
	return NewServer(o, opts...).Handler()
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.With(s.rateLimit("query")).Post("/query", s.Query)
		r.Get("/handlers", s.ListHandlers)
		r.Get("/info", s.GetInfo)

		if s.sessions != nil {
			r.Get("/sessions", s.ListSessions)
			r.Get("/sessions/{id}", s.GetSession)
			r.Delete("/sessions/{id}", s.DeleteSession)
			r.Get("/events", s.SubscribeEvents)
		}
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+APIKeyHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get(APIKeyHeader) != s.apiKey {
			writeError(w, http.StatusUnauthorized, "Invalid or missing API Key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			d, err := s.limiter.Allow(r.Context(), route+":"+clientKey(r))
			if err != nil {
				// Fail open: a limiter outage must not take the API down.
				s.logger.Warn("rate limiter unavailable", "route", route, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// QueryMessage is one entry of the client-supplied message list.
// Either Role or Type identifies the speaker; Content is a string or a list of text parts.
type QueryMessage struct {
	Role    string          `json:"role,omitempty"`
	Type    string          `json:"type,omitempty"`
	Content json.RawMessage `json:"content"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Messages  []QueryMessage `json:"messages"`
	SessionID string         `json:"session_id,omitempty"`
}

// QueryResponse is the terminal result of the turn.
type QueryResponse struct {
	SessionID string           `json:"session_id,omitempty"`
	Output    string           `json:"output"`
	Handler   string           `json:"handler,omitempty"`
	Error     string           `json:"error,omitempty"`
	Messages  []domain.Message `json:"messages"`
}

// Query handles POST /api/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	text := LastUserText(req.Messages)
	if text == "" {
		writeError(w, http.StatusUnprocessableEntity, "No user message found")
		return
	}

	clean, err := runner.SanitizeInput(text)
	if err != nil {
		s.logger.Warn("Query: input rejected", "err", err, "size", len(text))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := req.SessionID
	if s.sessions == nil {
		sessionID = ""
	}
	rich, err := runner.RunAndDiff(r.Context(), s.orchestrator, s.sessions, sessionID, clean)
	if err != nil {
		s.logger.Error("Query: session turn failed", "session_id", sessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "Session storage unavailable")
		return
	}
	if sessionID != "" {
		s.broadcast(rich.Delta)
	}
	res := rich.Result

	resp := QueryResponse{
		Output:   res.Output,
		Handler:  res.Handler,
		Messages: []domain.Message{},
	}
	if res.State != nil {
		resp.SessionID = sessionID
		resp.Messages = res.State.History()
	}
	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		status = statusFor(res.Err)
	}
	writeJSON(w, status, resp)
}

// LastUserText returns the trimmed text of the last message whose role (or type) is "user".
func LastUserText(msgs []QueryMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		role := m.Role
		if role == "" {
			role = m.Type
		}
		if strings.EqualFold(role, "user") || strings.EqualFold(role, "human") {
			return strings.TrimSpace(contentText(m.Content))
		}
	}
	return ""
}

func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		}
		return b.String()
	}
	return string(raw)
}

// statusFor maps a routing failure to an HTTP status.
func statusFor(err error) int {
	var remote *domain.RemoteError
	switch {
	case errors.Is(err, domain.ErrEmptyTurn):
		return http.StatusUnprocessableEntity
	case errors.As(err, &remote) && remote.Kind == domain.RemoteRateLimit:
		return http.StatusTooManyRequests
	case errors.As(err, &remote) && remote.Kind == domain.RemoteTimeout,
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrRemoteService), errors.Is(err, domain.ErrClassificationSchema):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) broadcast(delta *domain.HistoryDelta) {
	if delta.IsEmpty() {
		return
	}
	bytes, err := json.Marshal(delta)
	if err != nil {
		s.logger.Error("failed to encode history delta", "err", err)
		return
	}
	s.Streams.Broadcast(delta.SessionID, string(bytes))
}

// ListHandlers handles GET /api/handlers.
func (s *Server) ListHandlers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orchestrator.Handlers())
}

// ListSessions handles GET /api/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.sessions.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list sessions", "err", err)
		writeError(w, http.StatusInternalServerError, "Session storage unavailable")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// GetSession handles GET /api/sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	state, err := s.sessions.Load(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load session", "err", err)
		writeError(w, http.StatusInternalServerError, "Session storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// DeleteSession handles DELETE /api/sessions/{id}.
// Unknown sessions are reported as 404; the stores themselves delete idempotently.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Load(r.Context(), id); errors.Is(err, domain.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.logger.Error("failed to delete session", "err", err)
		writeError(w, http.StatusInternalServerError, "Session storage unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /api/info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  strings.TrimSpace(parley.Version),
		"handlers": len(s.orchestrator.Handlers()),
		"sessions": s.sessions != nil,
		"time":     time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
