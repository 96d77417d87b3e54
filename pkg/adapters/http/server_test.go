package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/testutils"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ratelimit"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "s3cret"

func newOrchestrator(t *testing.T, classify testutils.ClassifyFunc) (*parley.Orchestrator, *testutils.Narrative) {
	t.Helper()
	n := testutils.NewNarrative(t, classify)
	o, err := parley.New(n.Registry)
	require.NoError(t, err)
	return o, n
}

func post(t *testing.T, h http.Handler, body any, key string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func userQuery(text string) map[string]any {
	return map[string]any{"messages": []map[string]any{{"role": "user", "content": text}}}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth_IsPublic(t *testing.T) {
	o, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	h := NewHandler(o, WithAPIKey(testKey))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestQuery_RequiresAPIKey(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	h := NewHandler(o, WithAPIKey(testKey))

	w := post(t, h, userQuery("hola"), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = post(t, h, userQuery("hola"), "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, n.Classifier.Calls.Load(), "unauthenticated requests never reach the classifier")

	w = post(t, h, userQuery("hola"), testKey)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuery_EphemeralTurn(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryGuider))
	h := NewHandler(o)

	body := map[string]any{"messages": []map[string]any{
		{"role": "user", "content": "primera pregunta"},
		{"role": "assistant", "content": "respuesta"},
		{"type": "USER", "content": "  ¿qué hago ahora?  "},
		{"role": "assistant", "content": "pending"},
	}}
	w := post(t, h, body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[QueryResponse](t, w)
	assert.Equal(t, testutils.StoryGuider, resp.Handler)
	assert.Equal(t, n.StoryGuider.Reply, resp.Output)
	assert.Empty(t, resp.Error)
	require.Len(t, resp.Messages, 3, "the ephemeral state holds only the last user message plus the turn")
	assert.Equal(t, "¿qué hago ahora?", resp.Messages[0].Content)
	assert.Equal(t, "Router", resp.Messages[1].Handler)
}

func TestQuery_NoUserMessage(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	h := NewHandler(o)

	tests := []struct {
		name string
		body any
	}{
		{"empty list", map[string]any{"messages": []any{}}},
		{"only assistant", map[string]any{"messages": []map[string]any{{"role": "assistant", "content": "hi"}}}},
		{"blank user", userQuery("   ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h, tt.body, "")
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.JSONEq(t, `{"error":"No user message found"}`, w.Body.String())
		})
	}
	assert.Zero(t, n.Classifier.Calls.Load())
}

func TestQuery_InvalidBody(t *testing.T) {
	o, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	NewHandler(o).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLastUserText_ContentParts(t *testing.T) {
	msgs := []QueryMessage{
		{Role: "user", Content: json.RawMessage(`[{"type":"text","text":"crea"},{"type":"image"},{"type":"text","text":"un personaje"}]`)},
	}
	assert.Equal(t, "crea\nun personaje", LastUserText(msgs))
	assert.Equal(t, "", LastUserText(nil))
}

func TestQuery_RateLimited(t *testing.T) {
	o, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	limiter := ratelimit.NewMemory(ratelimit.Limit{Requests: 2, Window: time.Minute})
	h := NewHandler(o, WithRateLimiter(limiter))

	for i := 0; i < 2; i++ {
		w := post(t, h, userQuery("hola"), "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := post(t, h, userQuery("hola"), "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Other routes are not limited.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/handlers", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestQuery_LimiterFailureFailsOpen(t *testing.T) {
	o, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	w := post(t, NewHandler(o, WithRateLimiter(brokenLimiter{})), userQuery("hola"), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuery_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(n *testutils.Narrative)
		cls    testutils.ClassifyFunc
		status int
		errIs  error
	}{
		{
			name:   "handler failure",
			cls:    testutils.Always(testutils.StoryTeller),
			setup:  func(n *testutils.Narrative) { n.StoryTeller.Err = errors.New("boom") },
			status: http.StatusInternalServerError,
		},
		{
			name: "remote rate limit",
			cls: func(ctx context.Context, history []domain.Message) (domain.ClassificationResult, error) {
				return domain.ClassificationResult{}, domain.NewRemoteError(domain.RemoteRateLimit, errors.New("429"))
			},
			status: http.StatusTooManyRequests,
		},
		{
			name: "schema violation",
			cls: func(ctx context.Context, history []domain.Message) (domain.ClassificationResult, error) {
				return domain.ClassificationResult{Raw: "garbage"}, domain.ErrClassificationSchema
			},
			status: http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, n := newOrchestrator(t, tt.cls)
			if tt.setup != nil {
				tt.setup(n)
			}
			w := post(t, NewHandler(o), userQuery("hola"), "")
			assert.Equal(t, tt.status, w.Code)
			resp := decode[QueryResponse](t, w)
			assert.NotEmpty(t, resp.Error)
			assert.Empty(t, resp.Output)
		})
	}
}

func TestSessions_ThreadHistory(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.CharacterMaker))
	h := NewHandler(o, WithSessions(session.NewManager(memory.NewStore())))

	body := userQuery("quiero un personaje")
	body["session_id"] = "mesa-1"

	w := post(t, h, body, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = post(t, h, body, "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[QueryResponse](t, w)
	assert.Equal(t, "mesa-1", resp.SessionID)
	assert.Len(t, resp.Messages, 6)
	assert.Equal(t, int32(5), n.CharacterMaker.Seen.Load(), "the second turn sees the first one")

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	assert.JSONEq(t, `{"sessions":["mesa-1"]}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/mesa-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	state := decode[domain.DialogueState](t, w)
	assert.Equal(t, 6, state.Len())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/sessions/mesa-1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/mesa-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/sessions/mesa-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "deleting an unknown session")
}

func TestSessions_RoutesDisabledWithoutManager(t *testing.T) {
	o, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	w := httptest.NewRecorder()
	NewHandler(o).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListHandlers(t *testing.T) {
	o, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	w := httptest.NewRecorder()
	NewHandler(o).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/handlers", nil))

	require.Equal(t, http.StatusOK, w.Code)
	descs := decode[[]domain.HandlerDescriptor](t, w)
	require.Len(t, descs, 3)
	assert.Equal(t, testutils.StoryTeller, descs[0].Name)
}

func TestCORS_Preflight(t *testing.T) {
	o, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	w := httptest.NewRecorder()
	NewHandler(o, WithAPIKey(testKey)).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/query", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), APIKeyHeader)
}

func TestSubscribeEvents_Session(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	srv := NewServer(o, WithSessions(session.NewManager(memory.NewStore())))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Subscribe
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events?session_id=sess-1", nil)
	require.NoError(t, err)
	sub, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer sub.Body.Close()
	assert.Equal(t, "text/event-stream", sub.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return srv.Streams.Subscribers("sess-1") == 1 },
		time.Second, 10*time.Millisecond, "subscription should register")

	// 2. Run a turn on the session
	body := userQuery("cuéntame algo")
	body["session_id"] = "sess-1"
	raw, _ := json.Marshal(body)
	resp, err := ts.Client().Post(ts.URL+"/api/query", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 3. Read the delta
	var delta domain.HistoryDelta
	scanner := bufio.NewScanner(sub.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok && data != "connected" {
			require.NoError(t, json.Unmarshal([]byte(data), &delta))
			break
		}
	}

	assert.Equal(t, "sess-1", delta.SessionID)
	assert.Equal(t, 0, delta.From)
	require.Len(t, delta.Appended, 3)
	assert.Equal(t, n.StoryTeller.Reply, delta.Appended[2].Content)
}

func TestSubscribeEvents_RequiresSession(t *testing.T) {
	o, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	w := httptest.NewRecorder()
	h := NewHandler(o, WithSessions(session.NewManager(memory.NewStore())))
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamManager_DropsWhenFull(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("s")
	for i := 0; i < 20; i++ {
		sm.Broadcast("s", "x")
	}
	assert.Len(t, ch, 10)

	cancel()
	cancel()
	assert.Zero(t, sm.Subscribers("s"))
}
