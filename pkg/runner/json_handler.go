package runner

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// Event is one JSON line emitted by JSONHandler.
type Event struct {
	Type    string         `json:"type"`
	Handler string         `json:"handler,omitempty"`
	Output  string         `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
	Text    string         `json:"text,omitempty"`
	Name    string         `json:"name,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
}

// Event types.
const (
	EventReply  = "reply"
	EventSystem = "system"
	EventSignal = "signal"
)

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
// Each input line is a JSON string, an object with a "text" field, or plain text.
type JSONHandler struct {
	input   *linePump
	mu      sync.Mutex
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		input:   newLinePump(r),
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	text, err := h.input.next(ctx)
	if err != nil {
		return "", err
	}

	// Try to unquote if it's a JSON string
	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		return strings.TrimSpace(val), nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &obj); err == nil {
			return strings.TrimSpace(obj.Text), nil
		}
	}

	// Fallback: return raw text (e.g. if they just sent plain text)
	return text, nil
}

func (h *JSONHandler) Reply(ctx context.Context, res domain.RunResult) error {
	ev := Event{Type: EventReply, Handler: res.Handler, Output: res.Output}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	return h.emit(ev)
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.emit(Event{Type: EventSystem, Text: msg})
}

func (h *JSONHandler) Signal(ctx context.Context, name string, args map[string]any) error {
	return h.emit(Event{Type: EventSignal, Name: name, Args: args})
}

func (h *JSONHandler) emit(ev Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(ev)
}
