package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// ContentRenderer transforms handler output before it is printed (e.g. markdown to ANSI).
type ContentRenderer func(string) (string, error)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	input    *linePump
	Writer   io.Writer
	Renderer ContentRenderer

	// Assistant labels system and handler output. Empty prints bare text.
	Assistant string
	// Prompt is printed before each read.
	Prompt string
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithTextHandlerAssistant sets the label printed before assistant output.
func WithTextHandlerAssistant(name string) TextHandlerOption {
	return func(h *TextHandler) {
		h.Assistant = name
	}
}

// NewTextHandler creates a handler for standard text IO.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		input:  newLinePump(r),
		Writer: w,
		Prompt: "> ",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetUserName labels the prompt with the user's name.
func (h *TextHandler) SetUserName(name string) {
	h.Prompt = name + ": "
}

func (h *TextHandler) Input(ctx context.Context) (string, error) {
	// Only show prompt if context is not yet done
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	fmt.Fprint(h.Writer, h.Prompt)
	return h.input.next(ctx)
}

func (h *TextHandler) Reply(ctx context.Context, res domain.RunResult) error {
	if !res.OK() {
		fmt.Fprintf(h.Writer, "\n%sError: %v\n\n", h.label(""), res.Err)
		return nil
	}

	output := res.Output
	if h.Renderer != nil {
		if rendered, err := h.Renderer(output); err == nil {
			output = rendered
		}
	}
	fmt.Fprintf(h.Writer, "\n%s%s\n\n", h.label(res.Handler), strings.TrimSpace(output))
	return nil
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	if h.Assistant == "" {
		fmt.Fprintf(h.Writer, "\n[System] %s\n", msg)
		return nil
	}
	fmt.Fprintf(h.Writer, "%s%s\n", h.label(""), msg)
	return nil
}

func (h *TextHandler) Signal(ctx context.Context, name string, args map[string]any) error {
	return nil
}

func (h *TextHandler) label(handler string) string {
	switch {
	case h.Assistant == "" && handler == "":
		return ""
	case h.Assistant == "":
		return "[" + handler + "] "
	case handler == "":
		return h.Assistant + ": "
	default:
		return fmt.Sprintf("%s (%s): ", h.Assistant, handler)
	}
}
