package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// Overlay marks the handlers a session has reached.
type Overlay struct {
	// Visits counts dispatches per handler name.
	Visits map[string]int
	// Current is the handler that answered last.
	Current string
}

// OverlayFromState derives an Overlay from a session history.
// The classifier's own records are skipped.
func OverlayFromState(state *domain.DialogueState, classifierName string) *Overlay {
	o := &Overlay{Visits: map[string]int{}}
	if state == nil {
		return o
	}
	for _, m := range state.Messages {
		if m.Role != domain.RoleHandler || m.Handler == "" || m.Handler == classifierName {
			continue
		}
		o.Visits[m.Handler]++
		o.Current = m.Handler
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart of one turn:
// the user message enters the classifier, which fans out to every handler.
// Shapes:
// - User: ((Circle))
// - Classifier: {{Hexagon}}
// - Handler: [Rectangle]
// Handlers the classifier can never select are drawn with a dotted edge.
func GenerateMermaid(classifierName string, handlers []domain.HandlerDescriptor, unreachable []string, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	router := sanitizeMermaidID(classifierName)
	sb.WriteString("    user((\"user\"))\n")
	sb.WriteString(fmt.Sprintf("    %s{{\"%s\"}}\n", router, escapeLabel(classifierName)))
	sb.WriteString(fmt.Sprintf("    user --> %s\n", router))

	dead := make(map[string]bool, len(unreachable))
	for _, name := range unreachable {
		dead[name] = true
	}

	for _, h := range handlers {
		id := sanitizeMermaidID(h.Name)
		label := escapeLabel(h.Name)
		if overlay != nil && overlay.Visits[h.Name] > 0 {
			label = fmt.Sprintf("%s <br/> %d turn(s)", label, overlay.Visits[h.Name])
		}
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", id, label))

		arrow := fmt.Sprintf("-- \"%s\" -->", escapeLabel(h.Description))
		if h.Description == "" {
			arrow = "-->"
		}
		if dead[h.Name] {
			arrow = "-.->"
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", router, arrow, id))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		for _, h := range handlers {
			if overlay.Visits[h.Name] > 0 && h.Name != overlay.Current {
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", sanitizeMermaidID(h.Name)))
			}
		}
		if overlay.Current != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.Current)))
		}
	}

	return sb.String()
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
