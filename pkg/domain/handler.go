package domain

// HandlerDescriptor describes a routable handler.
// The description feeds the classifier instructions.
type HandlerDescriptor struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// ClassificationResult is the classifier's selection.
// Handler is one value of the classifier's enumerated domain; Raw keeps the
// unparsed backend output for auditing.
type ClassificationResult struct {
	Handler string `json:"agent"`
	Raw     string `json:"-"`
}

// Phase is a state of the per-turn routing graph.
type Phase string

const (
	PhaseStart       Phase = "start"
	PhaseClassifying Phase = "classifying"
	PhaseDispatching Phase = "dispatching"
	PhaseTerminal    Phase = "terminal"
)
