package domain

// RunResult is the terminal outcome of a turn.
// Success and failure share this shape so presentation layers need a single code path.
type RunResult struct {
	// Output is the text produced by the dispatched handler (empty on error).
	Output string `json:"output"`

	// Handler is the name of the handler the turn was dispatched to, if any.
	Handler string `json:"handler,omitempty"`

	// Err is set when the turn ended in Terminal(error).
	Err error `json:"-"`

	// State is the dialogue history after the turn.
	State *DialogueState `json:"state,omitempty"`

	// Trace lists the phases visited, in order.
	Trace []Phase `json:"trace,omitempty"`
}

// OK reports whether the turn ended in Terminal(output).
func (r RunResult) OK() bool {
	return r.Err == nil
}

// Text returns the output, or the error message for failed turns.
func (r RunResult) Text() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return r.Output
}

// Failed builds an error result.
func Failed(state *DialogueState, err error, trace ...Phase) RunResult {
	return RunResult{Err: err, State: state, Trace: trace}
}
