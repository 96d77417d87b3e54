package domain

// HistoryDelta represents the messages appended between two snapshots of a session.
// It is designed to be serialized to JSON for partial updates on the client.
type HistoryDelta struct {
	SessionID string    `json:"session_id"`
	From      int       `json:"from"`
	Appended  []Message `json:"appended"`
}

// Diff calculates the messages appended to newState since oldState.
// If oldState is nil, the whole history of newState is returned (initial load).
// It returns nil when nothing was appended or when the histories diverge,
// since the timeline is append-only and a divergent prefix cannot be expressed as a delta.
func Diff(oldState, newState *DialogueState) *HistoryDelta {
	if newState == nil || newState.Len() == 0 {
		return nil
	}

	from := 0
	if oldState != nil {
		from = oldState.Len()
		if from >= newState.Len() {
			return nil
		}
		for i := 0; i < from; i++ {
			if !samePrefix(oldState.Messages[i], newState.Messages[i]) {
				return nil
			}
		}
	}

	return &HistoryDelta{
		SessionID: newState.SessionID,
		From:      from,
		Appended:  newState.Since(from),
	}
}

func samePrefix(a, b Message) bool {
	return a.Role == b.Role &&
		a.Handler == b.Handler &&
		a.Content == b.Content &&
		a.Position == b.Position
}

// IsEmpty checks if the delta contains any appended message.
func (d *HistoryDelta) IsEmpty() bool {
	return d == nil || len(d.Appended) == 0
}
