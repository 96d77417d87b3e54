package runner

import (
	"context"
	"errors"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
	"github.com/google/uuid"
)

// RichResponse combines the turn result with the history delta it produced,
// for rich clients (Web, MCP, streaming subscribers).
type RichResponse struct {
	Result domain.RunResult
	// Delta holds the messages appended by this turn. Nil when nothing was appended.
	Delta *domain.HistoryDelta
}

// RunAndDiff runs one turn for text. With a session manager and a non-empty sessionID
// the turn is threaded through the persisted session; otherwise it runs on a fresh
// ephemeral state that holds only this utterance.
//
// The error is reserved for session infrastructure failures.
func RunAndDiff(ctx context.Context, orchestrator session.TurnRunner, sessions *session.Manager, sessionID, text string) (*RichResponse, error) {
	if orchestrator == nil {
		return nil, errors.New("runner: orchestrator is required")
	}

	var res domain.RunResult
	if sessionID != "" && sessions != nil {
		var err error
		res, err = sessions.RunTurn(ctx, orchestrator, sessionID, text)
		if err != nil {
			return nil, err
		}
	} else {
		res = orchestrator.RunTurn(ctx, domain.NewDialogueState(uuid.NewString()), text)
	}

	return &RichResponse{Result: res, Delta: turnDelta(res.State)}, nil
}

// turnDelta returns the messages from the last user message onwards. Turns on a
// session are serialized, so the last user message always opens the latest turn.
func turnDelta(state *domain.DialogueState) *domain.HistoryDelta {
	for i := state.Len() - 1; i >= 0; i-- {
		if state.Messages[i].Role == domain.RoleUser {
			return &domain.HistoryDelta{
				SessionID: state.SessionID,
				From:      i,
				Appended:  state.Since(i),
			}
		}
	}
	return nil
}
