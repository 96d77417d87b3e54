package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDialogueState_AppendAssignsPositions(t *testing.T) {
	s := NewDialogueState("s")
	a := s.Append(RoleUser, "", "uno")
	b := s.Append(RoleHandler, "StoryGuider", "dos")

	if a.Position != 0 || b.Position != 1 {
		t.Fatalf("positions = %d,%d, want 0,1", a.Position, b.Position)
	}
	last, ok := s.Last()
	if !ok || last.Content != "dos" {
		t.Errorf("Last() = %v,%v, want dos", last, ok)
	}
}

func TestDialogueState_HistoryIsACopy(t *testing.T) {
	s := NewDialogueState("s")
	s.Append(RoleUser, "", "uno")

	h := s.History()
	h[0].Content = "mutated"

	if s.Messages[0].Content != "uno" {
		t.Errorf("History() leaked internal slice, got %q", s.Messages[0].Content)
	}

	snap := s.Snapshot()
	snap.Append(RoleUser, "", "dos")
	if s.Len() != 1 {
		t.Errorf("Snapshot() shares storage with original, len = %d", s.Len())
	}
}

func TestDialogueState_NilSafe(t *testing.T) {
	var s *DialogueState
	if s.Len() != 0 {
		t.Error("nil state should have zero length")
	}
	if _, ok := s.Last(); ok {
		t.Error("nil state should have no last message")
	}
	if s.Snapshot() != nil {
		t.Error("nil state snapshot should be nil")
	}
}

func TestRemoteError_Unwrap(t *testing.T) {
	cause := errors.New("429 Too Many Requests")
	err := fmt.Errorf("classify: %w", NewRemoteError(RemoteRateLimit, cause))

	if !errors.Is(err, ErrRemoteService) {
		t.Error("expected ErrRemoteService in chain")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be preserved")
	}
	if errors.Is(err, ErrClassificationSchema) {
		t.Error("rate limit must not be reported as schema error")
	}

	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Kind != RemoteRateLimit {
		t.Errorf("errors.As() = %v, want kind rate_limit", remote)
	}

	schema := NewRemoteError(RemoteSchema, errors.New("bad json"))
	if !errors.Is(schema, ErrClassificationSchema) {
		t.Error("schema remote error should match ErrClassificationSchema")
	}
}

func TestRunResult_Text(t *testing.T) {
	ok := RunResult{Output: "érase una vez"}
	if !ok.OK() || ok.Text() != "érase una vez" {
		t.Errorf("unexpected success result: %+v", ok)
	}

	failed := Failed(nil, ErrUnknownHandler, PhaseStart, PhaseClassifying, PhaseTerminal)
	if failed.OK() || failed.Text() != ErrUnknownHandler.Error() {
		t.Errorf("unexpected failed result: %+v", failed)
	}
	if len(failed.Trace) != 3 {
		t.Errorf("trace = %v, want 3 phases", failed.Trace)
	}
}
