package runner_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/testutils"
	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrchestrator(t *testing.T, classify testutils.ClassifyFunc) (*parley.Orchestrator, *testutils.Narrative) {
	t.Helper()
	n := testutils.NewNarrative(t, classify)
	o, err := parley.New(n.Registry)
	require.NoError(t, err)
	return o, n
}

func TestRunner_GreetingAndExit(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	out := &bytes.Buffer{}
	handler := runner.NewTextHandler(strings.NewReader("Ana\ncuéntame una historia\n/EXIT\nnunca leído\n"), out,
		runner.WithTextHandlerAssistant("CthulhuAssistant"))

	r := runner.NewRunner(
		runner.WithOrchestrator(o),
		runner.WithInputHandler(handler),
		runner.WithGreeting(runner.DefaultGreeting),
	)
	require.NoError(t, r.Run(context.Background()))

	output := out.String()
	assert.Contains(t, output, "CthulhuAssistant: ¿Cómo quieres que te llame?")
	assert.Contains(t, output, "¡Hola Ana! Soy tu asistente de Cthulhu Dark.")
	assert.Contains(t, output, `"/exit"`)
	assert.Contains(t, output, "Ana: ")
	assert.Contains(t, output, "CthulhuAssistant (StoryTeller): "+n.StoryTeller.Reply)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(output), "¡Hasta pronto! 👋"))

	assert.Equal(t, int32(1), n.Classifier.Calls.Load(), "/exit is never routed")
}

func TestRunner_EOFEndsLoopAndKeepsHistory(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryGuider))
	out := &bytes.Buffer{}

	r := runner.NewRunner(
		runner.WithOrchestrator(o),
		runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("uno\n\n   \ndos"), out)),
	)
	require.NoError(t, r.Run(context.Background()))

	history, err := r.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 6, "blank lines are not turns")
	assert.Equal(t, "dos", history[3].Content)
	assert.Equal(t, int32(5), n.StoryGuider.Seen.Load())
	assert.Contains(t, out.String(), "[StoryGuider] "+n.StoryGuider.Reply)
}

func TestRunner_PersistsThroughSessions(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.CharacterMaker))
	store := memory.NewStore()
	manager := session.NewManager(store)

	run := func(input string) {
		r := runner.NewRunner(
			runner.WithOrchestrator(o),
			runner.WithSessions(manager),
			runner.WithSessionID("mesa-1"),
			runner.WithInputHandler(runner.NewTextHandler(strings.NewReader(input), &bytes.Buffer{})),
		)
		require.NoError(t, r.Run(context.Background()))
	}

	run("crea un investigador\n")
	run("dale una profesión\n")

	state, err := store.Load(context.Background(), "mesa-1")
	require.NoError(t, err)
	assert.Equal(t, 6, state.Len(), "the second run resumes the session")
	assert.Equal(t, int32(5), n.CharacterMaker.Seen.Load())
}

func TestRunner_RoutingFailureIsPresented(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	n.StoryTeller.Err = errors.New("model overloaded")
	out := &bytes.Buffer{}

	r := runner.NewRunner(
		runner.WithOrchestrator(o),
		runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("uno\ndos\n"), out)),
	)
	require.NoError(t, r.Run(context.Background()), "routing failures do not end the chat")

	assert.Equal(t, 2, strings.Count(out.String(), "Error:"))
	assert.Contains(t, out.String(), "model overloaded")
}

func TestRunner_Commands(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	out := &bytes.Buffer{}
	handler := runner.NewTextHandler(strings.NewReader("/handlers\nhola\n/history\n/salir\n"), out)

	r := runner.NewRunner(
		runner.WithOrchestrator(o),
		runner.WithInputHandler(handler),
		runner.WithInterceptor(runner.HandlersCommand(handler, o.Handlers)),
		runner.WithExitCommands("/salir"),
	)
	require.NoError(t, r.Run(context.Background()))

	output := out.String()
	assert.Contains(t, output, "- CharacterMaker: Agent to help players create characters")
	assert.Contains(t, output, "0. user: hola")
	assert.Contains(t, output, "1. Router: ")
	assert.Contains(t, output, "2. StoryTeller: ")
	assert.Equal(t, int32(1), n.Classifier.Calls.Load())
}

func TestRunner_InputTooLarge(t *testing.T) {
	t.Setenv(runner.EnvMaxInputSize, "8")
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	out := &bytes.Buffer{}

	r := runner.NewRunner(
		runner.WithOrchestrator(o),
		runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("demasiado largo\nok\n"), out)),
	)
	require.NoError(t, r.Run(context.Background()))

	assert.Contains(t, out.String(), "Please try again")
	assert.Equal(t, int32(1), n.Classifier.Calls.Load())
}

func TestRunner_CancelledContext(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := &bytes.Buffer{}
	r := runner.NewRunner(
		runner.WithOrchestrator(o),
		runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("hola\n"), out)),
		runner.WithGreeting(runner.Greeting{Farewell: "adiós"}),
	)
	require.NoError(t, r.Run(ctx))
	assert.Contains(t, out.String(), "adiós")
	assert.Zero(t, n.Classifier.Calls.Load())
}

func TestRunner_RequiresOrchestrator(t *testing.T) {
	assert.Error(t, runner.NewRunner().Run(context.Background()))
}

func TestRunner_JSONHandler(t *testing.T) {
	o, n := newOrchestrator(t, testutils.Always(testutils.StoryGuider))
	out := &bytes.Buffer{}
	in := strings.NewReader("\"hola\"\n{\"text\":\"¿y ahora?\"}\ntexto plano\n")

	r := runner.NewRunner(
		runner.WithOrchestrator(o),
		runner.WithInputHandler(runner.NewJSONHandler(in, out)),
	)
	require.NoError(t, r.Run(context.Background()))

	var replies []runner.Event
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var ev runner.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		if ev.Type == runner.EventReply {
			replies = append(replies, ev)
		}
	}
	require.Len(t, replies, 3)
	assert.Equal(t, testutils.StoryGuider, replies[0].Handler)
	assert.Equal(t, n.StoryGuider.Reply, replies[2].Output)

	history, err := r.History(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "¿y ahora?", history[3].Content)
	assert.Equal(t, "texto plano", history[6].Content)
}

func TestRunAndDiff(t *testing.T) {
	o, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	rich, err := runner.RunAndDiff(ctx, o, nil, "ignored", "hola")
	require.NoError(t, err)
	assert.Equal(t, 3, rich.Result.State.Len())
	assert.NotEqual(t, "ignored", rich.Result.State.SessionID, "without sessions the turn is ephemeral")

	_, err = runner.RunAndDiff(ctx, o, manager, "s1", "primero")
	require.NoError(t, err)
	rich, err = runner.RunAndDiff(ctx, o, manager, "s1", "segundo")
	require.NoError(t, err)

	require.NotNil(t, rich.Delta)
	assert.Equal(t, "s1", rich.Delta.SessionID)
	assert.Equal(t, 3, rich.Delta.From)
	require.Len(t, rich.Delta.Appended, 3)
	assert.Equal(t, "segundo", rich.Delta.Appended[0].Content)

	rich, err = runner.RunAndDiff(ctx, o, manager, "s1", "  ")
	require.NoError(t, err)
	assert.Error(t, rich.Result.Err)
	assert.Nil(t, rich.Delta)
}
