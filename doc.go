/*
Package parley is a conversational orchestrator that routes every user utterance to
exactly one specialized handler.

Each turn runs a small, deterministic state machine:

	Start -> Classifying -> Dispatching(handler) -> Terminal(output|error)

A classifier reads the dialogue history and names a handler from a closed set. The
chosen handler produces the reply. Both the classifier's decision and the reply are
appended to an append-only DialogueState, which is the only thing that survives between
turns. The orchestrator itself keeps no per-session data, so one instance can serve
many sessions concurrently.

# Concept

parley separates the routing core (Registry, Graph) from the capabilities behind it
(LLM backends, fakes) and from the way turns arrive (CLI, HTTP, MCP). Persistence and
per-session serialization live in pkg/session, which is optional for single-shot callers.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/parley"
		"github.com/aretw0/parley/pkg/domain"
		"github.com/aretw0/parley/pkg/registry"
	)

	func main() {
		reg, err := registry.New(myClassifier, []registry.Entry{
			{HandlerDescriptor: domain.HandlerDescriptor{Name: "StoryTeller"}, Handler: teller},
			{HandlerDescriptor: domain.HandlerDescriptor{Name: "StoryGuider"}, Handler: guider},
		})
		if err != nil {
			log.Fatal(err)
		}

		orch, err := parley.New(reg)
		if err != nil {
			log.Fatal(err)
		}

		state := domain.NewDialogueState("session-123")
		res := orch.RunTurn(context.Background(), state, "help me decide what to do")
		if res.Err != nil {
			log.Printf("turn failed: %v", res.Err)
			return
		}
		fmt.Printf("[%s] %s\n", res.Handler, res.Output)
	}
*/
package parley
