/*
Package runner implements the interactive chat loop and the input plumbing shared by
the Parley presentation layers.

It is the bridge between a user (terminal, JSON pipe, HTTP or MCP client) and the
orchestrator: it reads utterances, sanitizes them, runs one turn per utterance
through the session manager and presents the terminal result.

# Key Components

  - Runner: the read-route-reply loop, with greeting, slash commands and Ctrl+C handling.
  - IOHandler: decouples how the loop talks to the user (TextHandler, JSONHandler).
  - InputInterceptor: middleware that consumes commands before they are routed.
  - SanitizeInput: size, encoding and control-character checks on every utterance.
  - RunAndDiff: one turn plus the history delta it produced, for rich clients.

# Usage

	r := runner.NewRunner(
		runner.WithOrchestrator(orchestrator),
		runner.WithSessions(manager),
		runner.WithSessionID("mesa-1"),
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
