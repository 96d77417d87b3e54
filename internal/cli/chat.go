package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/runner"
)

// ChatOptions contains the configuration for the chat command.
type ChatOptions struct {
	ConfigPath string
	SessionID  string
	Fresh      bool
	JSON       bool
	NoGreeting bool
	Debug      bool

	In  io.Reader
	Out io.Writer
}

// RunChat runs an interactive conversation in the terminal (or JSON-lines on stdio).
func RunChat(opts ChatOptions) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	app, err := Build(cfg, BuildOptions{Logger: quietLogger(opts.Debug), WithModel: true})
	if err != nil {
		return err
	}
	defer app.Close()

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	if opts.Fresh && opts.SessionID != "" {
		if err := app.Sessions.Delete(sigCtx, opts.SessionID); err != nil {
			return fmt.Errorf("failed to reset session: %w", err)
		}
	}

	interactive := !opts.JSON && tui.IsInteractive(opts.Out)
	handler := newChatHandler(opts, interactive)

	runnerOpts := []runner.Option{
		runner.WithOrchestrator(app.Orchestrator),
		runner.WithSessions(app.Sessions),
		runner.WithSessionID(opts.SessionID),
		runner.WithInputHandler(handler),
		runner.WithLogger(app.Logger),
		runner.WithInterceptor(runner.HandlersCommand(handler, app.Orchestrator.Handlers)),
	}
	if !opts.JSON && !opts.NoGreeting {
		runnerOpts = append(runnerOpts, runner.WithGreeting(runner.DefaultGreeting))
	}

	if interactive {
		tui.PrintBanner(opts.Out, strings.TrimSpace(parley.Version))
	}
	if opts.SessionID != "" && !opts.JSON {
		printSystemMessage(opts.Out, "Session '%s' active.", opts.SessionID)
	}

	err = runner.NewRunner(runnerOpts...).Run(sigCtx)
	if sig := sigCtx.Signal(); sig != nil && !opts.JSON {
		printSystemMessage(opts.Out, "Interrupted (%s).", sig)
	}
	return handleExecutionError(err)
}

func newChatHandler(opts ChatOptions, interactive bool) runner.IOHandler {
	if opts.JSON {
		return runner.NewJSONHandler(opts.In, opts.Out)
	}
	textOpts := []runner.TextHandlerOption{runner.WithTextHandlerAssistant("CthulhuAssistant")}
	if interactive {
		textOpts = append(textOpts, runner.WithTextHandlerRenderer(tui.NewRenderer()))
	}
	return runner.NewTextHandler(opts.In, opts.Out, textOpts...)
}
