package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/presentation/graph"
	"github.com/aretw0/parley/pkg/domain"
)

// withSessions loads the config and builds an App without the model backend.
func withSessions(configPath string, fn func(app *App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	app, err := Build(cfg, BuildOptions{Logger: quietLogger(false)})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

// ListSessions prints the stored session IDs.
func ListSessions(ctx context.Context, configPath string, w io.Writer) error {
	return withSessions(configPath, func(app *App) error {
		ids, err := app.Sessions.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(ids) == 0 {
			fmt.Fprintln(w, "No active sessions found.")
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(w, id)
		}
		return nil
	})
}

// InspectSession prints a session transcript, or its raw JSON.
func InspectSession(ctx context.Context, configPath, sessionID string, asJSON bool, w io.Writer) error {
	return withSessions(configPath, func(app *App) error {
		state, err := app.Sessions.Load(ctx, sessionID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("session %q not found", sessionID)
		}
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		if asJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		}
		return printTranscript(w, state)
	})
}

func printTranscript(w io.Writer, state *domain.DialogueState) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tWHO\tAT\tCONTENT\n")
	for _, m := range state.Messages {
		who := string(m.Role)
		if m.Handler != "" {
			who = m.Handler
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", m.Position, who, m.CreatedAt.Format("2006-01-02 15:04:05"), m.Content)
	}
	return tw.Flush()
}

// RemoveSession deletes a session.
func RemoveSession(ctx context.Context, configPath, sessionID string, w io.Writer) error {
	return withSessions(configPath, func(app *App) error {
		if err := app.Sessions.Delete(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		printSystemMessage(w, "Session '%s' deleted.", sessionID)
		return nil
	})
}

// ListHandlers prints the configured handler catalog.
func ListHandlers(configPath string, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tDESCRIPTION\n")
	for _, d := range Descriptors(cfg) {
		fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Description)
	}
	return tw.Flush()
}

// PrintGraph writes the routing topology as a Mermaid diagram. With a session ID,
// the handlers that session reached are highlighted.
func PrintGraph(ctx context.Context, configPath, sessionID string, w io.Writer) error {
	return withSessions(configPath, func(app *App) error {
		var overlay *graph.Overlay
		if sessionID != "" {
			state, err := app.Sessions.Load(ctx, sessionID)
			if err != nil {
				return fmt.Errorf("failed to load session %q: %w", sessionID, err)
			}
			overlay = graph.OverlayFromState(state, app.Config.Router.Name)
		}
		// The classifier is built from the same catalog, so every handler is reachable.
		_, err := fmt.Fprint(w, graph.GenerateMermaid(app.Config.Router.Name, Descriptors(app.Config), nil, overlay))
		return err
	})
}
