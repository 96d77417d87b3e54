package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/aretw0/parley/internal/logging"
)

// SignalContext is a context cancelled on SIGINT or SIGTERM that remembers which signal fired.
type SignalContext struct {
	context.Context
	Cancel context.CancelFunc
	sig    atomic.Value
}

// NewSignalContext works like signal.NotifyContext but exposes the received signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{Context: ctx, Cancel: cancel}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			sc.sig.Store(sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return sc
}

// Signal returns the signal that cancelled the context, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sig, _ := sc.sig.Load().(os.Signal)
	return sig
}

// createLogger configures the application logger on Stderr, keeping Stdout for the conversation.
// An unparsable level falls back to info; debug forces debug level. Records use the configured format.
func createLogger(level, format string, debug bool) *slog.Logger {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}
	f, _ := logging.ParseFormat(format)
	return logging.NewWithFormat(os.Stderr, lvl, f)
}

// quietLogger logs only warnings and errors, for interactive sessions where info
// records would interleave with the conversation.
func quietLogger(debug bool) *slog.Logger {
	if debug {
		return logging.New(slog.LevelDebug)
	}
	return logging.New(slog.LevelWarn)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}

// handleExecutionError maps interruptions to a clean exit.
func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}
