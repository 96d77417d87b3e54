package tui

import (
	"io"
	"os"

	"golang.org/x/term"
)

// IsInteractive reports whether w is a terminal. Rendering and the banner are
// skipped for pipes and files.
func IsInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
