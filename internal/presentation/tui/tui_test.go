package tui

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	buf := &bytes.Buffer{}
	PrintBanner(buf, "0.1.0")

	out := buf.String()
	assert.Contains(t, out, "v0.1.0")
	assert.Equal(t, len(bannerLines)+3, strings.Count(out, "\n"))
}

func TestIsInteractive(t *testing.T) {
	assert.False(t, IsInteractive(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsInteractive(f), "regular files are not terminals")
}

func TestNewRenderer(t *testing.T) {
	render := NewRenderer()
	out, err := render("**Arkham**")
	require.NoError(t, err)
	assert.Contains(t, out, "Arkham")
}
