package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnsiColor_NonTerminalWriterReturnsPlainString(t *testing.T) {
	buf := &bytes.Buffer{}
	assert.Equal(t, "✓", ansiColor(buf, "32", "✓"))
}

func TestAnsiColor_NoColorEnvDisablesColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	buf := &bytes.Buffer{}
	assert.Equal(t, "✓", ansiColor(buf, "32", "✓"))
}

func TestIsColorTerminal_BufferIsNeverATerminal(t *testing.T) {
	buf := &bytes.Buffer{}
	assert.False(t, isColorTerminal(buf))
}
