package cmd

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ansiColor wraps s in the given SGR color code when w is a real
// terminal that wants color. NO_COLOR (https://no-color.org) and CI
// environments always get plain output.
func ansiColor(w io.Writer, code, s string) string {
	if !isColorTerminal(w) {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

func isColorTerminal(w io.Writer) bool {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
