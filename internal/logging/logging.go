// Package logging builds the structured logger used by every harness run.
package logging

import (
	"io"
	"os"

	"github.com/phuslu/log"
	"golang.org/x/term"
)

// New returns a logger at the given level ("debug", "info", "warn", "error").
// Output is human-readable and coloured when w is a terminal, JSON lines
// otherwise.
func New(level string, w io.Writer) *log.Logger {
	var writer log.Writer = &log.IOWriter{Writer: w}
	if isTerminal(w) {
		writer = &log.ConsoleWriter{
			Writer:         w,
			ColorOutput:    true,
			EndWithMessage: true,
		}
	}
	return &log.Logger{
		Level:      log.ParseLevel(level),
		TimeFormat: "15:04:05.000",
		Writer:     writer,
	}
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *log.Logger {
	return &log.Logger{
		Level:  log.ErrorLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
