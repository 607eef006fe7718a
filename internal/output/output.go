// Package output provides consistent CLI output formatting.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Writer provides formatted output for the CLI. Decorated output (icons)
// is used only when writing to a terminal; piped output stays plain so
// it composes with other tools.
type Writer struct {
	out       io.Writer
	decorated bool
}

// New creates a Writer, detecting whether out is a terminal.
func New(out io.Writer) *Writer {
	decorated := false
	if f, ok := out.(*os.File); ok {
		decorated = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Writer{out: out, decorated: decorated}
}

// NewPlain creates a Writer that never decorates, regardless of terminal.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon when decorated.
// Write errors are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" && w.decorated {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintln(w.out, msg)
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Field prints an aligned key/value pair for status listings.
func (w *Writer) Field(name string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %-18s %v\n", name+":", value)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
