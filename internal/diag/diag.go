// Package diag is elfling's diagnostics sink: a thin wrapper over the
// standard library's log.Logger gated by a verbose flag, matching the
// teacher's own convention of plain fmt.Fprintf(os.Stderr, ...) calls
// behind a VerboseMode check rather than a structured logging library
// (none appears anywhere in the retrieved example pack).
package diag

import (
	"io"
	"log"
	"os"
)

// Logger writes diagnostics to an underlying *log.Logger, gated by
// Verbose. Fatal-path messages (Fatalf) always print; progress and
// detail messages (Logf) print only when Verbose is set, mirroring
// spec.md §6's -fverbose flag.
type Logger struct {
	Verbose bool
	out     *log.Logger
}

// New returns a Logger writing to w with no time/date prefix, matching
// the teacher's one-line diagnostic style.
func New(w io.Writer, verbose bool) *Logger {
	return &Logger{Verbose: verbose, out: log.New(w, "", 0)}
}

// Stderr returns a Logger writing to os.Stderr.
func Stderr(verbose bool) *Logger {
	return New(os.Stderr, verbose)
}

// Logf prints a verbose-only progress line.
func (l *Logger) Logf(format string, args ...any) {
	if l == nil || !l.Verbose {
		return
	}
	l.out.Printf(format, args...)
}

// Warnf always prints a non-fatal diagnostic (unresolved import,
// unknown relocation type, round-trip mismatch — the "non-fatal,
// logged" error kinds of spec.md §7).
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.out.Printf("warning: "+format, args...)
}

// Fatalf prints a one-line diagnostic; the caller is responsible for
// exiting with a non-zero status afterward.
func (l *Logger) Fatalf(format string, args ...any) {
	if l == nil {
		log.Printf(format, args...)
		return
	}
	l.out.Printf(format, args...)
}
