package diag

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogfSuppressedWhenNotVerbose(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	l.Logf("hello %d", 1)
	if buf.Len() != 0 {
		t.Fatalf("Logf wrote output with Verbose=false: %q", buf.String())
	}
}

func TestLogfPrintsWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, true)
	l.Logf("hello %d", 1)
	if !strings.Contains(buf.String(), "hello 1") {
		t.Fatalf("Logf output = %q, want to contain %q", buf.String(), "hello 1")
	}
}

func TestWarnfAlwaysPrints(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	l.Warnf("something: %s", "bad")
	if !strings.Contains(buf.String(), "warning: something: bad") {
		t.Fatalf("Warnf output = %q, want to contain warning text", buf.String())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Logf("should not panic")
	l.Warnf("should not panic")
	l.Fatalf("should not panic")
}
