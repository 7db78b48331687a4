package elog

import (
	"bytes"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, name string) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	SetOutput(buf)
	return ForComponent(name), buf
}

func TestPrefixInfo(t *testing.T) {
	SetGlobalDebug(false)

	const name = "prefix_component_test"
	l, buf := newTestLogger(t, name)

	l.Infof("hello world")
	out := buf.String()

	if !strings.Contains(out, "["+name+">]") {
		t.Fatalf("expected prefix [%s>] in output, got: %q", name, out)
	}
	if !strings.Contains(out, "hello world") {
		t.Fatalf("expected message in output, got: %q", out)
	}
}

func TestDebugPerComponent(t *testing.T) {
	SetGlobalDebug(false)

	const name = "debug_component_specific"
	DisableDebugFor(name)
	l, buf := newTestLogger(t, name)

	l.Debugf("should not appear")
	if strings.Contains(buf.String(), "should not appear") {
		t.Fatalf("debug message appeared while debug disabled (per component & global)")
	}

	EnableDebugFor(name)
	l.Debugf("visible now")
	if !strings.Contains(buf.String(), "visible now") {
		t.Fatalf("expected debug message after enabling per-component debug; got: %q", buf.String())
	}
}

func TestWarnfHasNoPreamble(t *testing.T) {
	const name = "warn_plain_test"
	l, buf := newTestLogger(t, name)

	l.Warnf("first warning")
	l.Warnf("second warning")

	out := buf.String()
	if !strings.Contains(out, "first warning") || !strings.Contains(out, "second warning") {
		t.Fatalf("expected both warnings logged plainly, got: %q", out)
	}
	if strings.Count(out, "WARN") != 2 {
		t.Fatalf("expected exactly two WARN lines (no extra preamble), got: %q", out)
	}
}

func TestComponentDebugOverrideEnableDisable(t *testing.T) {
	SetGlobalDebug(false)

	const name = "debug_override_test"
	l, buf := newTestLogger(t, name)
	EnableDebugFor(name)

	l.Debugf("component override")
	if !strings.Contains(buf.String(), "component override") {
		t.Fatalf("expected component override to enable debug output, got: %q", buf.String())
	}

	DisableDebugFor(name)
	buf.Reset()
	l.Debugf("should not appear")
	if strings.Contains(buf.String(), "should not appear") {
		t.Fatalf("expected debug output suppressed after disabling override, got: %q", buf.String())
	}
}
