package template

import (
	"strconv"
	"strings"
	"testing"
)

// fakeHost is a minimal Host that treats "executing" a fragment as
// evaluating tiny integer-arithmetic expressions of the form "a + b";
// "exit" sets the termination flag and anything else emits nothing,
// just enough to exercise the FSM's branch logic without pulling in a
// real script engine.
type fakeHost struct {
	out          strings.Builder
	terminated   bool
	incompleteAt string // if set, IsComplete returns false whenever the trimmed pending value equals it
	errOnExec    string
}

func (f *fakeHost) Emit(html string) { f.out.WriteString(html) }

func (f *fakeHost) Exec(script string) error {
	script = strings.TrimSpace(script)
	if script == f.errOnExec && script != "" {
		return errExec(script)
	}
	if script == "exit" {
		f.terminated = true
		return nil
	}
	if v, ok := evalAdd(script); ok {
		f.out.WriteString(v)
	}
	return nil
}

func (f *fakeHost) IsComplete(script string) bool {
	if strings.TrimSpace(script) == f.incompleteAt {
		return false
	}
	return true
}

func (f *fakeHost) Terminated() bool { return f.terminated }

type errExec string

func (e errExec) Error() string { return "exec error: " + string(e) }

func evalAdd(expr string) (string, bool) {
	parts := strings.SplitN(expr, "+", 2)
	if len(parts) != 2 {
		return "", false
	}
	a, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return "", false
	}
	return strconv.Itoa(a + b), true
}

func TestPureHTMLEmittedVerbatimWithTrailingNewlines(t *testing.T) {
	h := &fakeHost{}
	src := "line one\nline two"
	if err := Run("t.tcl", src, h); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := "line one\nline two\n"
	if h.out.String() != want {
		t.Fatalf("got %q, want %q", h.out.String(), want)
	}
}

func TestInlineScriptBlockCaseD(t *testing.T) {
	h := &fakeHost{}
	src := "<p><? 1 + 2 ?></p>"
	if err := Run("t.tcl", src, h); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := "<p>3</p>\n"
	if h.out.String() != want {
		t.Fatalf("got %q, want %q", h.out.String(), want)
	}
}

func TestMultiLineScriptBlockCaseBThenC(t *testing.T) {
	h := &fakeHost{}
	// Opening a multi-line block has no emit step, so any HTML
	// preceding "<?" on the opening line is dropped, not buffered.
	src := "before<?\n1 + 2\n?>after"
	if err := Run("t.tcl", src, h); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := "3after\n"
	if h.out.String() != want {
		t.Fatalf("got %q, want %q", h.out.String(), want)
	}
}

func TestCaseEClosesThenReopensOnSameLine(t *testing.T) {
	h := &fakeHost{}
	// Open a script block, close it and immediately reopen another one
	// on the same line: "<?" ... "?>" html "<?" ...
	src := "<?\n1 + 2?>mid<? 3 + 4 ?>end"
	if err := Run("t.tcl", src, h); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := "3mid7end\n"
	if h.out.String() != want {
		t.Fatalf("got %q, want %q", h.out.String(), want)
	}
}

func TestUnterminatedBlockAtEOFSilentWhenIncomplete(t *testing.T) {
	h := &fakeHost{incompleteAt: "dangling"}
	src := "<?\ndangling"
	if err := Run("t.tcl", src, h); err != nil {
		t.Fatalf("Run returned error for incomplete trailing fragment: %v", err)
	}
	if h.out.String() != "" {
		t.Fatalf("expected no output for a never-completed fragment, got %q", h.out.String())
	}
}

func TestUnterminatedBlockAtEOFExecutesWhenComplete(t *testing.T) {
	h := &fakeHost{}
	src := "<?\n1 + 2"
	if err := Run("t.tcl", src, h); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if h.out.String() != "3" {
		t.Fatalf("got %q, want 3", h.out.String())
	}
}

func TestDieOnScriptCloseWithoutOpen(t *testing.T) {
	h := &fakeHost{}
	src := "html ?> more"
	err := Run("t.tcl", src, h)
	if err == nil {
		t.Fatal("expected error for ?> with no preceding <?")
	}
	if !strings.Contains(err.Error(), "t.tcl:1") {
		t.Fatalf("error %q missing path:line", err.Error())
	}
}

func TestDieOnScriptOpenWhileAlreadyInScript(t *testing.T) {
	h := &fakeHost{}
	src := "<?\n<? nested"
	err := Run("t.tcl", src, h)
	if err == nil {
		t.Fatal("expected error for nested <? while already in SCRIPT mode")
	}
}

func TestExecutionStopsOnTerminationFlag(t *testing.T) {
	h := &fakeHost{}
	src := "<? exit ?>never emitted"
	if err := Run("t.tcl", src, h); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if strings.Contains(h.out.String(), "never emitted") {
		t.Fatalf("output should stop after termination flag set, got %q", h.out.String())
	}
}

func TestScriptErrorPropagates(t *testing.T) {
	h := &fakeHost{errOnExec: "oops"}
	src := "<? oops ?>"
	err := Run("t.tcl", src, h)
	if err == nil {
		t.Fatal("expected script error to propagate")
	}
	if !strings.Contains(err.Error(), "oops") {
		t.Fatalf("error %q missing fragment detail", err.Error())
	}
}
