// Package template implements the line-oriented finite-state machine
// that splits a template file into literal HTML and embedded script
// fragments bracketed by "<?" and "?>". Each line is scanned with a
// two-index cursor over the next open and close markers; the five
// resulting cases (no marker, open only, close only, open-then-close,
// close-then-open) cover every input, so no tokenizer is needed.
package template

import (
	"fmt"
	"strings"
)

// Mode is the FSM's single bit of state.
type Mode int

const (
	ModeHTML Mode = iota
	ModeScript
)

// Host is the sandbox-side contract the FSM drives: literal HTML
// emission, fragment execution, a syntactic-completeness check (used
// only by case A to decide whether an accumulating multi-line fragment
// is ready to run), and the cooperative termination flag set by the
// sandbox's exit().
type Host interface {
	Emit(html string)
	Exec(script string) error
	IsComplete(script string) bool
	Terminated() bool
}

// Run processes src (the full contents of a template file at path) line
// by line against h. It returns a non-nil error, formatted
// "<path>:<lineNo> -- invalid ... block", the moment a mode
// precondition is violated (this is the signal the caller uses to
// invoke die()). A script error returned by h.Exec is propagated
// unchanged so the caller can route it to die() with the fragment's own
// message.
func Run(path, src string, h Host) error {
	mode := ModeHTML
	var pending strings.Builder

	lines := splitLines(src)
	for i, line := range lines {
		lineNo := i + 1
		if err := processLine(path, lineNo, line, &mode, &pending, h); err != nil {
			return err
		}
		if h.Terminated() {
			return nil
		}
		if mode == ModeHTML {
			h.Emit("\n")
		}
	}
	return nil
}

// splitLines splits src into lines without their trailing newlines. A
// final line with no trailing newline is still processed.
func splitLines(src string) []string {
	if src == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(src, "\n"), "\n")
}

// processLine runs the full left-to-right scan of one line. Every
// branch eventually consumes the line; the open-then-close and
// close-then-open cases loop internally via scan advancement rather
// than recursion.
func processLine(path string, lineNo int, line string, mode *Mode, pending *strings.Builder, h Host) error {
	scan := 0
	for {
		b := indexFrom(line, scan, "<?")
		e := indexFrom(line, scan, "?>")

		switch {
		case b == -1 && e == -1:
			// Case A.
			if *mode == ModeHTML {
				h.Emit(line[scan:])
			} else {
				pending.WriteString(line[scan:])
				pending.WriteString("\n")
				if h.IsComplete(pending.String()) {
					if execErr := h.Exec(pending.String()); execErr != nil {
						return execErr
					}
					pending.Reset()
				}
			}
			return nil

		case b >= 0 && e == -1:
			// Case B.
			if *mode != ModeHTML {
				return dieErr(path, lineNo, "script open")
			}
			pending.WriteString(line[b+2:])
			pending.WriteString("\n")
			*mode = ModeScript
			return nil

		case b == -1 && e >= 0:
			// Case C.
			if *mode != ModeScript {
				return dieErr(path, lineNo, "script close")
			}
			pending.WriteString(line[scan:e])
			if execErr := h.Exec(pending.String()); execErr != nil {
				return execErr
			}
			pending.Reset()
			*mode = ModeHTML
			h.Emit(line[e+2:])
			return nil

		case b < e: // 0 <= b < e
			// Case D.
			if *mode != ModeHTML {
				return dieErr(path, lineNo, "inline script open")
			}
			h.Emit(line[scan:b])
			if execErr := h.Exec(line[b+2:e]); execErr != nil {
				return execErr
			}
			if h.Terminated() {
				return nil
			}
			scan = e + 2
			continue

		default: // 0 <= e < b
			// Case E.
			if *mode != ModeScript {
				return dieErr(path, lineNo, "inline script close")
			}
			pending.WriteString(line[scan:e])
			if execErr := h.Exec(pending.String()); execErr != nil {
				return execErr
			}
			pending.Reset()
			h.Emit(line[e+2:b])
			if h.Terminated() {
				return nil
			}
			*mode = ModeScript
			scan = b + 2
			continue
		}
	}
}

func indexFrom(s string, from int, sub string) int {
	i := strings.Index(s[from:], sub)
	if i < 0 {
		return -1
	}
	return from + i
}

func dieErr(path string, lineNo int, kind string) error {
	return fmt.Errorf("%s:%d -- invalid %s block", path, lineNo, kind)
}
