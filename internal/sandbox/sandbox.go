// Package sandbox hosts one request's isolated script-execution
// context: the puts/@, header, flush, die, exit, xml, and html.<tag>
// bindings, plus the pre-bound params/headers/body values.
//
// Templates are JavaScript, executed via github.com/dop251/goja, a
// pure-Go ECMAScript interpreter: it needs no cgo, keeps templates'
// embedded expressions (`1 + 2`, string concatenation) real and
// evaluable, and its panic-based exception model maps cleanly onto
// trapping errors at the fragment boundary. A fresh *goja.Runtime backs
// every request; nothing is shared across requests.
package sandbox

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/gahr/scgid/internal/response"
	"github.com/gahr/scgid/internal/urlform"
	"github.com/gahr/scgid/pkg/htmltag"
)

// dieSentinel is panicked by the die() binding to unwind the current
// script without propagating a second, redundant error report once the
// response has already been finalized.
const dieSentinel = "__scgid_die__"

// Sandbox is one request's script-execution context. It implements
// internal/template.Host.
type Sandbox struct {
	vm   *goja.Runtime
	resp *response.Buffer
	log  *zap.Logger

	terminated bool // set by exit()
	died       bool // set once die() (explicit or implicit) has run
}

// New builds a Sandbox with the fixed API bound. Std channels need no
// detaching: goja gives scripts no way to reach host stdio. Path
// resolution happens entirely in internal/locate before the sandbox
// ever runs, so no working-directory state is carried here either.
func New(resp *response.Buffer, params urlform.Params, headers map[string]string, body []byte, log *zap.Logger) *Sandbox {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sandbox{vm: goja.New(), resp: resp, log: log}
	s.bind(params, headers, body)
	return s
}

func (s *Sandbox) bind(params urlform.Params, headers map[string]string, body []byte) {
	vm := s.vm

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	// Bound as a plain map: goja exposes the keys of a map type only
	// when the type has no methods, and urlform.Params has String().
	must(vm.Set("params", map[string]interface{}(params)))
	must(vm.Set("headers", headers))
	must(vm.Set("body", body))

	puts := func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			s.resp.Puts(arg.String())
		}
		return goja.Undefined()
	}
	must(vm.Set("puts", puts))

	must(vm.Set("header", func(call goja.FunctionCall) goja.Value {
		args := call.Arguments
		key, value := argString(args, 0), argString(args, 1)
		replace := true
		if len(args) > 2 {
			replace = args[2].ToBoolean()
		}
		s.resp.Header(key, value, replace)
		return goja.Undefined()
	}))

	must(vm.Set("flush", func(call goja.FunctionCall) goja.Value {
		// The actual socket write happens in the request driver once
		// template execution completes; flush() here only seals the
		// buffer so that subsequent puts/header calls are silently
		// dropped.
		s.resp.MarkFlushed()
		return goja.Undefined()
	}))

	must(vm.Set("die", func(call goja.FunctionCall) goja.Value {
		msg := ""
		if len(call.Arguments) > 0 {
			msg = call.Arguments[0].String()
		}
		s.Die(msg)
		panic(vm.ToValue(dieSentinel))
	}))

	must(vm.Set("exit", func(call goja.FunctionCall) goja.Value {
		s.terminated = true
		return goja.Undefined()
	}))

	must(vm.Set("xml", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		s.resp.Puts("<?xml " + strings.Join(parts, " ") + "?>")
		return goja.Undefined()
	}))

	htmlObj := vm.NewObject()
	for _, tag := range htmltag.Tags {
		tag := tag
		fn := func(call goja.FunctionCall) goja.Value {
			attrs := toStringMap(call.Argument(0))
			children := toStringSlice(call.Argument(1))
			out := htmltag.Render(tag, attrs, children)
			s.resp.Puts(out)
			return vm.ToValue(out)
		}
		must(htmlObj.Set(tag, fn))
	}
	must(vm.Set("html", htmlObj))
}

func argString(args []goja.Value, i int) string {
	if i >= len(args) {
		return ""
	}
	return args[i].String()
}

func toStringMap(v goja.Value) map[string]string {
	out := map[string]string{}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return out
	}
	obj := v.ToObject(nil)
	if obj == nil {
		return out
	}
	for _, k := range obj.Keys() {
		out[k] = obj.Get(k).String()
	}
	return out
}

func toStringSlice(v goja.Value) []string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj := v.ToObject(nil)
	if obj == nil {
		return []string{v.String()}
	}
	lengthVal := obj.Get("length")
	if lengthVal == nil || goja.IsUndefined(lengthVal) {
		return []string{v.String()}
	}
	n := int(lengthVal.ToInteger())
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = obj.Get(fmt.Sprintf("%d", i)).String()
	}
	return out
}

// Emit implements template.Host: appends literal HTML to the response
// body.
func (s *Sandbox) Emit(html string) {
	s.resp.Puts(html)
}

// rewriteShortForm translates the template short form "@ expr" into a
// puts call. Templates treat "@" as an alias for puts (the idiomatic
// "<?@ expr ?>" emit form), but "@" cannot begin a JavaScript
// statement, so the alias is applied as a source rewrite before the
// fragment ever reaches the compiler.
func rewriteShortForm(script string) string {
	trimmed := strings.TrimLeft(script, " \t\r\n")
	if strings.HasPrefix(trimmed, "@") {
		return "puts(" + trimmed[1:] + ")"
	}
	return script
}

// IsComplete implements template.Host. A fragment is "complete" unless
// goja's compiler reports the specific unexpected-end-of-input error
// that indicates more source is needed; any other syntax error still
// counts as complete so that Exec gets to surface it.
func (s *Sandbox) IsComplete(script string) bool {
	if strings.TrimSpace(script) == "" {
		return true
	}
	_, err := goja.Compile("fragment", rewriteShortForm(script), false)
	if err == nil {
		return true
	}
	return !strings.Contains(err.Error(), "Unexpected end of input")
}

// Exec implements template.Host: runs script in the sandbox's runtime.
// Errors are trapped at the fragment boundary: any uncaught exception,
// whether raised by an explicit die() call or a genuine script error,
// is resolved to a finalized 500 response right here rather than
// propagated to the template FSM, so Exec always returns nil once the
// sandbox itself has handled the failure.
func (s *Sandbox) Exec(script string) (execErr error) {
	if strings.TrimSpace(script) == "" {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			if s.died {
				execErr = nil
				return
			}
			// A Go-level panic that isn't our own die sentinel (e.g. a
			// goja internal panic) still must not take down the worker.
			s.Die(fmt.Sprintf("%v", r))
			execErr = nil
		}
	}()

	_, err := s.vm.RunString(rewriteShortForm(script))
	if err != nil {
		if s.died {
			return nil
		}
		s.Die(err.Error())
		return nil
	}
	return nil
}

// Terminated implements template.Host: reports whether exit() set the
// termination flag or die() has run.
func (s *Sandbox) Terminated() bool {
	return s.terminated || s.died
}

// Die implements the die(msg) sandbox primitive: it emits a 500
// response with a <pre> body containing msg and marks the sandbox
// terminated so the template FSM stops. It is exported so the request
// driver can also invoke it directly when internal/template.Run returns
// a mode-precondition violation, since that class of error originates
// in the FSM rather than inside a script fragment.
func (s *Sandbox) Die(msg string) {
	if s.died {
		return
	}
	s.died = true
	s.resp.Header("Status", "500 Internal server error", true)
	s.resp.Puts(fmt.Sprintf("<pre>%s</pre>", msg))
}
