// Package response implements the per-request response buffer and its
// flush-once semantics.
package response

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strings"

	"go.uber.org/zap"
)

// defaultStatus and defaultContentType are applied by Flush when the
// script never set them.
const (
	defaultStatus      = "200"
	defaultContentType = "text/html;charset=utf-8"
)

// orderedHeaders is an insertion-ordered name->value map; serialization
// must preserve the order in which the script set its headers.
type orderedHeaders struct {
	order []string
	vals  map[string]string
}

func newOrderedHeaders() *orderedHeaders {
	return &orderedHeaders{vals: make(map[string]string)}
}

func (h *orderedHeaders) get(k string) (string, bool) {
	v, ok := h.vals[k]
	return v, ok
}

func (h *orderedHeaders) set(k, v string) {
	if _, exists := h.vals[k]; !exists {
		h.order = append(h.order, k)
	}
	h.vals[k] = v
}

// Buffer accumulates response headers and body for one request and emits
// them exactly once on Flush: calling Flush N times writes once.
type Buffer struct {
	headers *orderedHeaders
	body    bytes.Buffer
	sealed  bool // no more Puts/Header accepted
	flushed bool // the on-wire write has happened
	emitLen bool
	log     *zap.Logger
}

// New creates an empty response Buffer. emitContentLength opts into
// setting Content-length on flush, which is otherwise suppressed.
func New(emitContentLength bool, log *zap.Logger) *Buffer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Buffer{headers: newOrderedHeaders(), emitLen: emitContentLength, log: log}
}

// titleCase renders a header key as "Title-Case", e.g. "content-type" ->
// "Content-Type", matching CGI header conventions.
func titleCase(k string) string {
	k = strings.TrimSpace(k)
	parts := strings.Split(k, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}

// outputKey renders a header's on-wire name. Every header is
// title-cased except Content-Type, which goes out as "Content-type"
// with only the leading word capitalized, the casing upstream servers
// and existing templates have always seen from this gateway.
func outputKey(k string) string {
	if k == "Content-Type" {
		return "Content-type"
	}
	return k
}

// MarkFlushed seals the buffer against further Puts/Header calls
// without performing the on-wire write. The sandbox's flush() primitive
// uses it as a write barrier on the buffer's own accumulation; the
// serialized write to the client still happens exactly once, in Flush,
// which the request driver calls after template execution completes
// regardless of whether the script called flush() itself.
func (b *Buffer) MarkFlushed() {
	b.sealed = true
}

// Header sets or replaces a response header: trimmed whitespace,
// title-cased name, dropped silently if already
// flushed or (when replace is false) if already present. Setting
// Location implicitly sets Status to "302 Found" unless Status is
// already set.
func (b *Buffer) Header(key, value string, replace bool) {
	if b.sealed {
		b.log.Debug("header set after flush, dropping", zap.String("key", key))
		return
	}
	key = titleCase(key)
	value = strings.TrimSpace(value)

	if _, exists := b.headers.get(key); exists && !replace {
		return
	}
	b.headers.set(key, value)

	if key == "Location" {
		if _, hasStatus := b.headers.get("Status"); !hasStatus {
			b.headers.set("Status", "302 Found")
		}
	}
}

// Puts appends data to the response body. A silent no-op once flushed;
// dropping is more resilient than erroring on a client that already
// got its bytes.
func (b *Buffer) Puts(data string) {
	if b.sealed {
		b.log.Debug("puts after flush, dropping", zap.Int("len", len(data)))
		return
	}
	b.body.WriteString(data)
}

// Flushed reports whether Flush has already performed the on-wire
// write.
func (b *Buffer) Flushed() bool {
	return b.flushed
}

// Flush applies header defaults, serializes headers and body, and writes
// the complete response to w in a single call. It is idempotent:
// subsequent calls are no-ops. Write errors are swallowed (the client
// may already be gone) but logged at Debug level.
func (b *Buffer) Flush(w io.Writer) {
	if b.flushed {
		return
	}
	b.flushed = true
	b.sealed = true

	if _, ok := b.headers.get("Status"); !ok {
		b.headers.set("Status", defaultStatus)
	}
	if _, ok := b.headers.get("Content-Type"); !ok {
		b.headers.set("Content-Type", defaultContentType)
	}
	if b.emitLen {
		if _, ok := b.headers.get("Content-Length"); !ok {
			b.headers.set("Content-Length", fmt.Sprintf("%d", b.body.Len()))
		}
	}

	var out bytes.Buffer
	for _, k := range b.headers.order {
		out.WriteString(outputKey(k))
		out.WriteString(": ")
		out.WriteString(b.headers.vals[k])
		out.WriteByte('\n')
	}
	out.WriteByte('\n')
	out.Write(b.body.Bytes())

	if _, err := w.Write(out.Bytes()); err != nil {
		b.log.Debug("flush write failed, swallowing", zap.Error(err))
	}

	if c, ok := w.(net.Conn); ok {
		if err := c.Close(); err != nil {
			b.log.Debug("closing connection after flush failed", zap.Error(err))
		}
	}
}

// NotFound writes a 404 response naming the last resolution candidate.
func (b *Buffer) NotFound(candidate string, w io.Writer) {
	b.Header("Status", "404 Not found", true)
	b.Puts(fmt.Sprintf("Could not find %s on the server", candidate))
	b.Flush(w)
}

// ServerError writes a 500 response with a <pre> body.
func (b *Buffer) ServerError(msg string, w io.Writer) {
	b.Header("Status", "500 Internal server error", true)
	b.Puts(fmt.Sprintf("<pre>%s</pre>", msg))
	b.Flush(w)
}
