// Package dispatch hands a parsed SCGI request to a leased worker and
// drives it to completion: parameter extraction, template resolution,
// template execution inside a sandbox, and the final response flush.
package dispatch

import (
	"context"
	"net"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gahr/scgid/internal/config"
	"github.com/gahr/scgid/internal/locate"
	"github.com/gahr/scgid/internal/pool"
	"github.com/gahr/scgid/internal/response"
	"github.com/gahr/scgid/internal/sandbox"
	"github.com/gahr/scgid/internal/template"
	"github.com/gahr/scgid/internal/urlform"
)

// Request is the handle transferred to a worker: the socket, with
// ownership, plus the parsed headers, the body bytes, and the
// configured template base directory.
type Request struct {
	ID         string
	Sock       net.Conn
	Headers    map[string]string
	Body       []byte
	ScriptPath string
}

// Dispatcher leases workers from the pool and serves requests on them.
type Dispatcher struct {
	pool *pool.Pool
	cfg  *config.Config
	log  *zap.Logger
}

// New builds a Dispatcher over a pool and an immutable configuration
// snapshot.
func New(p *pool.Pool, cfg *config.Config, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{pool: p, cfg: cfg, log: log}
}

// Handle adapts Serve to the connection state machine's handoff
// signature (scgiconn.Handler). It runs on the connection's own
// goroutine, so a blocking worker acquisition stalls only this
// request, never the acceptor.
func (d *Dispatcher) Handle(sock net.Conn, headers map[string]string, body []byte) {
	d.Serve(&Request{
		ID:         uuid.NewString(),
		Sock:       sock,
		Headers:    headers,
		Body:       body,
		ScriptPath: d.cfg.ScriptPath,
	})
}

// Serve leases a worker, processes req to completion, and releases the
// worker. Acquisition runs under the background context and therefore
// never fails; under saturation it blocks until a worker frees up.
func (d *Dispatcher) Serve(req *Request) {
	w, _ := d.pool.Acquire(context.Background())
	defer d.pool.Release(w)

	log := d.log.With(
		zap.String("worker_id", w.ID),
		zap.String("request_id", req.ID))
	d.process(req, log)
}

// process owns the socket from entry to exit: exactly one response is
// written and the socket closed exactly once, all through the response
// buffer's single Flush.
func (d *Dispatcher) process(req *Request, log *zap.Logger) {
	resp := response.New(d.cfg.EmitContentLength, log)

	base := locate.Base(req.ScriptPath, req.Headers)
	path, ok, last := locate.Resolve(base, req.Headers)
	if !ok {
		log.Debug("no template resolved", zap.String("last_candidate", last))
		resp.NotFound(last, req.Sock)
		return
	}

	src, err := os.ReadFile(path)
	if err != nil {
		// Resolve saw a readable file, but it vanished or lost
		// permissions before the read.
		log.Debug("template read failed", zap.String("template", path), zap.Error(err))
		resp.ServerError(err.Error(), req.Sock)
		return
	}

	params, err := urlform.Extract(req.Headers, req.Body)
	if err != nil {
		log.Debug("parameter extraction failed", zap.Error(err))
		params = urlform.Params{}
	}

	sb := sandbox.New(resp, params, req.Headers, req.Body, log)

	var host template.Host = sb
	if d.cfg.RequestTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.RequestTimeout)
		defer cancel()
		host = &deadlineHost{Sandbox: sb, ctx: ctx}
	}

	if err := template.Run(path, string(src), host); err != nil {
		// Mode-precondition violations originate in the FSM, not in a
		// fragment, so the sandbox routes them through die here.
		sb.Die(err.Error())
	}

	resp.Flush(req.Sock)
	log.Debug("request complete", zap.String("template", path))
}

// deadlineHost layers the per-request deadline over the sandbox. The
// template FSM consults Terminated between fragments, so an expired
// deadline ends execution cooperatively at the next fragment boundary
// rather than mid-script.
type deadlineHost struct {
	*sandbox.Sandbox
	ctx context.Context
}

func (h *deadlineHost) Terminated() bool {
	return h.ctx.Err() != nil || h.Sandbox.Terminated()
}
