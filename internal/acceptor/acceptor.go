// Package acceptor owns the listening socket: it binds the configured
// TCP endpoint and spawns one connection state machine per accepted
// connection.
package acceptor

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gahr/scgid/internal/scgiconn"
)

// Acceptor accepts SCGI connections and hands each to its own
// connection goroutine.
type Acceptor struct {
	addr      string
	keepalive time.Duration
	handler   scgiconn.Handler
	log       *zap.Logger

	ln net.Listener
}

// New builds an Acceptor for addr:port. keepalive follows
// conn_keepalive semantics (< 0 disables the idle timeout).
func New(addr string, port int, keepalive time.Duration, h scgiconn.Handler, log *zap.Logger) *Acceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Acceptor{
		addr:      net.JoinHostPort(addr, strconv.Itoa(port)),
		keepalive: keepalive,
		handler:   h,
		log:       log,
	}
}

// Listen binds the endpoint. Bind failures are returned to the caller
// so cmd/scgid can exit non-zero before the serve loop starts.
func (a *Acceptor) Listen() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("acceptor: binding %s: %w", a.addr, err)
	}
	a.ln = ln
	a.log.Info("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr reports the bound address. Useful when listening on port 0.
func (a *Acceptor) Addr() net.Addr {
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Serve accepts connections until the listener closes. Each accept
// spawns a goroutine running that connection's state machine, so a
// worker acquisition blocked under saturation stalls only its own
// connection; acceptance and header reading of other connections
// continue.
func (a *Acceptor) Serve() error {
	for {
		c, err := a.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("acceptor: accept: %w", err)
		}
		conn := scgiconn.New(c, a.keepalive, a.log)
		a.log.Debug("accepted connection",
			zap.String("conn_id", conn.ID),
			zap.String("remote", c.RemoteAddr().String()))
		go conn.Run(a.handler)
	}
}

// Close shuts the listener down, unblocking Serve.
func (a *Acceptor) Close() error {
	if a.ln == nil {
		return nil
	}
	return a.ln.Close()
}
