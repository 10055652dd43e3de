// Package scgiconn drives one accepted TCP connection through the SCGI
// request-reading state machine: ReadingLen, ReadingHead, ReadingBody,
// then a single Dispatched handoff after which this package never
// touches the socket again.
//
// Each connection runs on its own goroutine, so readability events
// become plain blocking reads and the idle timer becomes a read
// deadline refreshed before every read. The wire-level parsing itself
// lives in internal/netstring; this package only sequences it.
package scgiconn

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gahr/scgid/internal/netstring"
)

// State is a connection's read progress. It is monotonically
// non-decreasing across the lifetime of the connection.
type State int

const (
	ReadingLen State = iota
	ReadingHead
	ReadingBody
	Dispatched
)

func (s State) String() string {
	switch s {
	case ReadingLen:
		return "ReadingLen"
	case ReadingHead:
		return "ReadingHead"
	case ReadingBody:
		return "ReadingBody"
	case Dispatched:
		return "Dispatched"
	}
	return "Unknown"
}

// Handler receives ownership of the socket and the parsed request at
// the moment the state machine reaches Dispatched. From that instant
// the handler is solely responsible for writing the response and
// closing the socket; the connection goroutine is done.
type Handler func(sock net.Conn, headers map[string]string, body []byte)

const readChunk = 4096

// Conn is one connection record, owned by a single goroutine and never
// shared.
type Conn struct {
	ID string

	sock      net.Conn
	keepalive time.Duration // < 0: no idle timeout
	log       *zap.Logger

	state   State
	buf     []byte
	hbeg    int
	hlen    int
	headers map[string]string
	bbeg    int
	blen    int
}

// New wraps an accepted socket in a connection record. keepalive < 0
// disables the idle timeout, matching conn_keepalive's -1 sentinel.
func New(sock net.Conn, keepalive time.Duration, log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Conn{
		ID:        id,
		sock:      sock,
		keepalive: keepalive,
		log:       log.With(zap.String("conn_id", id)),
	}
}

// State reports the connection's current read progress.
func (c *Conn) State() State {
	return c.state
}

// Run reads from the socket until the request dispatches, the idle
// timeout fires, or the peer goes away. On dispatch it clears the read
// deadline and transfers the socket, headers, and body slice to h in a
// single call; on any failure before dispatch it closes the socket and
// discards the record, emitting no response.
func (c *Conn) Run(h Handler) {
	chunk := make([]byte, readChunk)
	for {
		if c.keepalive >= 0 {
			if err := c.sock.SetReadDeadline(time.Now().Add(c.keepalive)); err != nil {
				c.discard("arming idle timeout", err)
				return
			}
		}

		n, err := c.sock.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			dispatched, perr := c.advance()
			if perr != nil {
				c.discard("protocol error", perr)
				return
			}
			if dispatched {
				// Ownership transfer: after h returns or blocks, this
				// goroutine must not use c.sock again.
				_ = c.sock.SetReadDeadline(time.Time{})
				c.log.Debug("request dispatched",
					zap.Int("headers", len(c.headers)),
					zap.Int("body_len", c.blen))
				h(c.sock, c.headers, c.buf[c.bbeg:c.bbeg+c.blen])
				return
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
				c.discard("idle timeout", err)
			case errors.Is(err, io.EOF):
				c.discard("eof before dispatch", err)
			default:
				c.discard("read error", err)
			}
			return
		}
	}
}

// advance moves the state machine as far as the buffered bytes permit;
// a single call may traverse multiple states. It returns
// dispatched=true once the full request is buffered, or an error for
// framing the connection can never recover from.
func (c *Conn) advance() (dispatched bool, err error) {
	for {
		switch c.state {
		case ReadingLen:
			hlen, hbeg, err := netstring.ScanLength(c.buf)
			if errors.Is(err, netstring.ErrIncomplete) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			c.hlen, c.hbeg = hlen, hbeg
			c.state = ReadingHead

		case ReadingHead:
			headers, bbeg, err := netstring.ParseHeaders(c.buf, c.hbeg, c.hlen)
			if errors.Is(err, netstring.ErrIncomplete) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			blen, err := netstring.BodyLength(headers)
			if err != nil {
				return false, err
			}
			c.headers, c.bbeg, c.blen = headers, bbeg, blen
			c.state = ReadingBody

		case ReadingBody:
			if !netstring.BodyReady(c.buf, c.bbeg, c.blen) {
				return false, nil
			}
			c.state = Dispatched
			return true, nil

		default:
			return true, nil
		}
	}
}

func (c *Conn) discard(reason string, err error) {
	c.log.Debug("discarding connection",
		zap.String("reason", reason),
		zap.String("state", c.state.String()),
		zap.Error(err))
	_ = c.sock.Close()
}
