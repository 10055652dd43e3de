// Package netstring implements the pure, allocation-light parsing
// functions for SCGI's wire framing: the decimal length prefix, the
// NUL-separated header block, and the comma/body trailer.
//
// Keeping the framing code separate from connection-lifetime code lets
// the state machine in internal/scgiconn stay a thin driver over these
// pure functions.
package netstring

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrIncomplete means the buffer does not yet hold enough bytes to
	// make progress; the caller should wait for more data.
	ErrIncomplete = errors.New("netstring: incomplete")
	// ErrMalformed means the buffer can never become valid SCGI framing.
	ErrMalformed = errors.New("netstring: malformed")
)

// ScanLength looks for the "<digits>:" prefix starting at the beginning
// of buf. It returns the parsed length and the offset immediately after
// the colon. ErrIncomplete is returned
// until a colon is seen; ErrMalformed if a non-digit precedes the colon.
func ScanLength(buf []byte) (length int, headerBegin int, err error) {
	colon := bytes.IndexByte(buf, ':')
	if colon < 0 {
		if len(buf) > 0 && !allDigits(buf) {
			return 0, 0, fmt.Errorf("%w: non-digit byte before colon", ErrMalformed)
		}
		return 0, 0, ErrIncomplete
	}
	if colon == 0 {
		return 0, 0, fmt.Errorf("%w: empty length field", ErrMalformed)
	}
	if !allDigits(buf[:colon]) {
		return 0, 0, fmt.Errorf("%w: non-digit byte in length field", ErrMalformed)
	}
	n, err := strconv.Atoi(string(buf[:colon]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return n, colon + 1, nil
}

func allDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// ParseHeaders splits the header block buf[headerBegin:headerBegin+length]
// on NUL bytes into name/value pairs, uppercasing names. It reports ErrIncomplete if buf is not yet long enough, and returns the
// offset of the first body byte (bodyBegin), which sits one byte past the
// header block to skip the netstring's trailing comma.
func ParseHeaders(buf []byte, headerBegin, length int) (headers map[string]string, bodyBegin int, err error) {
	end := headerBegin + length
	if len(buf) < end+1 {
		return nil, 0, ErrIncomplete
	}
	block := buf[headerBegin:end]
	if buf[end] != ',' {
		return nil, 0, fmt.Errorf("%w: missing trailing comma", ErrMalformed)
	}

	headers = make(map[string]string)
	parts := bytes.Split(block, []byte{0})
	// A well-formed block is "name\0value\0name\0value\0...", splitting on
	// NUL yields a trailing empty element for the final terminator.
	for i := 0; i+1 < len(parts); i += 2 {
		name := bytesToUpper(parts[i])
		headers[name] = string(parts[i+1])
	}
	return headers, end + 1, nil
}

func bytesToUpper(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// BodyLength extracts and parses CONTENT_LENGTH from headers. The
// header is mandatory and must be a non-negative integer.
func BodyLength(headers map[string]string) (int, error) {
	raw, ok := headers["CONTENT_LENGTH"]
	if !ok {
		return 0, fmt.Errorf("%w: missing CONTENT_LENGTH", ErrMalformed)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid CONTENT_LENGTH %q", ErrMalformed, raw)
	}
	return n, nil
}

// BodyReady reports whether buf holds the full body given bodyBegin and
// the declared body length blen. A zero-length body is ready as soon as
// the header block's trailing comma has arrived.
func BodyReady(buf []byte, bodyBegin, blen int) bool {
	return blen == 0 || len(buf) >= bodyBegin+blen
}

// Encode renders headers and body back into SCGI wire framing. Decoding
// an encoded request yields the original headers and body; it is used
// by tests and is useful for client-side tooling.
func Encode(headers map[string]string, headerOrder []string, body []byte) []byte {
	var hb bytes.Buffer
	for _, k := range headerOrder {
		hb.WriteString(k)
		hb.WriteByte(0)
		hb.WriteString(headers[k])
		hb.WriteByte(0)
	}

	var out bytes.Buffer
	out.WriteString(strconv.Itoa(hb.Len()))
	out.WriteByte(':')
	out.Write(hb.Bytes())
	out.WriteByte(',')
	out.Write(body)
	return out.Bytes()
}
