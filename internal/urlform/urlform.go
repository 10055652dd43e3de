// Package urlform extracts request parameters from a QUERY_STRING and,
// for form-encoded or multipart bodies, the request body.
package urlform

import (
	"bytes"
	"mime"
	"mime/multipart"
	"strings"
)

// FieldProps describes one multipart/form-data field: its value plus
// the filename and part headers for file uploads.
type FieldProps struct {
	Value    string
	Filename string
	Header   map[string][]string
}

// Params is the dispatcher-built params map, pre-bound into the
// sandbox. Values are either a plain string (from the query
// string or a urlencoded body) or a *FieldProps (from a multipart body).
type Params map[string]interface{}

// String returns the string form of a param: the value itself if it was
// a plain string, or the Value field if it was a multipart FieldProps.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case *FieldProps:
		return t.Value, true
	}
	return "", false
}

const formURLEncoded = "application/x-www-form-urlencoded"

// Extract splits QUERY_STRING on separators, optionally appends a
// urlencoded body to the same token stream, percent/plus-decodes each
// token, and pairs consecutive tokens as name->value. When
// HTTP_CONTENT_TYPE matches
// "multipart/form-data*", the multipart-parsed fields replace the form
// portion of params entirely.
func Extract(headers map[string]string, body []byte) (Params, error) {
	params := make(Params)

	queryString := headers["QUERY_STRING"]
	contentType := headers["HTTP_CONTENT_TYPE"]

	if strings.HasPrefix(contentType, "multipart/form-data") {
		fields, err := parseMultipart(contentType, body)
		if err != nil {
			return nil, err
		}
		for k, v := range queryParams(queryString) {
			params[k] = v
		}
		for k, v := range fields {
			params[k] = v
		}
		return params, nil
	}

	stream := queryString
	if contentType == formURLEncoded && len(body) > 0 {
		if stream != "" {
			stream += "&"
		}
		stream += string(body)
	}

	for k, v := range queryParams(stream) {
		params[k] = v
	}
	return params, nil
}

// queryParams implements the token-splitting and pairing rule: split on
// any of '&', '=', ' ', percent/plus-decode each token (+ -> space, %XX
// byte-unescaping interpreted as UTF-8), then pair consecutive decoded
// tokens as name->value.
func queryParams(s string) map[string]string {
	out := make(map[string]string)
	if s == "" {
		return out
	}

	tokens := splitAny(s, "&= ")
	decoded := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		decoded = append(decoded, decodeToken(tok))
	}

	for i := 0; i+1 < len(decoded); i += 2 {
		out[decoded[i]] = decoded[i+1]
	}
	// A trailing unpaired token (odd count) is dropped; the pairing
	// rule has no single-token case.
	return out
}

func splitAny(s, seps string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(seps, r)
	})
}

// decodeToken applies '+' -> space then %XX unescaping, interpreting
// the resulting bytes as UTF-8. Unlike net/url.QueryUnescape, malformed
// escapes are passed through byte-for-byte rather than failing the
// whole request: a single bad token should not abort parameter
// extraction.
func decodeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "+", " ")

	var buf bytes.Buffer
	for i := 0; i < len(tok); i++ {
		if tok[i] == '%' && i+2 < len(tok) && isHex(tok[i+1]) && isHex(tok[i+2]) {
			buf.WriteByte(unhex(tok[i+1])<<4 | unhex(tok[i+2]))
			i += 2
			continue
		}
		buf.WriteByte(tok[i])
	}
	return buf.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

// parseMultipart decodes a multipart/form-data body using the standard
// library's mime/multipart reader rather than reimplementing RFC 2046
// framing.
func parseMultipart(contentType string, body []byte) (map[string]*FieldProps, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, err
	}
	boundary, ok := params["boundary"]
	if !ok {
		return nil, errBadMultipart("missing boundary")
	}

	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	fields := make(map[string]*FieldProps)

	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		name := part.FormName()
		if name == "" {
			continue
		}
		var buf bytes.Buffer
		buf.ReadFrom(part)
		fields[name] = &FieldProps{
			Value:    buf.String(),
			Filename: part.FileName(),
			Header:   map[string][]string(part.Header),
		}
	}

	return fields, nil
}

type errBadMultipart string

func (e errBadMultipart) Error() string { return "urlform: " + string(e) }
