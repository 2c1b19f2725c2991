// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qhttp

import (
	"bytes"
	"fmt"
	"strconv"
)

// Method is an HTTP request method.
type Method uint8

const (
	MethodGet Method = iota
	MethodPost
	MethodPatch
)

// String returns the wire form of the method, or "" for invalid values.
func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPatch:
		return "PATCH"
	default:
		return ""
	}
}

// Request describes one HTTP/1.1 request. A non-nil Body implies a
// Content-Type (defaulted to application/json) and an exact Content-Length;
// GET must not carry a body.
type Request struct {
	Method      Method
	Host        string
	Port        uint16
	Path        string
	Body        []byte
	ContentType string
}

// Response is a parsed HTTP/1.1 response. Header and Body are views into the
// buffer the response was parsed from, not copies: they are valid only while
// that buffer is alive and untouched (for Client, until the next Do call).
type Response struct {
	StatusCode int

	// Header covers the status line and all header lines.
	Header []byte

	// Body covers everything after the blank line. When ContentLength is
	// known it eventually covers exactly that many bytes; otherwise it is
	// whatever arrived before the peer closed.
	Body []byte

	// ContentLength is the declared body length, -1 when absent.
	ContentLength int

	// Chunked reports Transfer-Encoding: chunked. Detection only; the body
	// is not dechunked.
	Chunked bool
}

var (
	crlf      = []byte("\r\n")
	headerEnd = []byte("\r\n\r\n")
)

// fixedBuf appends into a caller-supplied fixed buffer, latching an overflow
// flag instead of growing. All-or-nothing: once overflowed, the buffer
// content is unspecified and the build fails as a whole.
type fixedBuf struct {
	dst      []byte
	n        int
	overflow bool
}

func (b *fixedBuf) str(s string) {
	if b.overflow || b.n+len(s) > len(b.dst) {
		b.overflow = true
		return
	}
	copy(b.dst[b.n:], s)
	b.n += len(s)
}

func (b *fixedBuf) raw(p []byte) {
	if b.overflow || b.n+len(p) > len(b.dst) {
		b.overflow = true
		return
	}
	copy(b.dst[b.n:], p)
	b.n += len(p)
}

// BuildRequest serializes req into dst and returns the byte length. A build
// that would exceed dst fails whole with ErrBufferTooSmall and reports zero
// bytes; nothing partial is ever handed to the send path.
func BuildRequest(dst []byte, req *Request) (int, error) {
	return buildRequest(dst, req, defaultOptions.UserAgent)
}

func buildRequest(dst []byte, req *Request, userAgent string) (int, error) {
	if req == nil || req.Host == "" || req.Port == 0 ||
		req.Path == "" || req.Path[0] != '/' || req.Method.String() == "" {
		return 0, ErrInvalidArgument
	}
	if req.Method == MethodGet && req.Body != nil {
		return 0, fmt.Errorf("%w: GET request with body", ErrInvalidArgument)
	}

	b := fixedBuf{dst: dst}
	b.str(req.Method.String())
	b.str(" ")
	b.str(req.Path)
	b.str(" HTTP/1.1\r\n")
	b.str("Host: ")
	b.str(req.Host)
	b.str(":")
	b.str(strconv.Itoa(int(req.Port)))
	b.str("\r\n")
	b.str("User-Agent: ")
	b.str(userAgent)
	b.str("\r\n")
	b.str("Accept: application/json\r\n")
	b.str("Connection: close\r\n")
	if req.Body != nil {
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}
		b.str("Content-Type: ")
		b.str(ct)
		b.str("\r\n")
		b.str("Content-Length: ")
		b.str(strconv.Itoa(len(req.Body)))
		b.str("\r\n")
	}
	b.str("\r\n")
	b.raw(req.Body)
	if b.overflow {
		return 0, ErrBufferTooSmall
	}
	return b.n, nil
}

// ParseResponse parses a received response buffer: status code from the
// status line, headers up to the blank line, then body view and framing
// metadata. The views alias buf.
func ParseResponse(buf []byte) (*Response, error) {
	eol := bytes.Index(buf, crlf)
	if eol < 0 {
		return nil, fmt.Errorf("%w: no status line", ErrMalformedResponse)
	}
	line := buf[:eol]
	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return nil, fmt.Errorf("%w: no status code", ErrMalformedResponse)
	}
	code, digits := 0, 0
	for j := sp + 1; j < len(line) && line[j] >= '0' && line[j] <= '9'; j++ {
		code = code*10 + int(line[j]-'0')
		digits++
	}
	if digits == 0 {
		return nil, fmt.Errorf("%w: no status code", ErrMalformedResponse)
	}

	bodyStart, contentLength, chunked, ok := frame(buf)
	if !ok {
		return nil, fmt.Errorf("%w: unterminated headers", ErrMalformedResponse)
	}
	return &Response{
		StatusCode:    code,
		Header:        buf[:bodyStart-len(crlf)],
		Body:          buf[bodyStart:],
		ContentLength: contentLength,
		Chunked:       chunked,
	}, nil
}

// Get returns the value of the first header matching name, case-insensitive,
// with surrounding whitespace trimmed.
func (r *Response) Get(name string) (string, bool) {
	v, ok := headerValue(r.Header, name)
	if !ok {
		return "", false
	}
	return string(v), true
}

// frame locates the header terminator in a possibly partial response buffer
// and extracts framing metadata. haveHeader is false until the blank line
// has arrived.
func frame(buf []byte) (bodyStart, contentLength int, chunked, haveHeader bool) {
	i := bytes.Index(buf, headerEnd)
	if i < 0 {
		return 0, -1, false, false
	}
	bodyStart = i + len(headerEnd)
	head := buf[:i]
	contentLength = -1
	if v, ok := headerValue(head, "Content-Length"); ok {
		if n, err := strconv.Atoi(string(v)); err == nil && n >= 0 {
			contentLength = n
		}
	}
	if v, ok := headerValue(head, "Transfer-Encoding"); ok {
		chunked = bytes.Contains(bytes.ToLower(v), []byte("chunked"))
	}
	return bodyStart, contentLength, chunked, true
}

// responseComplete implements the framing completion rule: the header
// terminator has arrived and, when a Content-Length is declared, the body
// covers at least that many bytes. Chunked and length-less responses are
// framed by connection close instead and never report complete here.
func responseComplete(buf []byte) bool {
	bodyStart, contentLength, chunked, ok := frame(buf)
	if !ok || chunked || contentLength < 0 {
		return false
	}
	return len(buf)-bodyStart >= contentLength
}

// headerValue scans header lines (skipping the first, the status line) for a
// case-insensitive name match and returns the first value, OWS-trimmed.
func headerValue(header []byte, name string) ([]byte, bool) {
	rest := header
	if i := bytes.Index(rest, crlf); i >= 0 {
		rest = rest[i+len(crlf):]
	} else {
		return nil, false
	}
	for len(rest) > 0 {
		line := rest
		if i := bytes.Index(rest, crlf); i >= 0 {
			line = rest[:i]
			rest = rest[i+len(crlf):]
		} else {
			rest = nil
		}
		if len(line) <= len(name) || line[len(name)] != ':' {
			continue
		}
		if !asciiEqualFold(line[:len(name)], name) {
			continue
		}
		v := line[len(name)+1:]
		for len(v) > 0 && (v[0] == ' ' || v[0] == '\t') {
			v = v[1:]
		}
		for len(v) > 0 && (v[len(v)-1] == ' ' || v[len(v)-1] == '\t') {
			v = v[:len(v)-1]
		}
		return v, true
	}
	return nil, false
}

// asciiEqualFold reports whether b equals s under ASCII case folding,
// without allocating.
func asciiEqualFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		cb, cs := b[i], s[i]
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if 'A' <= cs && cs <= 'Z' {
			cs += 'a' - 'A'
		}
		if cb != cs {
			return false
		}
	}
	return true
}
