// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package qhttp implements a quasi-synchronous HTTP/1.1 client on top of a
// non-blocking, callback-driven network driver with a single cooperative
// poll entry point.
//
// Semantics and design:
//   - Quasi-synchronous: callers get a plain "send one request, get one
//     response" contract. Internally every blocking-looking operation is a
//     polling loop with an explicit per-phase deadline; no progress happens
//     without a Driver.Poll call issued by this package's own loops.
//   - Bounded memory: received bytes land in a fixed-size ring buffer,
//     requests are built into a fixed buffer, responses accumulate into a
//     fixed buffer. Nothing grows after allocation; overflow is an error
//     (ErrBufferTooSmall) or, on the receive ring, a counted drop.
//   - Non-blocking first: iox.ErrWouldBlock (re-exported as ErrWouldBlock)
//     is the control-flow signal between the driver, the transport, and the
//     optional record layer. It is never a failure.
//   - One connection per request: Connection: close framing, no reuse, no
//     multiplexing, no automatic retry. The handle is released on every exit
//     path because the driver's connection pool is small and fixed.
package qhttp

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Client executes single request/response cycles over a Driver. The request
// and response buffers are allocated once at construction and reused across
// calls, so a returned Response's views are valid only until the next Do.
//
// Client is not safe for concurrent use; the cooperative polling model is
// single-threaded by construction.
type Client struct {
	drv     Driver
	opts    Options
	reqBuf  []byte
	respBuf []byte
}

// New returns a Client over drv. Zero-valued options fall back to defaults.
func New(drv Driver, opts ...Option) *Client {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	checkOptions(&o)
	return &Client{
		drv:     drv,
		opts:    o,
		reqBuf:  make([]byte, o.RequestBufferSize),
		respBuf: make([]byte, o.ResponseBufferSize),
	}
}

// session is the transport surface Do runs on, satisfied by both *Conn and
// *SecureConn.
type session interface {
	Send(p []byte, timeout time.Duration) (int, error)
	Recv(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// Do executes one full request/response cycle: dial (with handshake when the
// scheme is secure), build, send, receive until framed, parse, close. The
// connection is torn down on every path, success or failure.
//
// A status code of 400 or above is not a transport error: the parsed
// Response is returned together with a *StatusError so the caller can
// inspect the error body.
func (c *Client) Do(req *Request, timeout time.Duration) (*Response, error) {
	if c == nil || c.drv == nil || req == nil {
		return nil, ErrInvalidArgument
	}
	r := *req
	if r.Port == 0 {
		r.Port = c.opts.Scheme.DefaultPort()
	}

	// Build before dialing: a request that cannot fit should not cost a
	// connection from the driver's fixed pool.
	n, err := buildRequest(c.reqBuf, &r, c.opts.UserAgent)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	var s session
	if c.opts.Scheme.Secure() {
		s, err = dialSecure(c.drv, r.Host, r.Port, timeout, c.opts)
	} else {
		s, err = dial(c.drv, r.Host, r.Port, timeout, c.opts)
	}
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if _, err := s.Send(c.reqBuf[:n], time.Until(deadline)); err != nil {
		return nil, err
	}

	total := 0
	sawEOF := false
	for !responseComplete(c.respBuf[:total]) {
		if sawEOF {
			break
		}
		if total == len(c.respBuf) {
			return nil, fmt.Errorf("%w: response exceeds %d bytes",
				ErrBufferTooSmall, len(c.respBuf))
		}
		m, rerr := s.Recv(c.respBuf[total:], time.Until(deadline))
		total += m
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				sawEOF = true
				continue
			}
			return nil, rerr
		}
	}

	// Framing check at exit: close-framed responses are only complete when
	// the headers arrived whole and any declared length was satisfied.
	bodyStart, contentLength, _, haveHeader := frame(c.respBuf[:total])
	if !haveHeader {
		return nil, fmt.Errorf("%w: peer closed before headers completed", ErrConnectionClosed)
	}
	if contentLength >= 0 && total-bodyStart < contentLength {
		return nil, fmt.Errorf("%w: peer closed mid-body", ErrConnectionClosed)
	}

	resp, err := ParseResponse(c.respBuf[:total])
	if err != nil {
		return nil, err
	}
	if resp.ContentLength >= 0 && len(resp.Body) > resp.ContentLength {
		resp.Body = resp.Body[:resp.ContentLength]
	}
	c.opts.Logger.Debug("request complete",
		"method", r.Method.String(), "path", r.Path,
		"status", resp.StatusCode, "body_len", len(resp.Body))
	if resp.StatusCode >= 400 {
		return resp, &StatusError{Code: resp.StatusCode}
	}
	return resp, nil
}

// Get performs a GET request. Port zero selects the scheme default.
func (c *Client) Get(host string, port uint16, path string, timeout time.Duration) (*Response, error) {
	return c.Do(&Request{Method: MethodGet, Host: host, Port: port, Path: path}, timeout)
}

// Post performs a POST request. An empty contentType defaults to
// application/json.
func (c *Client) Post(host string, port uint16, path string, body []byte, contentType string, timeout time.Duration) (*Response, error) {
	return c.Do(&Request{
		Method: MethodPost, Host: host, Port: port, Path: path,
		Body: body, ContentType: contentType,
	}, timeout)
}

// Patch performs a PATCH request. An empty contentType defaults to
// application/json.
func (c *Client) Patch(host string, port uint16, path string, body []byte, contentType string, timeout time.Duration) (*Response, error) {
	return c.Do(&Request{
		Method: MethodPatch, Host: host, Port: port, Path: path,
		Body: body, ContentType: contentType,
	}, timeout)
}
