// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qhttp

import (
	"errors"
	"net/netip"
)

// ServeFunc produces the in-process peer's response for a Pipe connection.
// It is called once per Poll with everything received so far and returns the
// full response once done is true. Returning done with an empty response
// models a peer that closes without answering.
type ServeFunc func(received []byte) (response []byte, done bool)

// Pipe is an in-memory Driver: dials connect to an in-process ServeFunc
// instead of a network. All callbacks fire inside Poll, mirroring the
// cooperative delivery contract of a real non-blocking driver, which makes
// Pipe suitable for deterministic end-to-end tests without sockets.
//
// The knob fields configure fault injection and pacing; set them before
// dialing. Pipe is not safe for concurrent use, as Drivers here never are.
type Pipe struct {
	serve ServeFunc

	// Hosts maps non-literal hostnames to addresses. When nil, every name
	// resolves to 127.0.0.1; when set, unknown names fail resolution.
	Hosts map[string]netip.Addr

	// ResolveErr fails every name lookup via the resolve callback.
	ResolveErr error

	// DialErr fails Dial synchronously.
	DialErr error

	// ConnectErr reports an asynchronous connection failure (via the Failed
	// callback) instead of connecting.
	ConnectErr error

	// ConnectAfter is the number of Polls before the connected callback
	// fires. Zero connects on the first Poll; negative never connects, which
	// models a peer that never completes the connect phase.
	ConnectAfter int

	// WriteWindow caps the bytes a handle accepts per Poll interval; further
	// writes return ErrWouldBlock until the next Poll. Zero is unlimited.
	WriteWindow int

	// ChunkSize paces response delivery, one chunk per Poll. Zero delivers
	// the whole response at once.
	ChunkSize int

	// KeepOpen suppresses the peer close normally delivered after the
	// response, modeling a server that leaves the connection hanging.
	KeepOpen bool

	actions []func()
	conns   []*pipeConn
	open    int
}

// NewPipe returns a Pipe serving every connection with serve.
func NewPipe(serve ServeFunc) *Pipe {
	return &Pipe{serve: serve}
}

// OpenHandles returns the number of live (not yet released) handles, for
// verifying that every exit path gives its connection back.
func (p *Pipe) OpenHandles() int { return p.open }

// Resolve implements Driver. Lookups complete on the next Poll, like a DNS
// answer arriving from the network.
func (p *Pipe) Resolve(host string, fn ResolveFunc) error {
	p.actions = append(p.actions, func() {
		if p.ResolveErr != nil {
			fn(netip.Addr{}, p.ResolveErr)
			return
		}
		if p.Hosts != nil {
			addr, ok := p.Hosts[host]
			if !ok {
				fn(netip.Addr{}, errors.New("pipe: no such host: "+host))
				return
			}
			fn(addr, nil)
			return
		}
		fn(netip.MustParseAddr("127.0.0.1"), nil)
	})
	return nil
}

// Dial implements Driver.
func (p *Pipe) Dial(addr netip.Addr, port uint16, ev Events) (Handle, error) {
	if p.DialErr != nil {
		return nil, p.DialErr
	}
	h := &pipeConn{p: p, ev: ev}
	p.conns = append(p.conns, h)
	p.open++
	return h, nil
}

// Poll implements Driver: delivers pending resolve answers and advances
// every live connection by one step.
func (p *Pipe) Poll() {
	acts := p.actions
	p.actions = nil
	for _, fn := range acts {
		fn()
	}
	for _, h := range p.conns {
		h.step()
	}
}

type pipeConn struct {
	p  *Pipe
	ev Events

	polls      int
	connected  bool
	released   bool
	windowUsed int

	received  []byte
	response  []byte
	respSent  int
	responded bool
	closeSent bool
}

func (h *pipeConn) Write(b []byte) (int, error) {
	if h.released {
		return 0, ErrConnectionClosed
	}
	if !h.connected {
		return 0, errors.New("pipe: write before connected")
	}
	n := len(b)
	if w := h.p.WriteWindow; w > 0 {
		if room := w - h.windowUsed; n > room {
			n = room
		}
		if n == 0 {
			return 0, ErrWouldBlock
		}
	}
	h.received = append(h.received, b[:n]...)
	h.windowUsed += n
	if n < len(b) {
		return n, ErrWouldBlock
	}
	return n, nil
}

func (h *pipeConn) Close() error {
	h.release()
	return nil
}

func (h *pipeConn) Abort() { h.release() }

func (h *pipeConn) release() {
	if h.released {
		return
	}
	h.released = true
	h.p.open--
}

// step advances the connection one Poll: connect (or fail), produce the
// response, deliver it chunk by chunk, then signal peer close.
func (h *pipeConn) step() {
	if h.released {
		return
	}
	h.windowUsed = 0
	if !h.connected {
		if h.p.ConnectAfter < 0 {
			return
		}
		if h.polls < h.p.ConnectAfter {
			h.polls++
			return
		}
		if h.p.ConnectErr != nil {
			h.release()
			h.ev.Failed(h.p.ConnectErr)
			return
		}
		h.connected = true
		h.ev.Connected()
		return
	}
	if !h.responded {
		out, done := h.p.serve(h.received)
		if !done {
			return
		}
		h.response = out
		h.responded = true
	}
	if h.respSent < len(h.response) {
		chunk := len(h.response) - h.respSent
		if h.p.ChunkSize > 0 && chunk > h.p.ChunkSize {
			chunk = h.p.ChunkSize
		}
		h.ev.Data(h.response[h.respSent : h.respSent+chunk])
		h.respSent += chunk
		return
	}
	if !h.closeSent && !h.p.KeepOpen {
		h.closeSent = true
		h.ev.Closed()
	}
}
