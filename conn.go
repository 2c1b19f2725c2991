// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qhttp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"runtime"
	"time"

	"code.hybscloud.com/qhttp/internal/ring"
)

// Conn is one transport connection over a non-blocking Driver. It owns the
// underlying handle, the receive ring buffer, and the lifecycle state, and
// presents blocking-looking Send/Recv on top of them.
//
// Every blocking-looking call is really a polling loop with an explicit
// deadline: no progress happens without a Poll call issued from inside this
// package. A Conn is single-use; after Close or an error, dial a new one.
type Conn struct {
	drv    Driver
	handle Handle
	state  State
	ring   *ring.Buffer
	log    *slog.Logger

	host string
	addr netip.Addr
	port uint16

	retryDelay time.Duration
	strict     bool

	peerClosed bool
	lastErr    error

	bytesSent     uint64
	bytesReceived uint64
}

// Dial resolves host (skipped for literal addresses), opens a connection to
// host:port, and polls until the attempt completes, fails, or timeout
// elapses. On every failure path the underlying handle has been released.
func Dial(drv Driver, host string, port uint16, timeout time.Duration, opts ...Option) (*Conn, error) {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	checkOptions(&o)
	return dial(drv, host, port, timeout, o)
}

func dial(drv Driver, host string, port uint16, timeout time.Duration, o Options) (*Conn, error) {
	if drv == nil || host == "" || port == 0 {
		return nil, ErrInvalidArgument
	}
	c := &Conn{
		drv:        drv,
		state:      StateIdle,
		ring:       ring.New(o.RecvRingSize),
		log:        o.Logger,
		host:       host,
		port:       port,
		retryDelay: o.RetryDelay,
		strict:     o.StrictOverflow,
	}
	deadline := time.Now().Add(timeout)

	// Phase 1: name resolution. Literal addresses skip the driver entirely.
	if addr, err := netip.ParseAddr(host); err == nil {
		c.addr = addr
		c.transition(StateResolved)
	} else {
		c.transition(StateResolving)
		if err := drv.Resolve(host, c.resolveDone); err != nil {
			c.transition(StateError)
			return nil, fmt.Errorf("%w: %s: %v", ErrDNSFailure, host, err)
		}
		for c.state == StateResolving {
			if err := c.wait(deadline, PhaseResolve); err != nil {
				c.transition(StateError)
				return nil, err
			}
		}
		if c.state != StateResolved {
			if c.lastErr != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrDNSFailure, host, c.lastErr)
			}
			return nil, fmt.Errorf("%w: %s", ErrDNSFailure, host)
		}
	}
	c.log.Debug("resolved", "host", host, "addr", c.addr.String())

	// Phase 2: connection establishment.
	c.transition(StateConnecting)
	h, err := drv.Dial(c.addr, port, c)
	if err != nil {
		c.transition(StateError)
		return nil, fmt.Errorf("%w: %v", ErrConnectFailure, err)
	}
	c.handle = h
	for c.state == StateConnecting {
		if err := c.wait(deadline, PhaseConnect); err != nil {
			c.abort()
			return nil, err
		}
	}
	if c.state != StateConnected {
		lastErr := c.lastErr
		c.abort()
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectFailure, lastErr)
		}
		return nil, ErrConnectFailure
	}
	c.log.Debug("connected", "addr", c.addr.String(), "port", c.port)
	return c, nil
}

// resolveDone is the ResolveFunc registered with the driver.
func (c *Conn) resolveDone(addr netip.Addr, err error) {
	if err != nil {
		c.lastErr = err
		c.transition(StateError)
		return
	}
	c.addr = addr
	c.transition(StateResolved)
}

// transition moves to the requested state when the edge is legal and is a
// no-op otherwise. Illegal edges are dropped rather than panicking so that a
// late driver callback cannot resurrect a terminal connection.
func (c *Conn) transition(to State) {
	if canEnter(c.state, to) {
		c.state = to
	}
}

// wait makes one unit of forward progress: poll the driver, check the
// deadline, then pause per the retry policy. Returns a phase-tagged timeout
// once the deadline has passed.
func (c *Conn) wait(deadline time.Time, phase Phase) error {
	c.drv.Poll()
	if !time.Now().Before(deadline) {
		return &TimeoutError{Phase: phase}
	}
	if c.retryDelay <= 0 {
		runtime.Gosched()
	} else {
		time.Sleep(c.retryDelay)
	}
	return nil
}

// Connected implements Events.
func (c *Conn) Connected() { c.transition(StateConnected) }

// Data implements Events: copies arrived bytes into the receive ring. Bytes
// beyond the free space are dropped and counted; see WithStrictOverflow for
// turning that into a hard failure on the consumer side.
func (c *Conn) Data(p []byte) {
	n := c.ring.Write(p)
	c.bytesReceived += uint64(n)
	if n < len(p) {
		c.log.Warn("receive ring full, dropping bytes",
			"dropped", len(p)-n, "total_dropped", c.ring.Dropped())
	}
}

// Closed implements Events: the peer closed gracefully. Buffered bytes stay
// readable; Recv reports io.EOF once drained.
func (c *Conn) Closed() { c.peerClosed = true }

// Failed implements Events: the driver reported a fatal error and has
// already released the handle.
func (c *Conn) Failed(err error) {
	c.lastErr = err
	c.handle = nil
	c.transition(StateError)
	c.log.Debug("connection failed", "addr", c.addr.String(), "err", err)
}

// Send writes all of p, polling whenever the transmit window is full, until
// done or the deadline elapses. Returns the bytes accepted so far alongside
// any error.
func (c *Conn) Send(p []byte, timeout time.Duration) (int, error) {
	if c.state != StateConnected && c.state != StateReady {
		return 0, ErrConnectionClosed
	}
	deadline := time.Now().Add(timeout)
	sent := 0
	for sent < len(p) {
		n, err := c.SendBytes(p[sent:])
		sent += n
		if err == nil {
			// Guard against drivers that violate the Handle contract by
			// accepting zero bytes without reporting would-block. Without
			// this, the loop can spin indefinitely.
			if n == 0 {
				return sent, fmt.Errorf("%w: %w", ErrSendFailure, io.ErrShortWrite)
			}
			continue
		}
		if errors.Is(err, ErrWouldBlock) {
			if werr := c.wait(deadline, PhaseSend); werr != nil {
				return sent, werr
			}
			continue
		}
		return sent, err
	}
	return sent, nil
}

// Recv fills p with buffered bytes, polling until at least one byte is
// available, the peer closes (0, io.EOF), or the deadline elapses.
func (c *Conn) Recv(p []byte, timeout time.Duration) (int, error) {
	if len(p) == 0 {
		return 0, ErrInvalidArgument
	}
	if c.state != StateConnected && c.state != StateReady {
		return 0, ErrConnectionClosed
	}
	deadline := time.Now().Add(timeout)
	for {
		n, err := c.RecvBytes(p)
		if n > 0 || !errors.Is(err, ErrWouldBlock) {
			return n, err
		}
		if werr := c.wait(deadline, PhaseReceive); werr != nil {
			return 0, werr
		}
	}
}

// SendBytes is the non-blocking byte-send primitive handed to the record
// layer: one write attempt, ErrWouldBlock when the window is full,
// ErrConnectionClosed once the handle is gone.
func (c *Conn) SendBytes(p []byte) (int, error) {
	if c.handle == nil || c.state.Terminal() {
		return 0, ErrConnectionClosed
	}
	n, err := c.handle.Write(p)
	c.bytesSent += uint64(n)
	if err != nil && !errors.Is(err, ErrWouldBlock) {
		return n, fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	return n, err
}

// RecvBytes is the non-blocking byte-receive primitive handed to the record
// layer: drains the ring, ErrWouldBlock when empty, io.EOF once the peer has
// closed and the ring is drained.
func (c *Conn) RecvBytes(p []byte) (int, error) {
	if c.strict && c.ring.Dropped() > 0 {
		return 0, fmt.Errorf("%w: receive ring overflow, %d bytes dropped",
			ErrReceiveFailure, c.ring.Dropped())
	}
	if n := c.ring.Read(p); n > 0 {
		return n, nil
	}
	if c.peerClosed {
		return 0, io.EOF
	}
	switch c.state {
	case StateError:
		if c.lastErr != nil {
			return 0, fmt.Errorf("%w: %v", ErrReceiveFailure, c.lastErr)
		}
		return 0, ErrReceiveFailure
	case StateClosed:
		return 0, ErrConnectionClosed
	}
	return 0, ErrWouldBlock
}

// Close releases the handle and resets the ring. Idempotent; safe on every
// exit path. The pool of concurrently open driver connections is small and
// fixed, so every operation must end here, success or failure.
func (c *Conn) Close() error {
	if c.state == StateClosed {
		return nil
	}
	if c.handle != nil {
		_ = c.handle.Close()
		c.handle = nil
	}
	c.ring.Reset()
	c.transition(StateClosed)
	c.log.Debug("connection closed", "addr", c.addr.String(), "port", c.port)
	return nil
}

// abort releases the handle without flushing, for timeout and handshake
// failure teardown.
func (c *Conn) abort() {
	if c.handle != nil {
		c.handle.Abort()
		c.handle = nil
	}
	c.ring.Reset()
	c.transition(StateClosed)
}

// State returns the current lifecycle state.
func (c *Conn) State() State { return c.state }

// Buffered returns the number of received bytes awaiting Recv.
func (c *Conn) Buffered() int { return c.ring.Len() }

// DroppedBytes returns the number of received bytes discarded because the
// ring was full at arrival time.
func (c *Conn) DroppedBytes() uint64 { return c.ring.Dropped() }

// BytesSent returns the total bytes accepted by the driver for transmission.
func (c *Conn) BytesSent() uint64 { return c.bytesSent }

// BytesReceived returns the total bytes copied into the receive ring.
func (c *Conn) BytesReceived() uint64 { return c.bytesReceived }

// RemoteAddr returns the resolved peer address and port.
func (c *Conn) RemoteAddr() netip.AddrPort { return netip.AddrPortFrom(c.addr, c.port) }
