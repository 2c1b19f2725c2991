// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qhttp

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Channel is the byte-oriented bridge a record layer does its raw IO
// through. Both primitives are single attempts: they return ErrWouldBlock
// instead of waiting, and a distinguished closed result (io.EOF on receive,
// ErrConnectionClosed on send) once the peer is gone. *Conn implements it.
type Channel interface {
	SendBytes(p []byte) (int, error)
	RecvBytes(p []byte) (int, error)
}

// RecordLayer is the handshake/record library boundary. Implementations own
// the cryptography and the authentication policy: verifying the peer chain
// against the configured trust anchor, bounding chain depth, and presenting
// a local identity when mutual authentication is configured.
//
// All methods follow the would-block convention: ErrWouldBlock means "poll
// the driver and call again", anything else is final for the connection.
type RecordLayer interface {
	// Handshake attempts one handshake step. nil means the channel is
	// established and authenticated; ErrWouldBlock means more IO is needed;
	// any other error is fatal and fail-closed.
	Handshake() error

	// Read returns decrypted application bytes. io.EOF reports a clean
	// close-notify from the peer.
	Read(p []byte) (int, error)

	// Write encrypts and sends application bytes, possibly partially.
	Write(p []byte) (int, error)

	// VerifyResult reports why certificate verification failed, if it did.
	// Meaningful after a fatal Handshake error; zero when the chain was fine.
	VerifyResult() VerifyFlags

	// CloseNotify sends the protocol's close alert, best effort.
	CloseNotify() error
}

// RecordFactory builds a RecordLayer bound to ch. serverName is the dialed
// host; the factory decides whether to use it for SNI and name verification
// (literal IP peers commonly skip SNI).
type RecordFactory func(ch Channel, serverName string) (RecordLayer, error)

// SecureConn is a Conn with an encrypted channel layered on top. After the
// handshake completes, all Send/Recv traffic for the session's lifetime goes
// through the record layer; the raw Conn primitives are only used by the
// record layer itself.
type SecureConn struct {
	conn *Conn
	rl   RecordLayer

	// readErr holds an error the record layer delivered together with data.
	// The data goes out first; the error is reported on the next Recv.
	readErr error
}

// DialSecure dials like Dial and then drives the record layer handshake to
// completion, bounded by the handshake timeout. Verification failure is
// fail-closed: the connection is aborted and the sub-reason is carried in
// the returned HandshakeError.
func DialSecure(drv Driver, host string, port uint16, timeout time.Duration, opts ...Option) (*SecureConn, error) {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	checkOptions(&o)
	return dialSecure(drv, host, port, timeout, o)
}

func dialSecure(drv Driver, host string, port uint16, timeout time.Duration, o Options) (*SecureConn, error) {
	if o.Record == nil {
		return nil, fmt.Errorf("%w: no record layer configured", ErrInvalidArgument)
	}
	c, err := dial(drv, host, port, timeout, o)
	if err != nil {
		return nil, err
	}
	rl, err := o.Record(c, host)
	if err != nil {
		c.abort()
		return nil, &HandshakeError{Err: err}
	}

	c.transition(StateHandshaking)
	c.log.Debug("handshake started", "host", host)
	deadline := time.Now().Add(o.HandshakeTimeout)
	for {
		err := rl.Handshake()
		if err == nil {
			break
		}
		if errors.Is(err, ErrWouldBlock) {
			if werr := c.wait(deadline, PhaseHandshake); werr != nil {
				c.abort()
				return nil, werr
			}
			continue
		}
		reason := rl.VerifyResult()
		c.abort()
		return nil, &HandshakeError{Reason: reason, Err: err}
	}
	c.transition(StateReady)
	c.log.Debug("handshake complete", "host", host)
	return &SecureConn{conn: c, rl: rl}, nil
}

// Send writes all of p through the record layer, polling on would-block,
// until done or the deadline elapses.
func (s *SecureConn) Send(p []byte, timeout time.Duration) (int, error) {
	if s.conn.state != StateReady {
		return 0, ErrConnectionClosed
	}
	deadline := time.Now().Add(timeout)
	sent := 0
	for sent < len(p) {
		n, err := s.rl.Write(p[sent:])
		sent += n
		if err == nil {
			// Guard against record layers that violate the Write contract by
			// accepting zero bytes without reporting would-block. Without
			// this, the loop can spin indefinitely.
			if n == 0 {
				return sent, fmt.Errorf("%w: %w", ErrSendFailure, io.ErrShortWrite)
			}
			continue
		}
		if errors.Is(err, ErrWouldBlock) {
			if werr := s.conn.wait(deadline, PhaseSend); werr != nil {
				return sent, werr
			}
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
			return sent, ErrConnectionClosed
		}
		return sent, fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	return sent, nil
}

// Recv fills p with decrypted bytes, polling until data arrives, the peer
// closes the session (0, io.EOF), or the deadline elapses. An error the
// record layer returns alongside data is held back and reported by the next
// Recv, after the data has been delivered.
func (s *SecureConn) Recv(p []byte, timeout time.Duration) (int, error) {
	if len(p) == 0 {
		return 0, ErrInvalidArgument
	}
	if s.conn.state != StateReady {
		return 0, ErrConnectionClosed
	}
	deadline := time.Now().Add(timeout)
	for {
		if s.readErr != nil {
			if errors.Is(s.readErr, io.EOF) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("%w: %v", ErrReceiveFailure, s.readErr)
		}
		n, err := s.rl.Read(p)
		if n > 0 {
			if err != nil && !errors.Is(err, ErrWouldBlock) {
				s.readErr = err
			}
			return n, nil
		}
		if err == nil {
			// Guard against record layers that violate the Read contract by
			// returning (0, nil) on a non-empty buffer. Without this, the
			// loop can spin indefinitely.
			return 0, fmt.Errorf("%w: %w", ErrReceiveFailure, io.ErrNoProgress)
		}
		if errors.Is(err, ErrWouldBlock) {
			if werr := s.conn.wait(deadline, PhaseReceive); werr != nil {
				return 0, werr
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("%w: %v", ErrReceiveFailure, err)
	}
}

// Close sends a best-effort close notify when the session was established,
// then tears down the underlying connection. Idempotent.
func (s *SecureConn) Close() error {
	if s.conn.state == StateReady {
		_ = s.rl.CloseNotify()
	}
	return s.conn.Close()
}

// State returns the underlying connection state.
func (s *SecureConn) State() State { return s.conn.state }

// Conn exposes the underlying transport connection for inspection. Using
// its raw Send/Recv after the handshake corrupts the record stream.
func (s *SecureConn) Conn() *Conn { return s.conn }
