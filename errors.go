// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qhttp

import (
	"errors"
	"strconv"

	"code.hybscloud.com/iox"
)

var (
	// ErrInvalidArgument reports an invalid configuration, nil driver, or a
	// malformed request (empty host, GET with a body, bad path).
	ErrInvalidArgument = errors.New("qhttp: invalid argument")

	// ErrDNSFailure reports that the driver could not resolve the host.
	ErrDNSFailure = errors.New("qhttp: dns resolution failed")

	// ErrConnectFailure reports that the connection attempt was refused,
	// aborted, or otherwise failed before the connected callback fired.
	ErrConnectFailure = errors.New("qhttp: connect failed")

	// ErrSendFailure reports a non-retriable error on the send path.
	ErrSendFailure = errors.New("qhttp: send failed")

	// ErrReceiveFailure reports a non-retriable error on the receive path,
	// including ring-buffer overflow when strict overflow mode is enabled.
	ErrReceiveFailure = errors.New("qhttp: receive failed")

	// ErrMalformedResponse reports a response with no status line or with
	// headers that never terminate in a blank line.
	ErrMalformedResponse = errors.New("qhttp: malformed response")

	// ErrBufferTooSmall reports that a fixed buffer could not hold the whole
	// request or response. For request builds nothing has been sent; the
	// destination buffer content is unspecified and must not be reused.
	ErrBufferTooSmall = errors.New("qhttp: buffer too small")

	// ErrConnectionClosed reports that the peer closed the connection before
	// the operation could complete.
	ErrConnectionClosed = errors.New("qhttp: connection closed")
)

// ErrWouldBlock is the non-blocking control-flow signal shared with the
// network driver and the record layer: the operation made no progress and
// should be retried after the next poll. It is never a failure.
//
// Exposed for convenience; it is the same value as iox.ErrWouldBlock, so
// comparisons work regardless of which package the caller imports.
var ErrWouldBlock = iox.ErrWouldBlock

// Phase identifies which bounded wait loop a timeout elapsed in.
type Phase uint8

const (
	PhaseResolve Phase = iota + 1
	PhaseConnect
	PhaseHandshake
	PhaseSend
	PhaseReceive
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case PhaseResolve:
		return "resolve"
	case PhaseConnect:
		return "connect"
	case PhaseHandshake:
		return "handshake"
	case PhaseSend:
		return "send"
	case PhaseReceive:
		return "receive"
	default:
		return "unknown"
	}
}

// TimeoutError reports that a phase deadline elapsed before the operation
// completed. The connection is torn down before the error is returned.
type TimeoutError struct {
	Phase Phase
}

func (e *TimeoutError) Error() string { return "qhttp: timeout during " + e.Phase.String() }

// Timeout reports true so the error satisfies net.Error-style timeout checks.
func (e *TimeoutError) Timeout() bool { return true }

// VerifyFlags records why peer certificate verification failed. Zero means
// the chain verified cleanly (the handshake failed for another reason).
type VerifyFlags uint8

const (
	VerifyExpired VerifyFlags = 1 << iota
	VerifyRevoked
	VerifyNameMismatch
	VerifyUntrusted
)

// String returns a comma-separated list of the set flags.
func (f VerifyFlags) String() string {
	if f == 0 {
		return "ok"
	}
	var s string
	appendFlag := func(name string) {
		if s != "" {
			s += ","
		}
		s += name
	}
	if f&VerifyExpired != 0 {
		appendFlag("expired")
	}
	if f&VerifyRevoked != 0 {
		appendFlag("revoked")
	}
	if f&VerifyNameMismatch != 0 {
		appendFlag("name mismatch")
	}
	if f&VerifyUntrusted != 0 {
		appendFlag("untrusted")
	}
	return s
}

// HandshakeError reports a fatal encrypted-channel handshake failure.
// Reason carries the certificate verification sub-reason when verification
// was the cause; Err is the record layer's own error.
type HandshakeError struct {
	Reason VerifyFlags
	Err    error
}

func (e *HandshakeError) Error() string {
	msg := "qhttp: handshake failed"
	if e.Reason != 0 {
		msg += " (verification: " + e.Reason.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// StatusError reports an HTTP status code of 400 or above. The parsed
// response is still returned alongside it so callers can inspect error
// bodies and headers.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "qhttp: server returned status " + strconv.Itoa(e.Code)
}
