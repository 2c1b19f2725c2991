// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qhttp

import "net/netip"

// Driver is the non-blocking network driver this layer runs on. It is the
// only source of forward progress: pending I/O completes exclusively inside
// Poll, which synchronously runs any due callbacks on the calling goroutine.
// There is no background execution between polls.
//
// Every wait loop in this package calls Poll; a driver implementation must
// tolerate frequent calls with nothing to do.
type Driver interface {
	// Resolve starts an asynchronous name lookup. fn fires exactly once:
	// inline when the answer is cached, otherwise during a later Poll.
	// A non-nil return means the lookup could not even be started.
	Resolve(host string, fn ResolveFunc) error

	// Dial starts a connection attempt to addr:port and returns its handle.
	// Lifecycle notifications are delivered to ev during Poll. The handle is
	// live until Close, Abort, or a Failed callback, whichever comes first.
	Dial(addr netip.Addr, port uint16, ev Events) (Handle, error)

	// Poll runs pending callbacks. Wait loops invoke it repeatedly,
	// interleaved with a short cooperative yield.
	Poll()
}

// ResolveFunc receives the outcome of a Resolve call.
type ResolveFunc func(addr netip.Addr, err error)

// Handle is one in-flight or established connection owned by a Conn.
type Handle interface {
	// Write queues up to len(p) bytes for transmission and returns how many
	// were accepted. When the transmit window is full it returns the bytes
	// accepted so far together with ErrWouldBlock; the caller retries the
	// remainder after the next Poll.
	Write(p []byte) (int, error)

	// Close releases the handle after flushing queued data.
	Close() error

	// Abort releases the handle immediately, discarding queued data. Used on
	// timeout and handshake-failure teardown.
	Abort()
}

// Events is the typed callback sink a Conn registers with Dial. Callbacks
// fire only inside Poll (or inline inside Dial itself), never concurrently.
type Events interface {
	// Connected reports that the connection attempt succeeded.
	Connected()

	// Data delivers arrived bytes. The slice is only valid for the duration
	// of the call; the receiver must copy what it keeps.
	Data(p []byte)

	// Closed reports a graceful close by the peer. Buffered data remains
	// readable.
	Closed()

	// Failed reports a fatal connection error. The driver has already
	// released the underlying handle; the receiver must not touch it again.
	Failed(err error)
}
