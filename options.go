// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package qhttp

import (
	"log/slog"
	"time"
)

// Options configures connections and clients.
type Options struct {
	// Scheme selects plain or encrypted transport and the default port.
	Scheme Scheme

	// RetryDelay controls how wait loops pause between polls:
	//   - zero: yield (runtime.Gosched) and retry
	//   - positive: sleep for the duration and retry
	// Negative values are treated as zero; unlike a pure byte pipe, every
	// operation here carries its own deadline, so "fail instead of waiting"
	// is expressed by a short timeout rather than a nonblock mode.
	RetryDelay time.Duration

	// RecvRingSize is the receive ring buffer size in bytes, rounded up to a
	// power of two. One slot is reserved, so usable capacity is one less.
	RecvRingSize int

	// RequestBufferSize and ResponseBufferSize size the fixed buffers a
	// Client builds requests into and accumulates responses into. Neither
	// grows after allocation; overflow is ErrBufferTooSmall.
	RequestBufferSize  int
	ResponseBufferSize int

	// StrictOverflow upgrades receive-ring overflow from the documented
	// drop-and-flag behavior to a hard ErrReceiveFailure on the next read.
	// Dropped bytes desynchronize HTTP framing, so callers that cannot
	// tolerate a corrupt message boundary should enable this.
	StrictOverflow bool

	// UserAgent is the fixed User-Agent header value on built requests.
	UserAgent string

	// HandshakeTimeout bounds the encrypted-channel handshake phase.
	HandshakeTimeout time.Duration

	// Record constructs the record layer for encrypted connections. Required
	// when Scheme is SchemeHTTPS; ignored otherwise.
	Record RecordFactory

	// Logger receives debug-level phase logs. Defaults to slog.Default().
	Logger *slog.Logger
}

var defaultOptions = Options{
	Scheme:             SchemeHTTP,
	RetryDelay:         time.Millisecond,
	RecvRingSize:       2048,
	RequestBufferSize:  2048,
	ResponseBufferSize: 8192,
	UserAgent:          "qhttp/1.0",
	HandshakeTimeout:   15 * time.Second,
}

// checkOptions fills zero values with defaults.
func checkOptions(o *Options) {
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.RecvRingSize <= 0 {
		o.RecvRingSize = defaultOptions.RecvRingSize
	}
	if o.RequestBufferSize <= 0 {
		o.RequestBufferSize = defaultOptions.RequestBufferSize
	}
	if o.ResponseBufferSize <= 0 {
		o.ResponseBufferSize = defaultOptions.ResponseBufferSize
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultOptions.UserAgent
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultOptions.HandshakeTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Option mutates Options.
type Option func(*Options)

// WithScheme selects the transport scheme (SchemeHTTP or SchemeHTTPS).
func WithScheme(s Scheme) Option {
	return func(o *Options) { o.Scheme = s }
}

// WithRetryDelay sets the pause between polls in wait loops.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) { o.RetryDelay = d }
}

// WithYield makes wait loops yield the processor between polls instead of
// sleeping. Lowest latency, highest CPU burn.
func WithYield() Option {
	return func(o *Options) { o.RetryDelay = 0 }
}

// WithRecvRingSize sets the receive ring buffer size in bytes.
func WithRecvRingSize(n int) Option {
	return func(o *Options) { o.RecvRingSize = n }
}

// WithRequestBuffer sets the fixed request build buffer size in bytes.
func WithRequestBuffer(n int) Option {
	return func(o *Options) { o.RequestBufferSize = n }
}

// WithResponseBuffer sets the fixed response accumulation buffer size in bytes.
func WithResponseBuffer(n int) Option {
	return func(o *Options) { o.ResponseBufferSize = n }
}

// WithStrictOverflow makes receive-ring overflow a hard receive failure.
func WithStrictOverflow() Option {
	return func(o *Options) { o.StrictOverflow = true }
}

// WithUserAgent sets the User-Agent header on built requests.
func WithUserAgent(ua string) Option {
	return func(o *Options) { o.UserAgent = ua }
}

// WithHandshakeTimeout bounds the encrypted-channel handshake phase.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}

// WithRecordLayer installs the record-layer factory used for SchemeHTTPS
// connections and implies SchemeHTTPS.
func WithRecordLayer(f RecordFactory) Option {
	return func(o *Options) {
		o.Record = f
		o.Scheme = SchemeHTTPS
	}
}

// WithLogger sets the structured logger for debug-level phase logs.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
