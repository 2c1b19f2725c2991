// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ring implements a fixed-capacity byte queue with independent write
// and read positions. It decouples asynchronous arrival (a driver callback
// copying bytes in) from synchronous consumption (a poll loop draining bytes
// out) without growing memory after construction.
//
// The buffer is single-producer/single-consumer under the cooperative polling
// model: producer and consumer run on the same goroutine, interleaved by
// explicit Poll calls, so no index is ever mutated from two call sites at
// once and no atomics are required.
package ring

// Buffer is a bounded circular byte queue. Capacity is rounded up to a power
// of two so that index arithmetic reduces to masking. One slot is always kept
// free to disambiguate full from empty, so the usable capacity is one byte
// less than the allocated size.
type Buffer struct {
	buf  []byte
	mask uint32

	head uint32 // write position, advanced only by Write
	tail uint32 // read position, advanced only by Read

	dropped uint64
}

const minSize = 2

// New returns a Buffer whose usable capacity is at least capacity-1 bytes.
// The allocated size is capacity rounded up to the next power of two.
func New(capacity int) *Buffer {
	size := minSize
	for size < capacity {
		size <<= 1
	}
	return &Buffer{
		buf:  make([]byte, size),
		mask: uint32(size - 1),
	}
}

// Cap returns the usable capacity in bytes (allocated size minus the
// full/empty disambiguation slot).
func (b *Buffer) Cap() int { return len(b.buf) - 1 }

// Len returns the number of buffered bytes awaiting consumption.
func (b *Buffer) Len() int { return int((b.head - b.tail) & b.mask) }

// Free returns the number of bytes Write can accept without dropping.
func (b *Buffer) Free() int { return b.Cap() - b.Len() }

// Dropped returns the total number of bytes discarded by Write because the
// buffer was full at arrival time.
func (b *Buffer) Dropped() uint64 { return b.dropped }

// Write copies as much of p as fits and returns the number of bytes copied.
// Bytes that do not fit are dropped and accounted in Dropped; they are gone,
// there is no partial-retry contract on the producer side. Producer only.
func (b *Buffer) Write(p []byte) int {
	n := len(p)
	if free := b.Free(); n > free {
		b.dropped += uint64(n - free)
		n = free
	}
	if n == 0 {
		return 0
	}
	head := b.head & b.mask
	first := copy(b.buf[head:], p[:n])
	if first < n {
		copy(b.buf, p[first:n])
	}
	b.head += uint32(n)
	return n
}

// Read copies up to len(p) buffered bytes into p and returns the count.
// Returns 0 when the buffer is empty. Consumer only.
func (b *Buffer) Read(p []byte) int {
	n := b.Len()
	if n > len(p) {
		n = len(p)
	}
	if n == 0 {
		return 0
	}
	tail := b.tail & b.mask
	first := copy(p[:n], b.buf[tail:])
	if first < n {
		copy(p[first:n], b.buf)
	}
	b.tail += uint32(n)
	return n
}

// Reset discards buffered bytes and the drop accounting, returning the
// Buffer to its initial state without reallocating.
func (b *Buffer) Reset() {
	b.head = 0
	b.tail = 0
	b.dropped = 0
}
