// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sendbuf implements the adaptive write buffer a session appends
// encoded commands into before a deferred flush hands them to the
// transport.
//
// The buffer starts at a default size. When a command doesn't fit, whatever
// is already staged is flushed to the transport as-is (exactly once), and
// the buffer is replaced with one sized off its pre-overflow capacity
// before the encode is retried. After every full flush it decays back
// toward the default by at most 1/256 of its current high-water mark, so
// one oversized command does not pin the buffer at its peak size forever,
// but a burst of oversized commands also does not thrash between grow and
// shrink every turn.
package sendbuf

import (
	"github.com/valyala/bytebufferpool"

	"github.com/respwire/respwire/wire"
)

// DefaultSize is the send buffer's starting and floor capacity, matching
// the default set by the RESPWIRE_SEND_BUFFER_SIZE configuration knob.
const DefaultSize = 16384

// decayDivisor controls how aggressively the buffer shrinks back toward
// DefaultSize after a command forced it to grow: at most 1/256th of the
// current target per flush.
const decayDivisor = 256

// Buffer is an adaptive, growable byte buffer for encoded commands. It is
// not safe for concurrent use; it is owned by the single loop goroutine
// driving a session's send path.
type Buffer struct {
	pool        *bytebufferpool.Pool
	bb          *bytebufferpool.ByteBuffer
	defaultSize int
	targetCap   int
	flushPosted bool
	growths     int
}

// New returns a Buffer backed by pool (which may be nil, falling back to
// plain allocation) with the given default/floor size.
func New(pool *bytebufferpool.Pool, defaultSize int) *Buffer {
	b := &Buffer{pool: pool, defaultSize: defaultSize, targetCap: defaultSize}
	b.bb = b.acquire(defaultSize)
	return b
}

func (b *Buffer) acquire(capHint int) *bytebufferpool.ByteBuffer {
	if b.pool != nil {
		bb := b.pool.Get()
		bb.B = bb.B[:0]
		if cap(bb.B) < capHint {
			bb.B = make([]byte, 0, capHint)
		}
		return bb
	}
	return &bytebufferpool.ByteBuffer{B: make([]byte, 0, capHint)}
}

// Len returns the number of pending, unflushed bytes.
func (b *Buffer) Len() int { return len(b.bb.B) }

// CanRead reports whether there is anything pending to flush.
func (b *Buffer) CanRead() bool { return len(b.bb.B) > 0 }

// WritableRemaining returns how many more bytes can be appended before the
// buffer needs to grow.
func (b *Buffer) WritableRemaining() int { return cap(b.bb.B) - len(b.bb.B) }

// Bytes returns the pending bytes, for handing to a transport write. The
// slice is only valid until the next call to Append or Consume.
func (b *Buffer) Bytes() []byte { return b.bb.B }

// FlushFunc hands the buffer's currently staged bytes to a transport. It is
// called synchronously, at most once per Append/AppendRaw call, and only
// when an encode overflow forces the buffer to make room: staged is flushed
// as-is before the buffer is reallocated, so no command is ever reordered
// behind the one that triggered the overflow.
type FlushFunc func(staged []byte)

// Append encodes cmd into the buffer, growing and retrying as many times
// as necessary to make it fit. It never partially writes a command: a
// failed encode attempt leaves the buffer exactly as it was before the
// call. On the first overflow, whatever is already staged is handed to
// flush (if non-nil and non-empty) exactly once, and the replacement
// buffer is sized off the buffer's pre-overflow capacity rather than
// doubled blindly, since that capacity is now known to be unoccupied.
func (b *Buffer) Append(cmd wire.Command, flush FlushFunc) {
	n, ok := wire.Encode(b.bb.B[:cap(b.bb.B)], len(b.bb.B), cmd)
	if ok {
		b.bb.B = b.bb.B[:cap(b.bb.B)][:n]
		return
	}
	b.overflow(flush)
	for {
		n, ok := wire.Encode(b.bb.B[:cap(b.bb.B)], len(b.bb.B), cmd)
		if ok {
			b.bb.B = b.bb.B[:cap(b.bb.B)][:n]
			return
		}
		b.growOnly()
	}
}

// AppendRaw copies data directly into the buffer, growing as needed,
// bypassing command encoding entirely. Used for binary payloads that ride
// alongside (but outside) the RESP codec. Overflow handling mirrors Append:
// the first overflow flushes what's already staged, then sizes the
// replacement off the pre-overflow capacity.
func (b *Buffer) AppendRaw(data []byte, flush FlushFunc) {
	if len(data) > b.WritableRemaining() {
		b.overflow(flush)
		for len(data) > b.WritableRemaining() {
			b.growOnly()
		}
	}
	b.bb.B = append(b.bb.B, data...)
}

// overflow flushes whatever is currently staged (exactly once, if flush is
// non-nil and there is anything to send) and replaces the backing array
// with one sized max(defaultSize, freeAtBegin + freeAtBegin/2 + 1), where
// freeAtBegin is the buffer's capacity immediately before the overflow. The
// buffer is always empty after this call: either the staged bytes were
// handed off, or there were none to begin with.
func (b *Buffer) overflow(flush FlushFunc) {
	freeAtBegin := cap(b.bb.B)
	if flush != nil && len(b.bb.B) > 0 {
		flush(b.bb.B)
	}
	newCap := freeAtBegin + freeAtBegin/2 + 1
	if newCap < b.defaultSize {
		newCap = b.defaultSize
	}
	b.replace(newCap)
}

// growOnly doubles the (already-empty, post-overflow) buffer's capacity
// when a single command or payload still doesn't fit a freeAtBegin-sized
// replacement. There is nothing staged to preserve at this point, so no
// flush callback is involved.
func (b *Buffer) growOnly() {
	newCap := cap(b.bb.B) * 2
	if newCap == 0 {
		newCap = b.defaultSize
	}
	b.replace(newCap)
}

// replace swaps in a freshly acquired backing array of at least newCap,
// raises targetCap to match when newCap is the new high-water mark, and
// recycles the old array into the pool (if configured) for reuse.
func (b *Buffer) replace(newCap int) {
	old := b.bb
	b.bb = b.acquire(newCap)
	if newCap > b.targetCap {
		b.targetCap = newCap
	}
	b.growths++
	if b.pool != nil {
		old.B = old.B[:0]
		b.pool.Put(old)
	}
}

// Growths returns the number of times the buffer has reallocated to fit a
// command since the last call to ResetGrowthCounter.
func (b *Buffer) Growths() int { return b.growths }

// ResetGrowthCounter zeroes the growth counter Growths reports.
func (b *Buffer) ResetGrowthCounter() { b.growths = 0 }

// Consume drops the first n flushed bytes from the pending buffer, for the
// case where the transport only accepted a partial write. Callers that
// flushed the whole buffer should call Reset instead, which also applies
// decay.
func (b *Buffer) Consume(n int) {
	if n >= len(b.bb.B) {
		b.bb.B = b.bb.B[:0]
		return
	}
	copy(b.bb.B, b.bb.B[n:])
	b.bb.B = b.bb.B[:len(b.bb.B)-n]
}

// Reset marks the whole pending buffer as flushed and applies one step of
// decay: the target capacity shrinks by at most 1/256th, floored at
// defaultSize. If the decayed target is smaller than the buffer's actual
// capacity, the backing array is reallocated (and, when a pool is
// configured, the oversized one is recycled into it for some other
// session to reuse).
func (b *Buffer) Reset() {
	step := b.targetCap / decayDivisor
	if step < 1 {
		step = 1
	}
	b.targetCap -= step
	if b.targetCap < b.defaultSize {
		b.targetCap = b.defaultSize
	}

	if cap(b.bb.B) > b.targetCap {
		old := b.bb
		b.bb = b.acquire(b.targetCap)
		if b.pool != nil {
			old.B = old.B[:0]
			b.pool.Put(old)
		}
		return
	}
	b.bb.B = b.bb.B[:0]
}

// Recycle returns the buffer's backing storage to the pool, if any, and
// leaves the Buffer unusable. Called when a session closes.
func (b *Buffer) Recycle() {
	if b.pool != nil && b.bb != nil {
		b.bb.B = b.bb.B[:0]
		b.pool.Put(b.bb)
	}
	b.bb = nil
}

// MarkFlushPosted flips the flush-posted flag from false to true and
// reports whether it did so. A loop uses this to guarantee at most one
// pending flush callback is scheduled per buffer at any time, no matter
// how many Append calls happen in between.
func (b *Buffer) MarkFlushPosted() bool {
	if b.flushPosted {
		return false
	}
	b.flushPosted = true
	return true
}

// ClearFlushPosted marks the pending flush as having run, allowing the
// next Append to schedule a new one.
func (b *Buffer) ClearFlushPosted() { b.flushPosted = false }

// FlushPosted reports whether a flush is currently scheduled.
func (b *Buffer) FlushPosted() bool { return b.flushPosted }
