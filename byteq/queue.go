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

// Package byteq implements an ordered queue of immutable byte chunks.
//
// A Queue accumulates chunks as they arrive off the wire and lets callers
// consume them without caring about chunk boundaries. Chunks are never
// copied on Add; they are only copied when a read straddles more than one
// chunk, so the common case (a read wholly inside the head chunk) is
// allocation-free.
package byteq

import "github.com/valyala/bytebufferpool"

// chunk is one immutable slice handed to the queue plus a read cursor into it.
type chunk struct {
	buf []byte
	off int
}

func (c *chunk) remaining() int { return len(c.buf) - c.off }

// Queue is an ordered, append-only sequence of byte chunks with an amortised
// O(1) read cursor. It is not safe for concurrent use; callers are expected
// to own it from a single goroutine (the loop that drives a session).
type Queue struct {
	chunks []chunk
	head   int // index of first non-empty chunk
	size   int // total remaining bytes across all chunks
	pool   *bytebufferpool.Pool
}

// New returns an empty Queue. pool may be nil, in which case TakeExactSize
// falls back to plain allocation for straddling reads.
func New(pool *bytebufferpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// IsEmpty reports whether the queue currently holds no unread bytes.
func (q *Queue) IsEmpty() bool { return q.size == 0 }

// RemainingBytes returns the total number of unread bytes across all chunks.
func (q *Queue) RemainingBytes() int { return q.size }

// Add appends a new chunk to the tail of the queue. The chunk is taken by
// reference; callers must not mutate it afterwards.
func (q *Queue) Add(b []byte) {
	if len(b) == 0 {
		return
	}
	q.chunks = append(q.chunks, chunk{buf: b})
	q.size += len(b)
}

// HasRemainingBytes reports whether at least n unread bytes are queued.
func (q *Queue) HasRemainingBytes(n int) bool { return q.size >= n }

// GetByte returns the byte at logical offset i (0-based, relative to the
// current read cursor) without consuming anything. It panics if i is out of
// range; callers must guard with HasRemainingBytes first.
func (q *Queue) GetByte(i int) byte {
	idx := q.head
	for {
		c := &q.chunks[idx]
		r := c.remaining()
		if i < r {
			return c.buf[c.off+i]
		}
		i -= r
		idx++
	}
}

// TakeExactSize consumes and returns exactly n bytes from the front of the
// queue. Callers must have verified HasRemainingBytes(n) first. When the
// requested span lies entirely inside the head chunk, the returned slice
// aliases that chunk and no copy is made. When it straddles chunk
// boundaries, the bytes are copied into a buffer drawn from the queue's
// pool (or a plain make, if no pool was configured).
func (q *Queue) TakeExactSize(n int) []byte {
	if n == 0 {
		return nil
	}
	head := &q.chunks[q.head]
	if head.remaining() >= n {
		b := head.buf[head.off : head.off+n]
		head.off += n
		q.size -= n
		q.advance()
		return b
	}

	var bb *bytebufferpool.ByteBuffer
	var dst []byte
	if q.pool != nil {
		bb = q.pool.Get()
		bb.B = bb.B[:0]
	}
	for n > 0 {
		c := &q.chunks[q.head]
		take := c.remaining()
		if take > n {
			take = n
		}
		if bb != nil {
			bb.B = append(bb.B, c.buf[c.off:c.off+take]...)
		} else {
			dst = append(dst, c.buf[c.off:c.off+take]...)
		}
		c.off += take
		q.size -= take
		n -= take
		q.advance()
	}
	if bb != nil {
		out := append([]byte(nil), bb.B...)
		q.pool.Put(bb)
		return out
	}
	return dst
}

// DrainTo copies up to n unread bytes into dst and returns the number of
// bytes copied, consuming them from the queue. It never copies more than
// len(dst) bytes regardless of n.
func (q *Queue) DrainTo(dst []byte, n int) int {
	if n > len(dst) {
		n = len(dst)
	}
	copied := 0
	for copied < n && q.size > 0 {
		c := &q.chunks[q.head]
		take := c.remaining()
		if take > n-copied {
			take = n - copied
		}
		copy(dst[copied:], c.buf[c.off:c.off+take])
		c.off += take
		q.size -= take
		copied += take
		q.advance()
	}
	return copied
}

// advance drops fully-consumed chunks from the head of the queue and
// compacts the backing slice once it grows unreasonably sparse, so a
// long-lived queue does not retain an ever-growing chunk list.
func (q *Queue) advance() {
	for q.head < len(q.chunks) && q.chunks[q.head].remaining() == 0 {
		q.chunks[q.head] = chunk{}
		q.head++
	}
	if q.head > 0 && q.head == len(q.chunks) {
		q.chunks = q.chunks[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.chunks) {
		q.chunks = append([]chunk(nil), q.chunks[q.head:]...)
		q.head = 0
	}
}

// Recycle drops every chunk currently queued, regardless of whether it has
// been fully consumed. Used when a session closes mid-message and the
// remaining bytes will never be read.
func (q *Queue) Recycle() {
	q.chunks = q.chunks[:0]
	q.head = 0
	q.size = 0
}

// Iterator walks the unread chunks of a Queue without consuming them.
type Iterator struct {
	q   *Queue
	idx int
}

// Iterator returns a fresh, independent walk over the currently queued
// chunks starting at the read cursor.
func (q *Queue) Iterator() *Iterator {
	return &Iterator{q: q, idx: q.head}
}

// Next returns the next unread chunk and advances the iterator, or returns
// ok=false once every queued chunk has been visited.
func (it *Iterator) Next() (b []byte, ok bool) {
	for it.idx < len(it.q.chunks) {
		c := &it.q.chunks[it.idx]
		it.idx++
		if c.remaining() > 0 {
			return c.buf[c.off:], true
		}
	}
	return nil, false
}
