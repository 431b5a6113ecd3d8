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

package sendbuf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/bytebufferpool"

	"github.com/respwire/respwire/wire"
)

func TestAppendFitsWithoutGrowing(t *testing.T) {
	b := New(nil, 64)
	b.Append(wire.NewCommandString("GET", "k"), nil)
	assert.Equal(t, 64, cap(b.bb.B))
	assert.True(t, b.CanRead())
}

func TestAppendGrowsOnOverflow(t *testing.T) {
	b := New(nil, 8)
	big := strings.Repeat("x", 1000)
	b.Append(wire.NewCommandString("SET", "key", big), nil)
	assert.Greater(t, cap(b.bb.B), 8)
	assert.Equal(t, b.Len(), len(b.Bytes()))
}

// TestAppendFlushesStagedExactlyOnceOnOverflow is scenario 8: an Append that
// overflows must hand whatever was already staged to the flush callback
// exactly once, before retrying the command that triggered the overflow.
func TestAppendFlushesStagedExactlyOnceOnOverflow(t *testing.T) {
	b := New(nil, 32)
	b.Append(wire.NewCommandString("GET", "k"), nil)
	staged := append([]byte(nil), b.Bytes()...)
	require.True(t, b.CanRead())

	var flushed [][]byte
	big := strings.Repeat("x", 1000)
	b.Append(wire.NewCommandString("SET", "key", big), func(s []byte) {
		flushed = append(flushed, append([]byte(nil), s...))
	})

	require.Len(t, flushed, 1, "flush must run exactly once")
	assert.Equal(t, staged, flushed[0])
	// The buffer now holds only the command that triggered the overflow,
	// not the bytes that were just flushed out.
	assert.NotContains(t, string(b.Bytes()), "GET")
}

// TestOverflowSizesReplacementOffPreOverflowCapacity asserts the replacement
// buffer is sized max(defaultSize, freeAtBegin + freeAtBegin/2 + 1), not an
// arbitrary cap*2 doubling of the pre-overflow buffer.
func TestOverflowSizesReplacementOffPreOverflowCapacity(t *testing.T) {
	b := New(nil, 16)
	b.AppendRaw([]byte("0123456789"), nil) // 10 bytes staged, freeAtBegin will be 16
	require.Equal(t, 16, cap(b.bb.B))

	var flushed []byte
	b.AppendRaw([]byte("0123456789"), func(s []byte) {
		flushed = append([]byte(nil), s...)
	})

	assert.Equal(t, "0123456789", string(flushed))
	assert.Equal(t, 16+16/2+1, cap(b.bb.B))
}

// TestOverflowReplacementNeverShrinksBelowDefault asserts an overflow
// replacement, however it's sized, never drops under defaultSize.
func TestOverflowReplacementNeverShrinksBelowDefault(t *testing.T) {
	b := New(nil, 64)
	big := strings.Repeat("x", 200)
	b.AppendRaw([]byte(big), nil)
	assert.GreaterOrEqual(t, cap(b.bb.B), 64)
}

func TestResetDecaysGeometrically(t *testing.T) {
	b := New(nil, 16)
	big := strings.Repeat("x", 1<<20)
	b.Append(wire.NewCommandString("SET", "key", big), nil)
	grownCap := cap(b.bb.B)
	require.Greater(t, grownCap, 16)

	b.Reset()
	assert.False(t, b.CanRead())
	assert.LessOrEqual(t, cap(b.bb.B), grownCap)
	assert.GreaterOrEqual(t, cap(b.bb.B), 16)
}

func TestResetEventuallyFloorsAtDefault(t *testing.T) {
	b := New(nil, 16)
	big := strings.Repeat("x", 1<<16)
	b.Append(wire.NewCommandString("SET", "key", big), nil)

	for i := 0; i < 10000; i++ {
		b.Reset()
	}
	assert.Equal(t, 16, b.targetCap)
}

func TestConsumePartialWrite(t *testing.T) {
	b := New(nil, 64)
	b.Append(wire.NewCommandString("GET", "foo"), nil)
	full := append([]byte(nil), b.Bytes()...)
	b.Consume(5)
	assert.Equal(t, full[5:], b.Bytes())
}

func TestMarkFlushPostedIsOneShot(t *testing.T) {
	b := New(nil, 64)
	assert.True(t, b.MarkFlushPosted())
	assert.False(t, b.MarkFlushPosted())
	b.ClearFlushPosted()
	assert.True(t, b.MarkFlushPosted())
}

func TestWithPoolRecyclesOnReset(t *testing.T) {
	pool := &bytebufferpool.Pool{}
	b := New(pool, 16)
	big := strings.Repeat("x", 1<<16)
	b.Append(wire.NewCommandString("SET", "key", big), nil)
	b.Reset()
	b.Recycle()
}
