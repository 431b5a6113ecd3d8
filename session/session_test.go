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

package session

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/respwire/respwire/config"
	"github.com/respwire/respwire/loop"
	"github.com/respwire/respwire/transport"
	"github.com/respwire/respwire/wire"
)

// newTestPair returns a Session driven by its own loop, plus the peer
// net.Conn a test can drive directly (blocking) to play the other side of
// the wire.
func newTestPair(t *testing.T) (*Session, net.Conn, *loop.Loop) {
	t.Helper()
	c1, c2 := nettest.Pipe()

	lp := loop.New(64)
	go lp.Run()
	t.Cleanup(lp.Stop)

	var s *Session
	done := make(chan struct{})
	lp.Post(func() {
		s = New(lp, transport.New(lp, c1), config.Session{}, nil)
		close(done)
	})
	<-done
	return s, c2, lp
}

func TestSendFlushesExactBytes(t *testing.T) {
	s, peer, lp := newTestPair(t)

	lp.Post(func() {
		_ = s.Send(wire.NewCommandString("GET", "foo"))
	})

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 128)
	n, err := peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n", string(buf[:n]))
}

func TestSendOverflowFlushesStagedBytesImmediately(t *testing.T) {
	c1, c2 := nettest.Pipe()
	lp := loop.New(64)
	go lp.Run()
	t.Cleanup(lp.Stop)

	var s *Session
	done := make(chan struct{})
	lp.Post(func() {
		s = New(lp, transport.New(lp, c1), config.Session{SendBufferSize: 32}, nil)
		close(done)
	})
	<-done

	lp.Post(func() {
		_ = s.Send(wire.NewCommandString("GET", "foo"))
		_ = s.Send(wire.NewCommandString("SET", "key", string(make([]byte, 1000))))
	})

	r := bufio.NewReader(c2)
	first, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "*2\r\n", first)
	line2, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "$3\r\n", line2)
	line3, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "GET\r\n", line3)
}

func TestReceiveDecodesResponse(t *testing.T) {
	s, peer, lp := newTestPair(t)

	resultCh := make(chan *wire.Response, 1)
	errCh := make(chan error, 1)
	lp.Post(func() {
		s.Receive(func(r *wire.Response, err error) {
			resultCh <- r
			errCh <- err
		})
	})

	_, err := peer.Write([]byte("+OK\r\n"))
	require.NoError(t, err)

	select {
	case r := <-resultCh:
		require.NoError(t, <-errCh)
		require.NotNil(t, r)
		assert.Equal(t, wire.SimpleString, r.Kind)
		assert.Equal(t, "OK", r.Str)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for receive")
	}
}

func TestReceiveAcrossFragmentedWrites(t *testing.T) {
	s, peer, lp := newTestPair(t)

	resultCh := make(chan *wire.Response, 1)
	lp.Post(func() {
		s.Receive(func(r *wire.Response, err error) {
			require.NoError(t, err)
			resultCh <- r
		})
	})

	full := []byte("*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n")
	for _, b := range full {
		_, err := peer.Write([]byte{b})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	select {
	case r := <-resultCh:
		require.NotNil(t, r)
		require.Equal(t, wire.Array, r.Kind)
		require.Len(t, r.Items, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fragmented receive")
	}
}

func TestSendEndOfStreamRejectsFurtherSends(t *testing.T) {
	s, peer, lp := newTestPair(t)

	sendErrCh := make(chan error, 1)
	lp.Post(func() {
		_ = s.Send(wire.NewCommandString("QUIT"))
		s.SendEndOfStream()
	})

	r := bufio.NewReader(peer)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "*1\r\n", line)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		lp.Post(func() {
			sendErrCh <- s.Send(wire.NewCommandString("PING"))
		})
		err := <-sendErrCh
		if err != nil {
			assert.True(t, wire.IsKind(err, wire.Closed))
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for post-end-of-stream send to fail")
}
