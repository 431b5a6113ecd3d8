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

// Package transport adapts a blocking net.Conn to the continuation style a
// session needs: reads and writes are issued from the loop goroutine and
// their results are delivered back onto it, so the rest of the engine
// never blocks waiting on the network.
package transport

import (
	"net"

	"github.com/respwire/respwire/loop"
)

// DefaultReadSize is how much is requested per background read. It mirrors
// the block-size tradeoff of a typical TCP segment/MTU: large enough to
// amortise syscall overhead, small enough not to over-read past what a
// single response usually needs.
const DefaultReadSize = 4096

// Conn is a net.Conn driven from a loop. Every exported method is safe to
// call only from the loop goroutine that owns it; the goroutines it spawns
// for blocking I/O never touch session state directly, they only call back
// onto the loop.
type Conn struct {
	nc       net.Conn
	lp       *loop.Loop
	readSize int
	closed   bool
}

// New wraps an already-established net.Conn.
func New(lp *loop.Loop, nc net.Conn) *Conn {
	return &Conn{nc: nc, lp: lp, readSize: DefaultReadSize}
}

// Dial connects to addr over network ("tcp", "unix", ...) and wraps the
// resulting connection. Dial itself blocks the calling goroutine — callers
// on the loop should run it via loop.Spawn and post the *Conn back.
func Dial(lp *loop.Loop, network, addr string) (*Conn, error) {
	nc, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	return New(lp, nc), nil
}

// Read issues one background read of up to DefaultReadSize bytes and calls
// cb on the loop goroutine with whatever was read. cb receives a non-nil
// err exactly when the read failed or hit EOF (data may still be non-empty
// alongside a non-nil err, same as io.Reader's contract).
func (c *Conn) Read(cb func(data []byte, err error)) {
	if c.closed {
		c.lp.Post(func() { cb(nil, net.ErrClosed) })
		return
	}
	c.lp.Spawn(func() {
		buf := make([]byte, c.readSize)
		n, err := c.nc.Read(buf)
		c.lp.Post(func() { cb(buf[:n], err) })
	})
}

// Write issues a background write of the given bytes and calls cb on the
// loop goroutine once it completes (or fails). The slice must not be
// mutated by the caller until cb runs.
func (c *Conn) Write(data []byte, cb func(err error)) {
	if c.closed {
		c.lp.Post(func() { cb(net.ErrClosed) })
		return
	}
	c.lp.Spawn(func() {
		_, err := c.nc.Write(data)
		c.lp.Post(func() { cb(err) })
	})
}

// Close closes the underlying connection immediately. It does not wait for
// in-flight reads/writes spawned by this Conn; their callbacks still fire
// but will observe an error from the now-closed socket.
func (c *Conn) Close() error {
	c.closed = true
	return c.nc.Close()
}

// LocalAddr and RemoteAddr expose the wrapped connection's endpoints,
// useful for logging and for session identity.
func (c *Conn) LocalAddr() net.Addr  { return c.nc.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Raw returns the underlying net.Conn, so callers can type-assert for
// optional capabilities like CloseWrite (half-close).
func (c *Conn) Raw() net.Conn { return c.nc }
