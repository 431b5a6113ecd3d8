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

// Package session implements the duplex controller that sits on top of a
// transport connection: it owns the receive-side decoder and queue, the
// send-side adaptive buffer, and the bookkeeping that lets either half
// close independently before the whole session tears down.
package session

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/encoding"

	"github.com/respwire/respwire/byteq"
	"github.com/respwire/respwire/config"
	"github.com/respwire/respwire/loop"
	"github.com/respwire/respwire/logger"
	"github.com/respwire/respwire/metrics"
	"github.com/respwire/respwire/sendbuf"
	"github.com/respwire/respwire/transport"
	"github.com/respwire/respwire/wire"
)

// closeWriter is implemented by connections that support a half-close of
// just the write side (e.g. *net.TCPConn.CloseWrite). On transports that
// don't implement it, SendEndOfStream only marks the write side done; the
// connection stays open until the read side finishes too.
type closeWriter interface {
	CloseWrite() error
}

// waiterKind distinguishes the two shapes a pending Receive can take.
type waiterKind int

const (
	waitResponse waiterKind = iota
	waitBinary
)

type waiter struct {
	kind   waiterKind
	n      int // only meaningful for waitBinary
	onResp func(*wire.Response, error)
	onBin  func([]byte, error)
}

// Session is a duplex RESP controller over a single transport connection.
// Every exported method must be called from the loop goroutine that owns
// it (typically via loop.Post from outside); Session itself never takes a
// mutex because it never needs one.
type Session struct {
	ID string

	lp   *loop.Loop
	conn *transport.Conn
	dec  *wire.Decoder
	rq   *byteq.Queue
	sbuf *sendbuf.Buffer

	opts config.Session
	enc  encoding.Encoding

	reading    bool
	readDone   bool
	writeDone  bool
	closed     bool
	closeErr   error
	pending    *waiter
	endOfSent  bool // SendEndOfStream requested, pending flush completion

	tracer trace.Tracer
}

// New constructs a Session over conn. pool (which may be nil) backs both
// the receive queue's straddling-read copies and the send buffer.
func New(lp *loop.Loop, conn *transport.Conn, opts config.Session, pool *bytebufferpool.Pool) *Session {
	opts.Normalize()
	enc, err := config.ResolveEncoding(opts.Encoding)
	if err != nil {
		logger.Warnf("session: unknown encoding %q, falling back to UTF-8: %v", opts.Encoding, err)
		enc = encoding.Nop
	}
	s := &Session{
		ID:     uuid.NewString(),
		lp:     lp,
		conn:   conn,
		dec:    wire.NewDecoder(),
		rq:     byteq.New(pool),
		sbuf:   sendbuf.New(pool, opts.SendBufferSize),
		opts:   opts,
		enc:    enc,
		tracer: trace.NewNoopTracerProvider().Tracer("respwire/session"),
	}
	metrics.ActiveSessions.Inc()
	return s
}

// DecodeText transcodes a bulk string's raw bytes from the session's
// configured character encoding into a UTF-8 string. Sessions configured
// for (or defaulted to) UTF-8 return valid UTF-8 input unchanged; invalid
// sequences are replaced with U+FFFD.
func (s *Session) DecodeText(b []byte) (string, error) {
	out, err := s.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", wrapEncoding(err)
	}
	return string(out), nil
}

// EncodeText transcodes a UTF-8 string into the session's configured
// character encoding, for building commands whose arguments a non-UTF-8
// server expects in its native encoding.
func (s *Session) EncodeText(str string) ([]byte, error) {
	out, err := s.enc.NewEncoder().Bytes([]byte(str))
	if err != nil {
		return nil, wrapEncoding(err)
	}
	return out, nil
}

// Send appends cmd to the outgoing buffer. All Sends within the same loop
// turn are coalesced into a single transport write by the deferred flush;
// Send itself never blocks and never writes to the socket directly.
func (s *Session) Send(cmd wire.Command) error {
	if s.closed || s.writeDone || s.endOfSent {
		return newClosed()
	}
	before := s.sbuf.Growths()
	s.sbuf.Append(cmd, s.flushStaged)
	if grew := s.sbuf.Growths() - before; grew > 0 {
		metrics.BufferGrowthsTotal.Add(float64(grew))
	}
	s.scheduleFlush()
	return nil
}

// SendBinaryStream queues a raw byte blob to be written after everything
// already pending, bypassing the RESP codec entirely. cb runs once the
// bytes have been handed to the transport (not necessarily to the kernel;
// see Buffer.Append's retry/grow for how it's staged).
func (s *Session) SendBinaryStream(data []byte, cb func(error)) {
	if s.closed || s.writeDone {
		s.lp.Post(func() { cb(newClosed()) })
		return
	}
	s.sbuf.AppendRaw(data, s.flushStaged)
	s.scheduleFlush()
	// The flush callback doesn't thread per-chunk completions back to
	// callers today, so report success optimistically once the bytes are
	// queued; a transport failure still surfaces via fail() to any
	// outstanding Receive/ReceiveBinaryStream waiter.
	s.lp.PostLast(func() { cb(nil) })
}

// scheduleFlush ensures exactly one flush is posted for the current turn,
// no matter how many times Send/SendBinaryStream are called before it
// runs. This is the "at most one pending flush" invariant.
func (s *Session) scheduleFlush() {
	if s.sbuf.MarkFlushPosted() {
		s.lp.PostLast(s.flush)
	}
}

// flushStaged is the overflow-triggered FlushFunc passed into
// sbuf.Append/AppendRaw: when an encode doesn't fit the current buffer, it
// writes whatever was already staged to the transport immediately, rather
// than waiting for the turn-end deferred flush. It is distinct from flush
// (the normal end-of-turn path), which also decays and resets the buffer;
// flushStaged only ever sees bytes the buffer is about to discard in favor
// of a freshly sized replacement, so there is nothing for it to reset.
func (s *Session) flushStaged(staged []byte) {
	data := append([]byte(nil), staged...)
	s.conn.Write(data, func(err error) {
		if err != nil {
			s.fail(wrapTransport(err))
			return
		}
		metrics.BytesSent.Add(float64(len(data)))
		metrics.FlushesTotal.Inc()
	})
}

func (s *Session) flush() {
	s.sbuf.ClearFlushPosted()
	if s.closed || !s.sbuf.CanRead() {
		s.maybeFinishEndOfStream()
		return
	}
	data := append([]byte(nil), s.sbuf.Bytes()...)
	s.conn.Write(data, func(err error) {
		if err != nil {
			s.fail(wrapTransport(err))
			return
		}
		metrics.BytesSent.Add(float64(len(data)))
		metrics.FlushesTotal.Inc()
		s.sbuf.Reset()
		s.maybeFinishEndOfStream()
	})
}

// SendEndOfStream half-closes the write side once every already-queued
// command has been flushed. Further Send calls fail with Closed.
func (s *Session) SendEndOfStream() {
	if s.closed || s.writeDone {
		return
	}
	s.endOfSent = true
	if !s.sbuf.FlushPosted() {
		s.maybeFinishEndOfStream()
	}
}

func (s *Session) maybeFinishEndOfStream() {
	if !s.endOfSent || s.writeDone || s.sbuf.CanRead() {
		return
	}
	s.writeDone = true
	if cw, ok := s.conn.Raw().(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil {
			logger.Warnf("session %s: CloseWrite failed, closing fully: %v", s.ID, err)
			s.fail(wrapTransport(err))
			return
		}
	}
	s.closeIfDone()
}

// Receive asks for the next fully-decoded response. cb runs exactly once,
// either with a response, with an error (Truncated/Malformed/
// TransportError/Closed), or with (nil, nil) once the peer has closed its
// side cleanly and no more responses will arrive. Only one Receive (or
// ReceiveBinaryStream) may be outstanding at a time.
func (s *Session) Receive(cb func(*wire.Response, error)) {
	if s.closed {
		s.lp.Post(func() { cb(nil, newClosed()) })
		return
	}
	if s.pending != nil {
		s.lp.Post(func() { cb(nil, newError(wire.Malformed, "a receive is already outstanding")) })
		return
	}
	s.pending = &waiter{kind: waitResponse, onResp: cb}
	s.pumpResponse()
}

// ReceiveBinaryStream reads exactly n raw bytes off the wire, bypassing
// the decoder. Used for protocol extensions layered on top of RESP that
// announce a raw payload length out of band.
func (s *Session) ReceiveBinaryStream(n int, cb func([]byte, error)) {
	if s.closed {
		s.lp.Post(func() { cb(nil, newClosed()) })
		return
	}
	if s.pending != nil {
		s.lp.Post(func() { cb(nil, newError(wire.Malformed, "a receive is already outstanding")) })
		return
	}
	s.pending = &waiter{kind: waitBinary, n: n, onBin: cb}
	s.pumpBinary()
}

func (s *Session) pumpResponse() {
	if s.pending == nil || s.pending.kind != waitResponse {
		return
	}
	resp, err := s.dec.Decode(s.rq)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues(kindLabel(err)).Inc()
		s.deliverResponse(nil, err)
		s.fail(err)
		return
	}
	if resp != nil {
		metrics.ResponsesDecodedTotal.Inc()
		s.deliverResponse(resp, nil)
		s.prefetch()
		return
	}
	if s.readDone {
		// The peer already ended its side cleanly; nothing more will arrive.
		s.deliverResponse(nil, nil)
		return
	}
	s.ensureReading()
}

func (s *Session) pumpBinary() {
	if s.pending == nil || s.pending.kind != waitBinary {
		return
	}
	if s.rq.HasRemainingBytes(s.pending.n) {
		dst := make([]byte, s.pending.n)
		s.rq.DrainTo(dst, s.pending.n)
		s.deliverBinary(dst, nil)
		s.prefetch()
		return
	}
	s.ensureReading()
}

// prefetch issues a background read right after delivering a value, so
// the next Receive finds data already queued instead of paying read
// latency on demand.
func (s *Session) prefetch() {
	if !s.readDone && !s.closed {
		s.ensureReading()
	}
}

func (s *Session) ensureReading() {
	if s.reading || s.readDone || s.closed {
		return
	}
	s.reading = true
	s.conn.Read(s.onRead)
}

func (s *Session) onRead(data []byte, err error) {
	s.reading = false
	if len(data) > 0 {
		s.rq.Add(data)
		metrics.BytesReceived.Add(float64(len(data)))
	}
	if err != nil {
		if err == io.EOF {
			s.readDone = true
			if werr := s.dec.EOF(); werr != nil {
				s.deliverPendingErr(werr)
				s.fail(werr)
				return
			}
			s.deliverPendingErr(nil)
			s.closeIfDone()
			return
		}
		werr := wrapTransport(err)
		s.deliverPendingErr(werr)
		s.fail(werr)
		return
	}
	if s.pending == nil {
		return
	}
	switch s.pending.kind {
	case waitResponse:
		s.pumpResponse()
	case waitBinary:
		s.pumpBinary()
	}
}

// deliverPendingErr resolves whatever is outstanding with err (nil means
// clean EOF: a response waiter gets (nil, nil), meaning "no more
// responses will ever arrive").
func (s *Session) deliverPendingErr(err error) {
	if s.pending == nil {
		return
	}
	switch s.pending.kind {
	case waitResponse:
		s.deliverResponse(nil, err)
	case waitBinary:
		s.deliverBinary(nil, err)
	}
}

func (s *Session) deliverResponse(resp *wire.Response, err error) {
	w := s.pending
	s.pending = nil
	if w == nil || w.onResp == nil {
		return
	}
	w.onResp(resp, err)
}

func (s *Session) deliverBinary(b []byte, err error) {
	w := s.pending
	s.pending = nil
	if w == nil || w.onBin == nil {
		return
	}
	w.onBin(b, err)
}

// closeIfDone closes the session the moment both halves have finished,
// whichever caller (read completion or write completion) gets there
// second.
func (s *Session) closeIfDone() {
	if s.closed || !s.readDone || !s.writeDone {
		return
	}
	s.closeInternal(nil)
}

// fail terminates the session immediately on an unrecoverable error from
// either half.
func (s *Session) fail(err error) {
	s.readDone = true
	s.writeDone = true
	s.closeInternal(err)
}

func (s *Session) closeInternal(err error) {
	if s.closed {
		return
	}
	s.closed = true
	metrics.ActiveSessions.Dec()

	var errs error
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	if cerr := s.conn.Close(); cerr != nil {
		errs = multierror.Append(errs, cerr)
	}
	s.rq.Recycle()
	s.sbuf.Recycle()
	if errs != nil {
		s.closeErr = errs
	}
	if s.pending != nil {
		s.deliverPendingErr(newClosed())
	}
}

// Close forcibly closes both halves of the session immediately, without
// waiting for pending sends to flush.
func (s *Session) Close() error {
	s.closeInternal(nil)
	return s.closeErr
}

// Err returns the aggregated error, if any, that caused the session to
// close. Nil means the session closed cleanly.
func (s *Session) Err() error { return s.closeErr }

// Closed reports whether the session has finished closing.
func (s *Session) Closed() bool { return s.closed }

// WithSpan starts a trace span named "respwire."+op around fn, using the
// session's tracer. fn runs synchronously; the span ends when it returns.
func (s *Session) WithSpan(ctx context.Context, op string, fn func(context.Context)) {
	ctx, span := s.tracer.Start(ctx, "respwire."+op)
	defer span.End()
	fn(ctx)
}

func kindLabel(err error) string {
	var e *wire.Error
	if ok := asWireError(err, &e); ok {
		return e.Kind.String()
	}
	return "unknown"
}
