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

package wire

import "github.com/pkg/errors"

// Kind classifies a decode or transport failure so callers can decide
// whether a retry, a close, or neither is appropriate.
type Kind int

const (
	// Malformed means the bytes on the wire do not match RESP v2 grammar
	// (wrong type marker, bad length digits, missing CRLF, ...). Terminal.
	Malformed Kind = iota
	// InvalidSize means a length prefix was syntactically valid but
	// outside the bounds this engine accepts (negative other than -1,
	// or larger than the configured bulk-string cap). Terminal.
	InvalidSize
	// Truncated means the peer closed the connection in the middle of a
	// value, as opposed to between values. Terminal.
	Truncated
	// ServerError marks a RESP error reply ("-ERR ...\r\n"). It is data,
	// not a fault: the connection stays open and decoding continues.
	ServerError
	// TransportError wraps a failure from the underlying connection
	// (read/write/dial). Terminal.
	TransportError
	// Closed is returned by operations attempted after the session has
	// already finished closing. Terminal.
	Closed
)

func (k Kind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case InvalidSize:
		return "invalid_size"
	case Truncated:
		return "truncated"
	case ServerError:
		return "server_error"
	case TransportError:
		return "transport_error"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error is the error type returned by everything in this package and by
// github.com/respwire/respwire/session. Callers switch on Kind rather than
// on the error string.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func wrapError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, msg: msg, err: err}
}

// NewError builds an Error of the given Kind with a plain message. Exported
// for use by packages downstream of wire (session, transport) that need to
// report failures using the same Kind taxonomy.
func NewError(kind Kind, msg string) *Error { return newError(kind, msg) }

// WrapError builds an Error of the given Kind wrapping an underlying cause.
func WrapError(kind Kind, msg string, err error) *Error { return wrapError(kind, msg, err) }

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

var (
	errUnexpectedEOF = newError(Truncated, "connection closed mid-value")
)
