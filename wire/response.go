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

// ResponseKind identifies which of the five RESP v2 variants a Response
// holds.
type ResponseKind byte

const (
	SimpleString ResponseKind = '+'
	ErrorReply   ResponseKind = '-'
	Integer      ResponseKind = ':'
	BulkString   ResponseKind = '$'
	Array        ResponseKind = '*'
)

func (k ResponseKind) String() string {
	switch k {
	case SimpleString:
		return "simple_string"
	case ErrorReply:
		return "error"
	case Integer:
		return "integer"
	case BulkString:
		return "bulk_string"
	case Array:
		return "array"
	default:
		return "unknown"
	}
}

// Response is a fully-materialized RESP v2 value. Exactly one of the
// payload fields is meaningful, selected by Kind:
//
//	SimpleString -> Str
//	ErrorReply   -> Str
//	Integer      -> Int
//	BulkString   -> Bytes (Null true means "$-1\r\n")
//	Array        -> Items (Null true means "*-1\r\n", Items nil)
type Response struct {
	Kind  ResponseKind
	Str   string
	Int   int64
	Bytes []byte
	Null  bool
	Items []Response
}

// IsNil reports whether the response is a null bulk string or null array.
func (r Response) IsNil() bool {
	return r.Null && (r.Kind == BulkString || r.Kind == Array)
}

func newSimpleString(s string) Response { return Response{Kind: SimpleString, Str: s} }
func newErrorReply(s string) Response   { return Response{Kind: ErrorReply, Str: s} }
func newInteger(n int64) Response       { return Response{Kind: Integer, Int: n} }
func newBulkString(b []byte) Response   { return Response{Kind: BulkString, Bytes: b} }
func newNullBulkString() Response       { return Response{Kind: BulkString, Null: true} }
func newArray(items []Response) Response {
	return Response{Kind: Array, Items: items}
}
func newNullArray() Response { return Response{Kind: Array, Null: true} }
