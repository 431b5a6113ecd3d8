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

import "strconv"

// appendPrefix appends a "<marker><n>\r\n" RESP header, e.g. "$3\r\n" or
// "*2\r\n". Small non-negative n (the overwhelming common case for array
// and bulk-string headers) is special-cased to skip strconv entirely.
func appendPrefix(b []byte, marker byte, n int64) []byte {
	if n >= 0 && n <= 9 {
		return append(b, marker, byte('0'+n), '\r', '\n')
	}
	b = append(b, marker)
	b = strconv.AppendInt(b, n, 10)
	return append(b, '\r', '\n')
}

// appendBulk appends a RESP bulk string: "$<len>\r\n<data>\r\n".
func appendBulk(b []byte, data []byte) []byte {
	b = appendPrefix(b, '$', int64(len(data)))
	b = append(b, data...)
	return append(b, '\r', '\n')
}

// Encode serializes cmd as a RESP array of bulk strings into dst[offset:],
// returning the offset just past the written bytes and true on success.
// It returns (offset, false) without having written anything past offset if
// the command does not fit in dst — callers (sendbuf.Buffer) are expected to
// grow the buffer and retry rather than have Encode do partial writes.
func Encode(dst []byte, offset int, cmd Command) (int, bool) {
	need := encodedLen(cmd)
	if offset+need > cap(dst) {
		return offset, false
	}
	b := dst[:offset]
	b = appendPrefix(b, '*', int64(cmd.Len()))
	b = appendBulk(b, cmd.Verb)
	for _, arg := range cmd.Args {
		b = appendBulk(b, arg)
	}
	return len(b), true
}

// encodedLen computes the exact number of bytes Encode will append, so
// Encode can bail out before writing anything when the destination is too
// small instead of leaving a half-written command in dst.
func encodedLen(cmd Command) int {
	n := digitCount(int64(cmd.Len())) + 3 // "*<n>\r\n"
	n += bulkLen(cmd.Verb)
	for _, arg := range cmd.Args {
		n += bulkLen(arg)
	}
	return n
}

func bulkLen(data []byte) int {
	return digitCount(int64(len(data))) + 3 + len(data) + 2 // "$<n>\r\n" data "\r\n"
}

// digitCount returns the number of bytes strconv.AppendInt would produce
// for n, including a leading '-' for negative values.
func digitCount(n int64) int {
	if n == 0 {
		return 1
	}
	count := 0
	if n < 0 {
		count++
		n = -n
	}
	for n > 0 {
		count++
		n /= 10
	}
	return count
}
