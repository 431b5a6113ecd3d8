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

// Package wire implements the RESP v2 codec: a bounded-buffer encoder for
// commands and a resumable, streaming decoder for responses.
package wire

// Command is a RESP array of bulk strings: the verb followed by its
// arguments. Redis has no structural distinction between the two; Command
// keeps them separate only so callers building a command don't have to
// prepend the verb to a slice by hand.
type Command struct {
	Verb []byte
	Args [][]byte
}

// NewCommand builds a Command from a verb and its already-encoded byte
// arguments. The slices are kept by reference, not copied.
func NewCommand(verb []byte, args ...[]byte) Command {
	return Command{Verb: verb, Args: args}
}

// NewCommandString is the string convenience form of NewCommand, useful at
// call sites that build commands from string literals and fmt.Sprintf.
func NewCommandString(verb string, args ...string) Command {
	a := make([][]byte, len(args))
	for i, s := range args {
		a[i] = []byte(s)
	}
	return Command{Verb: []byte(verb), Args: a}
}

// Len returns the number of elements the encoded RESP array will have
// (the verb plus every argument).
func (c Command) Len() int { return 1 + len(c.Args) }
