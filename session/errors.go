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
	"errors"

	"github.com/respwire/respwire/wire"
)

func newClosed() error {
	return wire.NewError(wire.Closed, "session is closed")
}

func newError(kind wire.Kind, msg string) error {
	return wire.NewError(kind, msg)
}

func wrapTransport(err error) error {
	return wire.WrapError(wire.TransportError, "transport failure", err)
}

func wrapEncoding(err error) error {
	return wire.WrapError(wire.Malformed, "character encoding conversion failed", err)
}

func asWireError(err error, target **wire.Error) bool {
	return errors.As(err, target)
}
