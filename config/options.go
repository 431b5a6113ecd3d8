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

package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// Options is an ad hoc bag of per-session overrides, for call sites that
// want to tweak one or two settings without building a full Session value
// — e.g. a CLI flag parser or a test.
type Options map[string]any

func NewOptions() Options { return make(Options) }

func (o Options) GetInt(k string) (int, error) { return cast.ToIntE(o[k]) }

func (o Options) GetBool(k string) (bool, error) { return cast.ToBoolE(o[k]) }

func (o Options) GetString(k string) (string, error) { return cast.ToStringE(o[k]) }

// Merge sets (or overwrites) one key.
func (o Options) Merge(k string, v any) { o[k] = v }

// Decode maps the option bag onto a struct using `mapstructure` tags,
// for call sites that accumulated overrides in an Options before the
// Session value was built.
func (o Options) Decode(to any) error {
	return mapstructure.Decode(map[string]any(o), to)
}
