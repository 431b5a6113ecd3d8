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

// Package config loads YAML configuration documents for the engine and its
// surrounding CLI/admin surface, and carries the tunables a Session itself
// reads (send buffer size, character encoding). PrefetchDepth is normalized
// here but session.Session does not read it; a session keeps at most one
// read in flight.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/elastic/go-ucfg"
	"github.com/elastic/go-ucfg/yaml"

	"github.com/respwire/respwire/sendbuf"
)

// SendBufferSizeEnv overrides Session.SendBufferSize when set, without
// requiring a config file — convenient for container deployments.
const SendBufferSizeEnv = "RESPWIRE_SEND_BUFFER_SIZE"

// Config wraps a ucfg document and adds the handful of convenience
// accessors the rest of this module needs.
type Config struct {
	conf *ucfg.Config
}

// New wraps an already-parsed ucfg document.
func New(conf *ucfg.Config) *Config {
	return &Config{conf: conf}
}

// LoadPath reads and parses a YAML configuration file.
func LoadPath(path string) (*Config, error) {
	conf, err := yaml.NewConfigWithFile(path, ucfg.PathSep("."))
	if err != nil {
		return nil, err
	}
	return New(conf), nil
}

// LoadContent parses an in-memory YAML document.
func LoadContent(b []byte) (*Config, error) {
	conf, err := yaml.NewConfig(b)
	if err != nil {
		return nil, err
	}
	return New(conf), nil
}

func (c *Config) Has(s string) bool {
	ok, err := c.conf.Has(s, -1)
	return err == nil && ok
}

func (c *Config) Child(s string) (*Config, error) {
	content, err := c.conf.Child(s, -1)
	if err != nil {
		return nil, err
	}
	return &Config{conf: content}, nil
}

func (c *Config) Unpack(to any) error {
	return c.conf.Unpack(to)
}

func (c *Config) UnpackChild(s string, to any) error {
	content, err := c.conf.Child(s, -1)
	if err != nil {
		return err
	}
	return content.Unpack(to)
}

func (c *Config) Enabled(s string) bool {
	ok, err := c.conf.Bool(fmt.Sprintf("%s.enabled", s), -1)
	return err == nil && ok
}

// Session carries the tunables a session.Session reads at construction
// time. Zero values are replaced by Normalize with the engine defaults.
type Session struct {
	SendBufferSize int    `config:"sendBufferSize"`
	Encoding       string `config:"encoding"`
	PrefetchDepth  int    `config:"prefetchDepth"`
}

// Normalize fills in zero fields with defaults and applies the
// RESPWIRE_SEND_BUFFER_SIZE environment override, if set and valid.
func (s *Session) Normalize() {
	if s.SendBufferSize <= 0 {
		s.SendBufferSize = sendbuf.DefaultSize
	}
	if v := os.Getenv(SendBufferSizeEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.SendBufferSize = n
		}
	}
	if s.Encoding == "" {
		s.Encoding = "utf-8"
	}
	if s.PrefetchDepth <= 0 {
		s.PrefetchDepth = 1
	}
}
