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

// Package adminserver exposes an optional HTTP surface off the hot path:
// Prometheus metrics and net/http/pprof profiling endpoints. Nothing in
// this package touches a Session; it only observes what the metrics
// package has already recorded.
package adminserver

import (
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/respwire/respwire/config"
	"github.com/respwire/respwire/logger"
)

// Config describes whether and where to expose the admin surface.
type Config struct {
	Enabled bool          `config:"enabled"`
	Address string        `config:"address"`
	Pprof   bool          `config:"pprof"`
	Timeout time.Duration `config:"timeout"`
}

// Server is the admin HTTP surface. A nil *Server (returned by New when
// Config.Enabled is false) is valid to hold onto and never call
// ListenAndServe on.
type Server struct {
	config Config
	router *mux.Router
	server *http.Server
}

// New builds a Server from the "admin" child of conf. It returns (nil, nil)
// when that section is absent or explicitly disabled.
func New(conf *config.Config) (*Server, error) {
	if !conf.Has("admin") {
		return nil, nil
	}
	var cfg Config
	if err := conf.UnpackChild("admin", &cfg); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, nil
	}

	router := mux.NewRouter()
	s := &Server{
		config: cfg,
		router: router,
		server: &http.Server{
			Handler:      router,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
		},
	}
	s.RegisterGetRoute("/metrics", promhttp.Handler().ServeHTTP)
	if cfg.Pprof {
		s.registerPprofRoutes()
	}
	return s, nil
}

// ListenAndServe blocks serving the admin surface until it fails or is
// shut down.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	logger.Infof("admin server listening on %s", s.config.Address)
	return s.server.Serve(l)
}

// RegisterGetRoute adds an additional GET route, for embedders that want
// to expose something beyond /metrics and /debug/pprof.
func (s *Server) RegisterGetRoute(path string, f http.HandlerFunc) {
	s.router.Methods(http.MethodGet).Path(path).HandlerFunc(f)
}

func (s *Server) registerPprofRoutes() {
	s.RegisterGetRoute("/debug/pprof/cmdline", pprof.Cmdline)
	s.RegisterGetRoute("/debug/pprof/profile", pprof.Profile)
	s.RegisterGetRoute("/debug/pprof/symbol", pprof.Symbol)
	s.RegisterGetRoute("/debug/pprof/trace", pprof.Trace)
	s.RegisterGetRoute("/debug/pprof/{other}", pprof.Index)
}
