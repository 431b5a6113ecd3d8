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

// Package looprescue recovers panics inside loop tasks and spawned
// goroutines so that one bad task cannot take the whole event loop down
// with it.
package looprescue

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/respwire/respwire/logger"
)

var panicTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "respwire",
	Name:      "loop_task_panics_total",
	Help:      "Number of panics recovered from loop tasks and spawned goroutines.",
})

// PanicHandlers runs, in order, whenever Run recovers a panic. Tests may
// swap it out to assert on panic handling without depending on the real
// logger or metrics registry.
var PanicHandlers = []func(any){incPanicCounter, logPanic}

func incPanicCounter(any) { panicTotal.Inc() }

func logPanic(r any) {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	logger.Errorf("recovered panic in loop task: %v\n%s", r, buf[:n])
}

// Run calls f, recovering and reporting any panic rather than letting it
// propagate to the caller (typically the loop goroutine, which must never
// die because one task misbehaved).
func Run(f func()) {
	defer HandleCrash()
	f()
}

// HandleCrash recovers a panic in progress and runs PanicHandlers. It must
// be called via defer at the top of any function run on its own goroutine
// or as a loop task.
func HandleCrash() {
	if r := recover(); r != nil {
		for _, h := range PanicHandlers {
			h(r)
		}
	}
}
