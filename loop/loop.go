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

// Package loop implements a single-goroutine cooperative task scheduler.
//
// A Loop owns exactly one goroutine. Every session, codec, and buffer
// mutation happens as a task run on that goroutine, so none of that state
// ever needs a mutex. Actual blocking I/O is done on separate helper
// goroutines (see Spawn); their results are posted back onto the loop as
// ordinary tasks, which is the only place suspension is allowed to happen.
//
// Post schedules a task for the back of the current queue. PostLast
// schedules a task to run after every task already queued for the current
// turn has run — the "post last" primitive a deferred flush uses to wait
// until the caller is done reacting to the value it was just handed before
// doing more work on its behalf. A turn ends when the task queue is empty.
package loop

import (
	"sync"

	"github.com/respwire/respwire/looprescue"
)

// Loop is a FIFO task queue drained by a single goroutine started with Run.
type Loop struct {
	tasks  chan func()
	stopCh chan struct{}

	lastMu sync.Mutex
	lastQ  []func()
}

// New returns a Loop with the given task queue depth. A depth of 0 makes
// Post synchronous with the loop goroutine's consumption of the channel.
func New(queueDepth int) *Loop {
	return &Loop{
		tasks:  make(chan func(), queueDepth),
		stopCh: make(chan struct{}),
	}
}

// Post schedules f to run on the loop goroutine. Safe to call from any
// goroutine, including the loop's own.
func (l *Loop) Post(f func()) {
	select {
	case l.tasks <- f:
	case <-l.stopCh:
	}
}

// PostLast schedules f to run once every task already queued for the
// current turn has finished running, including other PostLast callbacks
// queued before it. It must only be called from the loop goroutine itself
// — it models "do this after I, and everything already pending, am done",
// which is only a coherent statement from inside a running task.
func (l *Loop) PostLast(f func()) {
	l.lastMu.Lock()
	l.lastQ = append(l.lastQ, f)
	l.lastMu.Unlock()
}

// Spawn runs f on a new goroutine, outside the loop. Use this for blocking
// I/O; post the result back with Post or PostLast rather than touching
// loop-owned state directly from f.
func (l *Loop) Spawn(f func()) {
	go looprescue.Run(f)
}

// Run drains tasks until Stop is called or the task channel is closed. It
// blocks the calling goroutine, which becomes the loop's goroutine.
func (l *Loop) Run() {
	for {
		select {
		case t, ok := <-l.tasks:
			if !ok {
				l.drainLast()
				return
			}
			looprescue.Run(t)
			// PostLast callbacks wait until every queued task, including
			// ones the task just run posted, has had its turn.
			if len(l.tasks) == 0 {
				l.drainLast()
			}
		case <-l.stopCh:
			l.drainLast()
			return
		}
	}
}

// drainLast runs every PostLast callback queued during the turn that just
// finished, including ones newly queued by earlier PostLast callbacks
// within the same drain, until no more are pending.
func (l *Loop) drainLast() {
	for {
		l.lastMu.Lock()
		batch := l.lastQ
		l.lastQ = nil
		l.lastMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, f := range batch {
			looprescue.Run(f)
		}
	}
}

// Stop signals Run to return once the current task (if any) finishes. It
// is safe to call more than once and from any goroutine.
func (l *Loop) Stop() {
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
}
