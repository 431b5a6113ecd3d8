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

package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRunsInFIFOOrder(t *testing.T) {
	lp := New(16)
	go lp.Run()
	defer lp.Stop()

	var order []int
	done := make(chan struct{})
	lp.Post(func() {
		for i := 0; i < 5; i++ {
			i := i
			lp.Post(func() { order = append(order, i) })
		}
		lp.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted tasks")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPostLastRunsAfterEverythingQueuedThisTurn(t *testing.T) {
	lp := New(16)
	go lp.Run()
	defer lp.Stop()

	var order []string
	done := make(chan struct{})
	lp.Post(func() {
		lp.PostLast(func() {
			order = append(order, "last")
			close(done)
		})
		lp.Post(func() { order = append(order, "a") })
		lp.Post(func() { order = append(order, "b") })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted tasks")
	}
	// "last" must come after both "a" and "b", no matter that it was
	// scheduled first.
	require.Len(t, order, 3)
	assert.Equal(t, "last", order[2])
}

func TestPostLastQueuedByAnotherPostLastStillDrains(t *testing.T) {
	lp := New(16)
	go lp.Run()
	defer lp.Stop()

	var ran []int
	done := make(chan struct{})
	lp.Post(func() {
		lp.PostLast(func() {
			ran = append(ran, 1)
			lp.PostLast(func() {
				ran = append(ran, 2)
				close(done)
			})
		})
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chained PostLast callbacks")
	}
	assert.Equal(t, []int{1, 2}, ran)
}

func TestSpawnPostsResultBackOntoLoop(t *testing.T) {
	lp := New(16)
	go lp.Run()
	defer lp.Stop()

	resultCh := make(chan int, 1)
	lp.Spawn(func() {
		lp.Post(func() { resultCh <- 42 })
	})

	select {
	case v := <-resultCh:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for spawned result")
	}
}

func TestPanickingTaskDoesNotKillTheLoop(t *testing.T) {
	lp := New(16)
	go lp.Run()
	defer lp.Stop()

	lp.Post(func() { panic("boom") })

	done := make(chan struct{})
	lp.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop appears to have died after a panicking task")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	lp := New(1)
	go lp.Run()
	lp.Stop()
	assert.NotPanics(t, func() {
		lp.Stop()
		lp.Stop()
	})
}
