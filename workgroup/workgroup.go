// Copyright 2025 The mqttnet Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package workgroup provides a goroutine pool with a bounded number of
// workers and a bounded backlog of pending work.
package workgroup

import (
	"context"
	"fmt"
	"sync"
)

// A Group runs functions on a bounded pool of goroutines. Workers are
// started on demand and exit when the backlog drains.
//
// A Group is internally synchronized and is safe for concurrent use.
type Group struct {
	ctx     context.Context
	depth   int
	workers int
	work    chan func(context.Context)

	mu struct {
		sync.Mutex
		running int
	}
}

// WithSize returns a [Group] that runs at most workers goroutines and
// queues at most depth functions awaiting a free worker.
func WithSize(ctx context.Context, workers, depth int) *Group {
	return &Group{
		ctx:     ctx,
		depth:   depth,
		workers: workers,
		work:    make(chan func(context.Context), depth),
	}
}

// Go runs the function on the pool. If all workers are busy and the
// backlog is full, Go returns an error without running the function.
func (g *Group) Go(fn func(context.Context)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mu.running < g.workers {
		g.mu.running++
		go g.run(fn)
		return nil
	}
	select {
	case g.work <- fn:
		return nil
	default:
		return fmt.Errorf("workgroup: queue depth %d exceeded", g.depth)
	}
}

// Len returns the number of running workers.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mu.running
}

func (g *Group) run(fn func(context.Context)) {
	for {
		fn(g.ctx)
		select {
		case fn = <-g.work:
			continue
		default:
		}
		// Re-check under the mutex so a Go that saw this worker as
		// running cannot strand its function in the backlog.
		g.mu.Lock()
		select {
		case fn = <-g.work:
			g.mu.Unlock()
		default:
			g.mu.running--
			g.mu.Unlock()
			return
		}
	}
}
