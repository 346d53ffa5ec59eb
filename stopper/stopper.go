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

// Package stopper provides a [context.Context] that coordinates
// graceful shutdown of a group of goroutines.
package stopper

import (
	"context"
	"sync"
	"time"
)

// A Context is a [context.Context] with an additional "stopping" state
// that precedes cancellation. Workers started with [Context.Go] watch
// [Context.Stopping] to begin an orderly exit while the underlying
// context remains live, so that teardown work can still use it.
//
// Stopping is triggered by [Context.Stop], by cancellation of the
// parent context, or by the first worker to return an error.
type Context struct {
	parent   context.Context
	stopping chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu struct {
		sync.Mutex
		err error
	}
}

var _ context.Context = (*Context)(nil)

// WithContext returns a stopper [Context] derived from ctx.
func WithContext(ctx context.Context) *Context {
	s := &Context{parent: ctx, stopping: make(chan struct{})}
	if ctx.Done() != nil {
		context.AfterFunc(ctx, s.Stop)
	}
	return s
}

// Deadline implements [context.Context].
func (s *Context) Deadline() (time.Time, bool) { return s.parent.Deadline() }

// Done implements [context.Context]. It reflects the parent context,
// not the stopping state; see [Context.Stopping].
func (s *Context) Done() <-chan struct{} { return s.parent.Done() }

// Err implements [context.Context].
func (s *Context) Err() error { return s.parent.Err() }

// Value implements [context.Context].
func (s *Context) Value(key any) any { return s.parent.Value(key) }

// Go runs the function in a new goroutine tracked by [Context.Wait].
// The first function to return a non-nil error stops the Context and
// its error is reported by Wait.
func (s *Context) Go(fn func(ctx *Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s); err != nil {
			s.mu.Lock()
			if s.mu.err == nil {
				s.mu.err = err
			}
			s.mu.Unlock()
			s.Stop()
		}
	}()
}

// Stop requests a graceful shutdown. It is safe to call multiple times
// and from multiple goroutines.
func (s *Context) Stop() {
	s.stopOnce.Do(func() { close(s.stopping) })
}

// Stopping returns a channel that is closed when shutdown begins.
func (s *Context) Stopping() <-chan struct{} { return s.stopping }

// IsStopping reports whether shutdown has begun.
func (s *Context) IsStopping() bool {
	select {
	case <-s.stopping:
		return true
	default:
		return false
	}
}

// Wait blocks until all goroutines started with [Context.Go] have
// returned, then reports the first error among them.
func (s *Context) Wait() error {
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.err
}
