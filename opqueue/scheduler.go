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

package opqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sebastian-dev/mqttnet/notify"
)

// ErrCanceled will be returned from an operation's [Outcome], or from
// [context.Cause] inside a running operation, when the cancel function
// returned by [Scheduler.Schedule] is called.
var ErrCanceled = fmt.Errorf("%w: operation canceled", context.Canceled)

// An op tracks one scheduled operation from admission to completion.
type op[K any] struct {
	keys      []K
	outcome   notify.Var[*Status]
	scheduled time.Time // The time at which Schedule was called.

	mu struct {
		sync.Mutex
		cancel context.CancelCauseFunc // Non-nil while the operation is executing.
		task   Task[K]                 // Nil once started or canceled.
	}
}

// Scheduler runs operations once their keys are at the head of an
// in-order admission [Queue].
//
// A Scheduler is internally synchronized and is safe for concurrent
// use. A Scheduler should not be copied after it has been created.
type Scheduler[K comparable] struct {
	events *Events[K]        // Injectable callbacks.
	queue  *Queue[K, *op[K]] // Internally synchronized.
	runner Runner            // Executes operations.
}

// NewScheduler constructs a Scheduler that executes operations using
// the given [Runner]. If runner is nil, operations run via
// [context.Background].
//
// See [GoRunner] or [github.com/sebastian-dev/mqttnet/workgroup.Group].
func NewScheduler[K comparable](runner Runner) *Scheduler[K] {
	if runner == nil {
		runner = GoRunner(context.Background())
	}
	return &Scheduler[K]{
		queue:  NewQueue[K, *op[K]](),
		runner: runner,
	}
}

// SetEvents allows monitoring callbacks to be injected into the
// Scheduler. This method should be called prior to any call to
// [Scheduler.Schedule].
func (s *Scheduler[K]) SetEvents(events *Events[K]) {
	s.events = events
}

// Schedule runs the [Task] once all of its keys are held. The result
// of [Task.Call] is available through the returned [Outcome].
//
// An operation may return an empty key slice; it will be executed
// immediately.
//
// Operations must not schedule new operations on overlapping keys and
// then wait upon them; that is a deadlock.
//
// The cancel function may be called to asynchronously dequeue the
// operation. If the operation is already executing, its context is
// canceled with [ErrCanceled] instead.
func (s *Scheduler[K]) Schedule(task Task[K]) (outcome Outcome, cancel func()) {
	o := &op[K]{keys: task.Keys(), scheduled: time.Now()}
	o.mu.task = task
	o.outcome.Set(queued)

	runnable, err := s.queue.Enqueue(o.keys, o)
	if err != nil {
		o.outcome.Set(StatusFor(err))
		return &o.outcome, func() {}
	}
	s.events.doSchedule(task, !runnable)
	if runnable {
		s.start(o)
	}
	return &o.outcome, func() { s.cancel(o) }
}

// cancel makes a best effort to stop the operation. Clearing the task
// reference first guards against revivifying an operation that has
// already started.
func (s *Scheduler[K]) cancel(o *op[K]) {
	o.mu.Lock()
	pending := o.mu.task != nil
	o.mu.task = nil
	cancelExec := o.mu.cancel
	o.mu.Unlock()

	if cancelExec != nil {
		cancelExec(ErrCanceled)
	}
	if !pending {
		return
	}
	o.outcome.Set(StatusFor(ErrCanceled))
	s.finish(o)
}

// start hands the operation to the runner. The op must be runnable.
func (s *Scheduler[K]) start(o *op[K]) {
	work := func(ctx context.Context) {
		ctx, cancelExec := context.WithCancelCause(ctx)
		defer cancelExec(nil)

		o.mu.Lock()
		task := o.mu.task
		o.mu.task = nil
		if task != nil {
			o.mu.cancel = cancelExec
		}
		o.mu.Unlock()

		// Canceled between admission and execution. The cancel callback
		// resolved the outcome and released the key slots; there is
		// nothing left to do.
		if task == nil {
			return
		}

		o.outcome.Set(executing)
		s.events.doStarted(task, time.Since(o.scheduled))
		err := tryCall(ctx, task)
		o.mu.Lock()
		o.mu.cancel = nil
		o.mu.Unlock()
		s.events.doComplete(task, time.Since(o.scheduled))

		o.outcome.Set(StatusFor(err))
		s.finish(o)
	}

	if err := s.runner.Go(work); err != nil {
		o.mu.Lock()
		o.mu.task = nil
		o.mu.Unlock()
		o.outcome.Set(StatusFor(err))
		s.finish(o)
	}
}

// finish releases the operation's key slots and starts any operations
// that became runnable.
func (s *Scheduler[K]) finish(o *op[K]) {
	unblocked, _ := s.queue.Dequeue(o)
	for _, next := range unblocked {
		s.start(next)
	}
}

// Wait returns the first error among the outcomes, or nil once all of
// them succeed.
func Wait(ctx context.Context, outcomes []Outcome) error {
outcome:
	for _, outcome := range outcomes {
		for {
			status, changed := outcome.Get()
			if status.Success() {
				continue outcome
			}
			if err := status.Err(); err != nil {
				return err
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// tryCall invokes the operation with a panic handler.
func tryCall[K any](ctx context.Context, task Task[K]) (err error) {
	// Install panic handler before executing user code.
	defer func() {
		x := recover()
		switch t := x.(type) {
		case nil:
		// Success.
		case error:
			err = t
		default:
			err = fmt.Errorf("panic in operation: %v", t)
		}
	}()

	return task.Call(ctx)
}
