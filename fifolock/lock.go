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

package fifolock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by [Lock.Acquire] once [Lock.Close] has been
	// called. Waiters still queued when the lock closes are resolved
	// with it as well.
	ErrClosed = errors.New("lock closed")

	// ErrAcquireCanceled is returned by [Lock.Acquire] when the caller's
	// context ends while its acquisition is still queued.
	ErrAcquireCanceled = fmt.Errorf("%w: lock acquisition abandoned", context.Canceled)
)

// A Lock is a mutual-exclusion lock with strict FIFO grant order.
//
// A Lock is internally synchronized and is safe for concurrent use. A
// Lock should not be copied after it has been created. Use [New] to
// construct one.
type Lock struct {
	events *Events // Injectable callbacks.

	// direct and directGuard are handed out whenever the queue is empty
	// at acquire time. The waiter carries no per-acquisition state, so
	// one instance serves every uncontended grant.
	direct      *waiter
	directGuard *Guard

	mu struct {
		sync.Mutex
		closed  bool
		nextSeq uint64
		// queue[0] is the current holder; entries behind it are queued
		// acquisitions in arrival order. Entries that canceled while
		// queued stay in place until the next release scan.
		queue []*waiter
	}
}

// New constructs a [Lock].
func New() *Lock {
	l := &Lock{}
	l.direct = &waiter{state: stateApproved}
	l.directGuard = &Guard{lock: l, w: l.direct}
	return l
}

// SetEvents allows monitoring callbacks to be injected into the Lock.
// This method should be called prior to any call to [Lock.Acquire].
func (l *Lock) SetEvents(events *Events) {
	l.events = events
}

// Acquire returns a [Guard] once the caller holds the lock.
//
// If the lock is uncontended, Acquire returns immediately without
// suspending or allocating. Otherwise the caller is queued behind the
// current holder and blocks until it is granted, its context ends, or
// the lock is closed. The context is consulted only while the
// acquisition is queued; it does not limit how long the lock may be
// held.
//
// Acquisitions are granted in the order Acquire was called, skipping
// any that were abandoned before their turn.
func (l *Lock) Acquire(ctx context.Context) (*Guard, error) {
	l.mu.Lock()
	if l.mu.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if len(l.mu.queue) == 0 {
		l.mu.queue = append(l.mu.queue, l.direct)
		l.mu.Unlock()
		l.events.doAcquire(false)
		return l.directGuard, nil
	}
	w := &waiter{
		seq:      l.mu.nextSeq,
		enqueued: time.Now(),
		done:     make(chan struct{}),
	}
	l.mu.nextSeq++
	if ctx.Done() != nil {
		// If ctx is already done, the callback runs in its own
		// goroutine and blocks on l.mu until the enqueue below is
		// visible, so the waiter is canceled rather than lost.
		w.stop = context.AfterFunc(ctx, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			w.cancel(ErrAcquireCanceled)
		})
	}
	l.mu.queue = append(l.mu.queue, w)
	l.mu.Unlock()
	l.events.doAcquire(true)

	<-w.done
	if w.err != nil {
		return nil, w.err
	}
	l.events.doGranted(time.Since(w.enqueued))
	return &Guard{lock: l, w: w}, nil
}

// TryAcquire returns a [Guard] if the lock is free, without blocking.
func (l *Lock) TryAcquire() (*Guard, bool) {
	l.mu.Lock()
	if l.mu.closed || len(l.mu.queue) != 0 {
		l.mu.Unlock()
		return nil, false
	}
	l.mu.queue = append(l.mu.queue, l.direct)
	l.mu.Unlock()
	l.events.doAcquire(false)
	return l.directGuard, true
}

// Close resolves every queued acquisition with [ErrClosed] and makes
// all future calls to [Lock.Acquire] fail with it. No waiter is left
// blocked. Closing an already-closed Lock is a no-op.
func (l *Lock) Close() {
	l.mu.Lock()
	if l.mu.closed {
		l.mu.Unlock()
		return
	}
	l.mu.closed = true
	abandoned := 0
	for i, w := range l.mu.queue {
		if w.fail(ErrClosed) {
			abandoned++
		}
		l.mu.queue[i] = nil
	}
	l.mu.queue = nil
	l.mu.Unlock()
	l.events.doClosed(abandoned)
}

// release hands the lock to the next live waiter. It must be called
// with the waiter that currently holds the lock; anything else is a
// double release or a cross-lock mixup, both programming errors.
func (l *Lock) release(w *waiter) {
	l.mu.Lock()
	if l.mu.closed {
		// Close already resolved all queued state.
		l.mu.Unlock()
		return
	}
	if len(l.mu.queue) == 0 || l.mu.queue[0] != w {
		l.mu.Unlock()
		panic("fifolock: Release called with a guard that is not the current holder")
	}
	l.popHead()
	// Reclaim the slots of waiters that gave up while queued.
	// Cancellation only flips their state; removal happens here.
	for len(l.mu.queue) > 0 && !l.mu.queue[0].isPending() {
		l.popHead()
	}
	if len(l.mu.queue) > 0 {
		l.mu.queue[0].approve()
	}
	l.mu.Unlock()
}

// popHead shifts the queue in place so its backing array is reused by
// later enqueues.
func (l *Lock) popHead() {
	q := l.mu.queue
	n := copy(q, q[1:])
	q[n] = nil
	l.mu.queue = q[:n]
}

// A Guard represents held exclusive access to a [Lock]. The holder of
// a Guard must call [Guard.Release] exactly once, on every exit path
// from its critical section.
type Guard struct {
	lock *Lock
	w    *waiter
}

// Release ends the critical section and grants the lock to the next
// queued acquirer, if any. Releasing a Guard that is not the current
// holder panics.
func (g *Guard) Release() {
	g.lock.release(g.w)
}
