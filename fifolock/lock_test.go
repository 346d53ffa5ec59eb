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
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func (l *Lock) queueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.mu.queue)
}

// waitQueueLen blocks until the queue reaches the given length. Used to
// pin down enqueue order when waiters arrive from separate goroutines.
func waitQueueLen(t *testing.T, l *Lock, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for l.queueLen() != n {
		if time.Now().After(deadline) {
			t.Fatalf("queue never reached length %d", n)
		}
		runtime.Gosched()
	}
}

func TestFastPath(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	l := New()
	g, err := l.Acquire(ctx)
	r.NoError(err)
	// The uncontended grant reuses one preallocated guard.
	r.Same(l.directGuard, g)
	r.Equal(1, l.queueLen())
	g.Release()
	r.Equal(0, l.queueLen())

	// Steady-state uncontended acquire/release allocates nothing.
	allocs := testing.AllocsPerRun(100, func() {
		g, err := l.Acquire(ctx)
		if err != nil {
			t.Error(err)
		}
		g.Release()
	})
	r.Zero(allocs)
}

func TestTryAcquire(t *testing.T) {
	r := require.New(t)

	l := New()
	g, ok := l.TryAcquire()
	r.True(ok)

	_, ok = l.TryAcquire()
	r.False(ok)
	g.Release()

	g, ok = l.TryAcquire()
	r.True(ok)
	g.Release()

	l.Close()
	_, ok = l.TryAcquire()
	r.False(ok)
}

// Waiters are granted in the exact order they were queued.
func TestGrantOrder(t *testing.T) {
	const numWaiters = 32
	r := require.New(t)
	ctx := context.Background()

	l := New()
	holder, ok := l.TryAcquire()
	r.True(ok)

	var mu sync.Mutex
	var order []int

	eg, _ := errgroup.WithContext(ctx)
	for i := 0; i < numWaiters; i++ {
		i := i
		eg.Go(func() error {
			g, err := l.Acquire(ctx)
			if err != nil {
				return err
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			g.Release()
			return nil
		})
		// Each waiter must be queued before the next goroutine starts,
		// otherwise arrival order is not defined.
		waitQueueLen(t, l, i+2)
	}

	holder.Release()
	r.NoError(eg.Wait())

	expected := make([]int, numWaiters)
	for i := range expected {
		expected[i] = i
	}
	r.Equal(expected, order)
	r.Equal(0, l.queueLen())
}

// Queue [A, B, C]: cancel B while A holds; C, not B, is granted next.
func TestCancelSkipped(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	l := New()
	holder, ok := l.TryAcquire()
	r.True(ok)

	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bErr := make(chan error, 1)
	go func() {
		_, err := l.Acquire(cancelCtx)
		bErr <- err
	}()
	waitQueueLen(t, l, 2)

	cGranted := make(chan *Guard, 1)
	go func() {
		g, err := l.Acquire(ctx)
		r.NoError(err)
		cGranted <- g
	}()
	waitQueueLen(t, l, 3)

	cancel()
	err := <-bErr
	r.ErrorIs(err, ErrAcquireCanceled)
	r.ErrorIs(err, context.Canceled)

	// Cancellation marks the waiter but does not dequeue it.
	r.Equal(3, l.queueLen())

	holder.Release()
	g := <-cGranted
	// The release scan discarded the canceled waiter.
	r.Equal(1, l.queueLen())
	g.Release()
	r.Equal(0, l.queueLen())
}

// A context that is already done cancels the acquisition rather than
// losing it.
func TestAcquireWithDoneContext(t *testing.T) {
	r := require.New(t)

	l := New()
	holder, ok := l.TryAcquire()
	r.True(ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Acquire(ctx)
	r.ErrorIs(err, ErrAcquireCanceled)

	holder.Release()
	r.Equal(0, l.queueLen())
}

func TestCloseResolvesAllWaiters(t *testing.T) {
	const numWaiters = 8
	r := require.New(t)
	ctx := context.Background()

	l := New()
	holder, ok := l.TryAcquire()
	r.True(ok)

	var abandoned int
	l.SetEvents(&Events{
		OnClosed: func(n int) { abandoned = n },
	})

	errs := make(chan error, numWaiters)
	for i := 0; i < numWaiters; i++ {
		go func() {
			_, err := l.Acquire(ctx)
			errs <- err
		}()
		waitQueueLen(t, l, i+2)
	}

	l.Close()
	for i := 0; i < numWaiters; i++ {
		r.ErrorIs(<-errs, ErrClosed)
	}
	r.Equal(numWaiters, abandoned)

	// Acquires made after closing fail immediately.
	_, err := l.Acquire(ctx)
	r.ErrorIs(err, ErrClosed)

	// Releasing the guard held at close time is a no-op, and closing
	// twice has no additional effect.
	holder.Release()
	l.Close()
	r.Equal(0, l.queueLen())
}

// At most one guard is held at any instant.
func TestSingleHolder(t *testing.T) {
	const numTasks = 16
	const numRounds = 200
	r := require.New(t)
	ctx := context.Background()

	l := New()

	// Deliberately not atomic; the lock is the only synchronization.
	counter := 0

	eg, _ := errgroup.WithContext(ctx)
	for i := 0; i < numTasks; i++ {
		eg.Go(func() error {
			for j := 0; j < numRounds; j++ {
				g, err := l.Acquire(ctx)
				if err != nil {
					return err
				}
				v := counter
				runtime.Gosched()
				counter = v + 1
				g.Release()
			}
			return nil
		})
	}
	r.NoError(eg.Wait())
	r.Equal(numTasks*numRounds, counter)
	r.Equal(0, l.queueLen())
}

func TestReleaseByNonHolderPanics(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	l := New()
	stale, err := l.Acquire(ctx)
	r.NoError(err)

	granted := make(chan *Guard, 1)
	go func() {
		g, err := l.Acquire(ctx)
		r.NoError(err)
		granted <- g
	}()
	waitQueueLen(t, l, 2)

	stale.Release()
	g := <-granted

	// The direct guard was already released and the lock has moved on;
	// releasing it again is a loud programming error.
	r.Panics(func() { stale.Release() })

	g.Release()
}

func TestWaiterTerminalOnce(t *testing.T) {
	r := require.New(t)

	w := &waiter{done: make(chan struct{})}
	r.True(w.isPending())
	r.True(w.approve())
	r.False(w.isPending())

	// The first transition wins; later ones are no-ops.
	r.False(w.approve())
	r.False(w.cancel(ErrAcquireCanceled))
	r.False(w.fail(ErrClosed))
	r.Equal(stateApproved, w.state)
	r.NoError(w.err)

	w = &waiter{done: make(chan struct{})}
	r.True(w.cancel(ErrAcquireCanceled))
	r.False(w.fail(ErrClosed))
	r.ErrorIs(w.err, ErrAcquireCanceled)
}

// The concrete two-task scenario: grant(T1), enqueue(T2), release(T1),
// grant(T2), release(T2).
func TestHandoffScenario(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	l := New()
	var mu sync.Mutex
	var events []string
	l.SetEvents(&Events{
		OnAcquire: func(deferred bool) {
			mu.Lock()
			defer mu.Unlock()
			if deferred {
				events = append(events, "enqueue")
			} else {
				events = append(events, "grant-direct")
			}
		},
		OnGranted: func(time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "grant-queued")
		},
	})

	g1, err := l.Acquire(ctx)
	r.NoError(err)

	t2 := make(chan *Guard, 1)
	go func() {
		g, err := l.Acquire(ctx)
		r.NoError(err)
		t2 <- g
	}()
	waitQueueLen(t, l, 2)

	g1.Release()
	g2 := <-t2
	g2.Release()

	r.Equal(0, l.queueLen())
	mu.Lock()
	defer mu.Unlock()
	r.Equal([]string{"grant-direct", "enqueue", "grant-queued"}, events)
}

// Close racing with acquire/release must neither hang a caller nor
// corrupt the queue.
func TestCloseAcquireRace(t *testing.T) {
	const numTasks = 16
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	l := New()
	eg, _ := errgroup.WithContext(ctx)
	for i := 0; i < numTasks; i++ {
		eg.Go(func() error {
			for {
				g, err := l.Acquire(ctx)
				if err != nil {
					if errors.Is(err, ErrClosed) {
						return nil
					}
					return err
				}
				runtime.Gosched()
				g.Release()
			}
		})
	}

	time.Sleep(10 * time.Millisecond)
	l.Close()
	r.NoError(eg.Wait())
	r.Equal(0, l.queueLen())

	_, err := l.Acquire(ctx)
	r.ErrorIs(err, ErrClosed)
}
