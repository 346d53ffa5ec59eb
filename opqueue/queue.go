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
	"fmt"
	"slices"
	"sync"
)

// A slot tracks one queued value. Instances are only accessed while
// holding the parent Queue's mutex.
type slot[K any] struct {
	keys []K
	// ahead counts the key queues in which some earlier value still
	// precedes this one. The value is runnable when ahead reaches zero.
	ahead int
}

// A Queue admits values in arrival order across potentially-overlapping
// key sets. A value becomes runnable once it is at the head of the
// queue for every key it named; values with no keys in common are
// runnable independently.
//
// Relative order is preserved: if [Queue.Enqueue] is called with V1 and
// then V2, V1 precedes V2 in every key queue they share, so values can
// never deadlock against each other.
//
// A Queue is internally synchronized and is safe for concurrent use. A
// Queue should not be copied after it has been created.
type Queue[K, V comparable] struct {
	mu struct {
		sync.Mutex
		order  map[V]*slot[K]
		queues map[K][]V
	}
}

// NewQueue constructs a [Queue].
func NewQueue[K, V comparable]() *Queue[K, V] {
	q := &Queue[K, V]{}
	q.mu.order = make(map[V]*slot[K])
	q.mu.queues = make(map[K][]V)
	return q
}

// Enqueue adds the value to the queue of each of its keys and reports
// whether the value is immediately runnable. It is an error to enqueue
// a value that is already queued.
//
// A value with an empty key set is runnable at once.
func (q *Queue[K, V]) Enqueue(keys []K, val V) (runnable bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.mu.order[val]; dup {
		return false, fmt.Errorf("the value %v is already queued", val)
	}

	s := &slot[K]{keys: dedup(keys)}
	q.mu.order[val] = s
	for _, k := range s.keys {
		q.mu.queues[k] = append(q.mu.queues[k], val)
		if len(q.mu.queues[k]) > 1 {
			s.ahead++
		}
	}
	return s.ahead == 0, nil
}

// Dequeue removes the value and returns any values that became runnable
// as a result. The bool return reports whether the value was queued;
// dequeuing an unknown value is a no-op, so callers may race a
// completion against a cancellation without coordinating.
func (q *Queue[K, V]) Dequeue(val V) ([]V, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.mu.order[val]
	if !ok {
		return nil, false
	}
	delete(q.mu.order, val)

	var unblocked []V
	for _, k := range s.keys {
		entries := q.mu.queues[k]

		// The value is usually the head of its key queues; it sits in
		// the middle only when it was canceled while waiting.
		idx := slices.Index(entries, val)
		if idx < 0 {
			panic(fmt.Sprintf("queued value missing from key queue %v", k))
		}
		entries = slices.Delete(entries, idx, idx+1)
		if len(entries) == 0 {
			delete(q.mu.queues, k)
			continue
		}
		q.mu.queues[k] = entries

		// Removing the head promotes the next value in this key queue.
		if idx == 0 {
			head := q.mu.order[entries[0]]
			head.ahead--
			switch {
			case head.ahead == 0:
				unblocked = append(unblocked, entries[0])
			case head.ahead < 0:
				panic("promoted past the head of a key queue")
			}
		}
	}
	return unblocked, true
}

// IsEmpty returns true if no values are queued.
func (q *Queue[K, V]) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.mu.order) == 0
}

// IsQueuedKey returns true if any queued value names the key.
func (q *Queue[K, V]) IsQueuedKey(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.mu.queues[key]) > 0
}

// IsQueuedValue returns true if the value is queued.
func (q *Queue[K, V]) IsQueuedValue(val V) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.mu.order[val]
	return ok
}

// Len returns the number of queued values.
func (q *Queue[K, V]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.mu.order)
}

// dedup copies the key slice, dropping repeated keys. The source is not
// modified.
func dedup[K comparable](keys []K) []K {
	out := make([]K, 0, len(keys))
	seen := make(map[K]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
