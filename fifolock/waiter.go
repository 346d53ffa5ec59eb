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

import "time"

type waiterState int

const (
	statePending waiterState = iota
	stateApproved
	stateCanceled
	stateFailed
)

// A waiter records one queued acquisition. Its fields are written only
// while holding the owning Lock's mutex; err is published to the
// blocked acquirer by the close of done.
type waiter struct {
	seq      uint64    // Diagnostic ordering only; queue position is ground truth.
	enqueued time.Time // The time at which Acquire queued the waiter.
	state    waiterState
	err      error
	done     chan struct{} // Closed on any terminal transition. Nil for the direct waiter.
	stop     func() bool   // Tears down the cancellation subscription.
}

// isPending reports whether the waiter is still eligible to be granted.
func (w *waiter) isPending() bool {
	return w.state == statePending
}

// approve grants the waiter. Only the first terminal transition has any
// effect; later calls are no-ops.
func (w *waiter) approve() bool {
	return w.resolve(stateApproved, nil)
}

// cancel resolves the waiter on behalf of its cancellation
// subscription. The waiter stays queued; the next release scan
// discards it.
func (w *waiter) cancel(err error) bool {
	return w.resolve(stateCanceled, err)
}

// fail resolves the waiter when the lock closes underneath it.
func (w *waiter) fail(err error) bool {
	return w.resolve(stateFailed, err)
}

func (w *waiter) resolve(next waiterState, err error) bool {
	if w.state != statePending {
		return false
	}
	w.state = next
	w.err = err
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
	close(w.done)
	return true
}
