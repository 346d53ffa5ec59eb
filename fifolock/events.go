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

// Events provides a [Lock] with optional callbacks to monitor
// contention. Callbacks are invoked outside the lock's internal
// critical section and must not block for long.
//
// See [Lock.SetEvents].
type Events struct {
	// OnAcquire is called for each admitted acquisition; deferred is
	// true when the caller had to queue behind the current holder.
	OnAcquire func(deferred bool)
	// OnGranted is called when a queued acquisition is granted.
	OnGranted func(waited time.Duration)
	// OnClosed is called once when the lock closes, with the number of
	// queued acquisitions that were resolved with [ErrClosed].
	OnClosed func(abandoned int)
}

func (e *Events) doAcquire(deferred bool) {
	if e != nil && e.OnAcquire != nil {
		e.OnAcquire(deferred)
	}
}

func (e *Events) doGranted(waited time.Duration) {
	if e != nil && e.OnGranted != nil {
		e.OnGranted(waited)
	}
}

func (e *Events) doClosed(abandoned int) {
	if e != nil && e.OnClosed != nil {
		e.OnClosed(abandoned)
	}
}
