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

// Package notify contains a utility for observing changes to a value.
package notify

import "sync"

// A Var holds a value that can be waited upon. The zero value is ready
// to use and holds the zero value of T.
//
// A Var is internally synchronized and safe for concurrent use. It
// should not be copied after first use.
type Var[T any] struct {
	mu      sync.Mutex
	value   T
	changed chan struct{} // Lazily created; closed and replaced by Set.
}

// VarOf returns a [Var] that holds the given value.
func VarOf[T any](value T) *Var[T] {
	v := &Var[T]{}
	v.value = value
	return v
}

// Get returns the current value and a channel that will be closed the
// next time [Var.Set] is called.
func (v *Var[T]) Get() (T, <-chan struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.changed == nil {
		v.changed = make(chan struct{})
	}
	return v.value, v.changed
}

// Set stores a new value and wakes any callers blocked on a channel
// previously returned from [Var.Get].
func (v *Var[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
	if v.changed != nil {
		close(v.changed)
		v.changed = nil
	}
}
