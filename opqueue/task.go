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

import "context"

// A Task is provided to [Scheduler.Schedule].
type Task[K any] interface {
	// Call contains the logic associated with the operation.
	Call(ctx context.Context) error
	// Keys returns the keys the operation must hold before running.
	Keys() []K
}

// TaskFunc returns a [Task] that runs the callback once the given keys
// are held.
func TaskFunc[K comparable](keys []K, fn func(ctx context.Context, keys []K) error) Task[K] {
	return &taskFunc[K]{fn, dedup(keys)}
}

type taskFunc[K any] struct {
	fn   func(ctx context.Context, keys []K) error
	keys []K
}

func (t *taskFunc[K]) Call(ctx context.Context) error { return t.fn(ctx, t.keys) }
func (t *taskFunc[K]) Keys() []K                      { return t.keys }
