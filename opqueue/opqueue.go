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

/*
Package opqueue runs operations against keyed shared state in strict
arrival order per key.

A broker mutates session tables and subscription registries on behalf of
many connections at once. Operations name the keys they touch (client
identifiers, topic filters), and the [Scheduler] runs each operation
once it is at the head of the queue for every one of its keys:

	sched := NewScheduler[string](GoRunner(ctx))

	// Subscribe and unsubscribe for the same client must not interleave.
	subOut, _ := sched.Schedule(TaskFunc([]string{"client-a"}, subscribe))
	unsubOut, _ := sched.Schedule(TaskFunc([]string{"client-a"}, unsubscribe))

	Wait(ctx, []Outcome{subOut, unsubOut})

Operations with disjoint key sets run concurrently. Operations with
overlapping key sets never deadlock against each other because arrival
order is preserved across every key they share.

Also included is [Queue], the keyed admission queue underneath the
Scheduler, which can be used directly by code with its own execution
machinery.
*/
package opqueue
