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
Package fifolock provides a mutual-exclusion lock that grants contending
acquirers in strict arrival order.

The lock serializes access to shared mutable state (session tables,
subscription registries, per-connection write buffers) in a server that
runs one goroutine per connection. Waiting is cooperative: a blocked
acquirer parks on a channel and holds no OS thread, a queued acquisition
can be abandoned through its context, and the lock can be closed while
acquisitions are in flight without leaving any caller blocked.

The common case is an uncontended lock. That case allocates nothing and
never suspends: the caller receives a preallocated [Guard] and proceeds
immediately.

The lock is not reentrant. A goroutine that acquires twice without
releasing deadlocks behind itself; this is a caller contract, not
something the lock detects.
*/
package fifolock
