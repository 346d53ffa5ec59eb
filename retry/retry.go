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

// Package retry provides a utility to retry operations that fail with
// a transient error, based on a supplied backoff strategy. It is used
// for reconnect and other transient-IO flows.
package retry

import (
	"errors"
	"time"

	"github.com/sebastian-dev/mqttnet/stopper"
)

var (
	// ErrMaxRetries is raised when we reach the maximum number of retries.
	ErrMaxRetries = errors.New("too many retries")
	// ErrRetriable tags errors from operations that can be retried.
	ErrRetriable = errors.New("retriable error")
)

// Operation to be retried.
type Operation func(*stopper.Context) error

// Backoff strategy.
type Backoff interface {
	// Next determines how long we have to wait before the next attempt.
	// The second return is true when the strategy is exhausted and the
	// caller must stop.
	//
	// Strategies from https://github.com/sethvargo/go-retry satisfy
	// this contract.
	Next() (time.Duration, bool)
}

// Retry the operation, using the given backoff strategy, for as long as
// it fails with an error tagged [ErrRetriable]. Other errors, and
// success, are returned as-is. When the strategy is exhausted, Retry
// returns [ErrMaxRetries]; when the stopper begins shutting down, Retry
// returns nil.
func Retry(ctx *stopper.Context, strategy Backoff, op Operation) error {
	for {
		if err := op(ctx); err == nil || !errors.Is(err, ErrRetriable) {
			return err
		}
		delay, stop := strategy.Next()
		if stop {
			return ErrMaxRetries
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
			// Try again.
		case <-ctx.Stopping():
			timer.Stop()
			return nil
		}
	}
}
