// Copyright 2025 Blink Labs Software
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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// retryConflicts runs fn until it succeeds, fails with an error other than
// ErrConflict, or uses up the attempt budget. fn must re-read the record on
// every call.
func (e *env) retryConflicts(
	ctx context.Context,
	what string,
	fn func() error,
) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err
		if attempt == e.maxAttempts {
			break
		}
		e.metrics.conflictRetries.Inc()
		e.logger.Debug(
			"retrying after conflict",
			"target", what,
			"attempt", attempt,
		)
		if err := e.backoff(ctx, attempt); err != nil {
			return err
		}
	}
	e.metrics.contention.Inc()
	e.logger.Warn(
		"giving up after repeated conflicts",
		"target", what,
		"attempts", e.maxAttempts,
	)
	return fmt.Errorf(
		"%s: %w after %d attempts (last error: %s)",
		what,
		ErrContention,
		e.maxAttempts,
		lastErr,
	)
}

// backoff sleeps for a linearly growing, jittered delay
func (e *env) backoff(ctx context.Context, attempt int) error {
	if e.retryBackoff <= 0 {
		return ctx.Err()
	}
	delay := e.retryBackoff * time.Duration(attempt)
	delay += rand.N(e.retryBackoff)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
