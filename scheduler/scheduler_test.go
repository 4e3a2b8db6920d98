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

package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/stokvel/database/plugin/entity"
	"github.com/blinklabs-io/stokvel/database/plugin/entity/sqlite"
	"github.com/blinklabs-io/stokvel/internal/test/testutil"
	"github.com/blinklabs-io/stokvel/ledger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	mu      sync.Mutex
	periods []ledger.Period
	err     error
	block   chan struct{}
	calls   atomic.Int64
}

func (f *fakeRunner) RunPenaltyCycle(ctx context.Context, period ledger.Period) (*ledger.PenaltyReport, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.periods = append(f.periods, period)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &ledger.PenaltyReport{Period: period}, nil
}

var testNow = time.Date(2026, time.April, 8, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) entity.EntityStore {
	t.Helper()
	store, err := sqlite.New("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestScheduler(t *testing.T, runner PenaltyRunner) *Scheduler {
	t.Helper()
	s, err := New(Config{
		Store:     newTestStore(t),
		Penalties: runner,
		Now:       func() time.Time { return testNow },
	})
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Penalties: &fakeRunner{}})
	assert.Error(t, err)
	_, err = New(Config{Store: newTestStore(t)})
	assert.Error(t, err)
	_, err = New(Config{
		Store:     newTestStore(t),
		Penalties: &fakeRunner{},
		Schedule:  "not a schedule",
	})
	assert.Error(t, err)
}

func TestRunOnceClaimsPeriod(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner)
	ctx := context.Background()
	april := ledger.Period{Year: 2026, Month: time.April}

	report, err := s.RunOnce(ctx, april)
	require.NoError(t, err)
	assert.Equal(t, april, report.Period)

	_, err = s.RunOnce(ctx, april)
	require.ErrorIs(t, err, ErrPeriodProcessed)
	assert.Equal(t, int64(1), runner.calls.Load())

	run, err := s.Marker(ctx, april)
	require.NoError(t, err)
	assert.Equal(t, "2026-04", run.Period)
	assert.Equal(t, RunStatusComplete, run.Status)
	assert.Equal(t, TriggerManual, run.Trigger)
	assert.Equal(t, testNow, run.StartedAt)
	assert.Equal(t, testNow, run.FinishedAt)

	// Other periods are independent
	_, err = s.RunOnce(ctx, ledger.Period{Year: 2026, Month: time.May})
	require.NoError(t, err)
	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestFailedRunKeepsMarker(t *testing.T) {
	runErr := errors.New("store down")
	runner := &fakeRunner{err: runErr}
	s := newTestScheduler(t, runner)
	ctx := context.Background()
	april := ledger.Period{Year: 2026, Month: time.April}

	_, err := s.RunOnce(ctx, april)
	require.ErrorIs(t, err, runErr)
	run, err := s.Marker(ctx, april)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "store down", run.Error)

	// A partial run may have penalized members, so it is not retried
	// automatically
	_, err = s.RunOnce(ctx, april)
	require.ErrorIs(t, err, ErrPeriodProcessed)

	runner.err = nil
	_, err = s.ForceRun(ctx, april)
	require.NoError(t, err)
	run, err = s.Marker(ctx, april)
	require.NoError(t, err)
	assert.Equal(t, RunStatusComplete, run.Status)
	assert.Empty(t, run.Error)
	assert.Equal(t, int64(2), runner.calls.Load())
}

func TestMarkerMissing(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{})
	_, err := s.Marker(context.Background(), ledger.Period{Year: 2026, Month: time.April})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRunOnceInvalidPeriod(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner)
	_, err := s.RunOnce(context.Background(), ledger.Period{})
	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.Zero(t, runner.calls.Load())
}

func TestConcurrentRunsClaimOnce(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner)
	ctx := context.Background()
	april := ledger.Period{Year: 2026, Month: time.April}
	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.RunOnce(ctx, april)
		}()
	}
	wg.Wait()
	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, ErrPeriodProcessed)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, int64(1), runner.calls.Load())
}

func TestScheduledRunUsesCurrentPeriod(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner)
	assert.Equal(t, ledger.Period{Year: 2026, Month: time.April}, s.CurrentPeriod())
	s.runScheduled()
	s.runScheduled()
	assert.Equal(t, int64(1), runner.calls.Load())
	run, err := s.Marker(context.Background(), s.CurrentPeriod())
	require.NoError(t, err)
	assert.Equal(t, TriggerSchedule, run.Trigger)
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{})
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	next := s.Next()
	assert.Equal(t, 8, next.Day())
	assert.Equal(t, 0, next.Hour())
	s.Stop()
	s.Stop()
}

func TestStopCancelsRunningCycle(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s := newTestScheduler(t, runner)
	require.NoError(t, s.Start(context.Background()))
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runScheduled()
	}()
	testutil.WaitForCondition(t, func() bool { return runner.calls.Load() == 1 }, 5*time.Second, "penalty cycle did not start")
	s.Stop()
	testutil.RequireClosed(t, done, 5*time.Second, "scheduled run did not return after Stop")
	run, err := s.Marker(context.Background(), s.CurrentPeriod())
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
}
