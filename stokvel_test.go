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

package stokvel_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/stokvel"
	"github.com/blinklabs-io/stokvel/event"
	"github.com/blinklabs-io/stokvel/ledger"
)

func TestNewInvalidConfig(t *testing.T) {
	testDefs := []struct {
		name string
		opts []stokvel.ConfigOptionFunc
	}{
		{
			name: "negative attempts",
			opts: []stokvel.ConfigOptionFunc{stokvel.WithMaxAttempts(-1)},
		},
		{
			name: "negative workers",
			opts: []stokvel.ConfigOptionFunc{stokvel.WithPenaltyWorkers(-3)},
		},
		{
			name: "negative penalty",
			opts: []stokvel.ConfigOptionFunc{stokvel.WithLatePenalty(decimal.NewFromInt(-5))},
		},
		{
			name: "late penalty not below missed",
			opts: []stokvel.ConfigOptionFunc{
				stokvel.WithLatePenalty(decimal.NewFromInt(100)),
				stokvel.WithMissedPenalty(decimal.NewFromInt(100)),
			},
		},
		{
			name: "bad schedule",
			opts: []stokvel.ConfigOptionFunc{stokvel.WithPenaltySchedule("every eighth")},
		},
		{
			name: "unknown plugin",
			opts: []stokvel.ConfigOptionFunc{stokvel.WithEntityPlugin("cassandra")},
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			_, err := stokvel.New(stokvel.NewConfig(testDef.opts...))
			require.Error(t, err)
		})
	}
}

func TestStokvelZeroConfig(t *testing.T) {
	s, err := stokvel.New(stokvel.Config{})
	require.NoError(t, err)
	_, err = s.Ledger().Members.Register(
		context.Background(),
		"lwazi@example.com",
		"Lwazi Cele",
		"+27820000005",
		[]int{50},
	)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		require.NoError(t, s.Close())
	})
}

func TestStokvelEndToEnd(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s, err := stokvel.New(
		stokvel.NewConfig(
			stokvel.WithPrometheusRegistry(reg),
			stokvel.WithLatePenalty(decimal.NewFromInt(30)),
			stokvel.WithMissedPenalty(decimal.NewFromInt(70)),
			stokvel.WithRetryBackoff(time.Millisecond),
		),
	)
	require.NoError(t, err)
	defer s.Close()

	_, approvedCh := s.EventBus().Subscribe(event.PaymentApprovedEventType)

	l := s.Ledger()
	_, err = l.Members.Register(ctx, "palesa@example.com", "Palesa Molefe", "+27820000003", []int{50})
	require.NoError(t, err)
	_, err = l.Members.Register(ctx, "kagiso@example.com", "Kagiso Sithole", "+27820000004", []int{100})
	require.NoError(t, err)

	_, err = l.Payments.Submit(ctx, "palesa@example.com", 50, 2, "")
	require.NoError(t, err)
	approval, err := l.Approvals.Approve(ctx, "palesa@example.com", ledger.PeriodKey{Tier: 50, Month: 2})
	require.NoError(t, err)
	assert.True(t, approval.Member.TotalContribution.Equal(decimal.NewFromInt(100)))
	evt := <-approvedCh
	assert.Equal(t, event.PaymentApprovedEventType, evt.Type)

	report, err := s.Scheduler().RunOnce(ctx, ledger.Period{Year: 2026, Month: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Exempt)
	assert.Equal(t, 1, report.Missed)
	assert.True(t, report.Total.Equal(decimal.NewFromInt(70)))

	kagiso, err := l.Members.Find(ctx, "kagiso@example.com")
	require.NoError(t, err)
	assert.True(t, kagiso.PenaltyBalance.Equal(decimal.NewFromInt(70)))

	mismatches, err := l.Reconciler.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	assert.Positive(t, testutil.CollectAndCount(reg, "database_entity_ops_total"))
	assert.Positive(t, testutil.CollectAndCount(reg, "event_bus_events_total"))
}

func TestStokvelPersistence(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()
	s, err := stokvel.New(stokvel.NewConfig(stokvel.WithDatabasePath(dataDir)))
	require.NoError(t, err)
	_, err = s.Ledger().Members.Register(ctx, "naledi@example.com", "Naledi Mahlangu", "+27824440404", []int{200})
	require.NoError(t, err)
	_, err = s.Scheduler().RunOnce(ctx, ledger.Period{Year: 2026, Month: 1})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = stokvel.New(stokvel.NewConfig(stokvel.WithDatabasePath(dataDir)))
	require.NoError(t, err)
	defer s.Close()
	m, err := s.Ledger().Members.Find(ctx, "naledi@example.com")
	require.NoError(t, err)
	assert.True(t, m.PenaltyBalance.Equal(ledger.DefaultMissedPenalty))
	run, err := s.Scheduler().Marker(ctx, ledger.Period{Year: 2026, Month: 1})
	require.NoError(t, err)
	assert.Equal(t, "complete", run.Status)
}

func TestStokvelSchedulerLifecycle(t *testing.T) {
	s, err := stokvel.New(stokvel.NewConfig())
	require.NoError(t, err)
	require.NoError(t, s.StartScheduler(context.Background()))
	next := s.Scheduler().Next()
	assert.Equal(t, 8, next.Day())
	assert.Equal(t, 0, next.Hour())
	require.NoError(t, s.Close())
	// Close is idempotent
	require.NoError(t, s.Close())
}
