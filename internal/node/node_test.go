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

package node

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/stokvel/internal/config"
	"github.com/blinklabs-io/stokvel/ledger"
)

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		EntityPlugin:     config.DefaultEntityPlugin,
		BlobPlugin:       config.DefaultBlobPlugin,
		DatabasePath:     dataDir,
		ShutdownTimeout:  "5s",
		PenaltySchedule:  config.DefaultPenaltySchedule,
		ScheduleTimezone: "UTC",
		LatePenalty:      "20",
		MissedPenalty:    "40",
		RetryBackoff:     "1ms",
		MaxAttempts:      3,
		PenaltyWorkers:   2,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestOptionsRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("")
	cfg.LatePenalty = "lots"
	_, err := Options(cfg, discardLogger(), nil)
	require.Error(t, err)
}

func TestOpenPersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir())

	s, err := Open(cfg, discardLogger(), nil)
	require.NoError(t, err)
	_, err = s.Ledger().Members.Register(ctx, "thandi@example.com", "Thandi Nkosi", "+27820000001", []int{100})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(cfg, discardLogger(), nil)
	require.NoError(t, err)
	defer s.Close()
	m, err := s.Ledger().Members.Find(ctx, "thandi@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Thandi Nkosi", m.FullName)
}

func TestOpenAppliesPenaltyAmounts(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s, err := Open(testConfig(""), discardLogger(), reg)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Ledger().Members.Register(ctx, "lerato@example.com", "Lerato Mokoena", "+27820000002", []int{50})
	require.NoError(t, err)
	report, err := s.Scheduler().RunOnce(ctx, ledger.Period{Year: 2026, Month: 5})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, ledger.PenaltyMissed, report.Outcomes[0].Kind)
	assert.True(t, decimal.NewFromInt(40).Equal(report.Outcomes[0].Amount))
	assert.Positive(t, testutil.CollectAndCount(reg, "stokvel_ledger_penalties_applied_total"))
}
