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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const ledgerMetricNamePrefix = "stokvel_ledger_"

type ledgerMetrics struct {
	membersRegistered   prometheus.Counter
	paymentsSubmitted   prometheus.Counter
	paymentsDecided     *prometheus.CounterVec
	contributionCredit  prometheus.Counter
	approvalPartial     prometheus.Counter
	conflictRetries     prometheus.Counter
	contention          prometheus.Counter
	penaltiesApplied    *prometheus.CounterVec
	penaltyAmount       prometheus.Counter
	penaltyCycleLatency prometheus.Histogram
	reconcileMismatches prometheus.Gauge
}

// newLedgerMetrics registers the ledger metrics. A nil registry yields
// working but unregistered collectors.
func newLedgerMetrics(promRegistry prometheus.Registerer) *ledgerMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &ledgerMetrics{
		membersRegistered: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: ledgerMetricNamePrefix + "members_registered_total",
			Help: "members registered",
		}),
		paymentsSubmitted: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: ledgerMetricNamePrefix + "payments_submitted_total",
			Help: "payments submitted",
		}),
		paymentsDecided: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ledgerMetricNamePrefix + "payments_decided_total",
				Help: "payments moved out of Pending, by resulting status",
			},
			[]string{"status"},
		),
		contributionCredit: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: ledgerMetricNamePrefix + "contribution_credited_total",
			Help: "total amount credited to member contributions",
		}),
		approvalPartial: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: ledgerMetricNamePrefix + "approval_partial_total",
			Help: "approvals where the payment was approved but the member was not credited",
		}),
		conflictRetries: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: ledgerMetricNamePrefix + "conflict_retries_total",
			Help: "read-modify-write attempts retried after a token conflict",
		}),
		contention: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: ledgerMetricNamePrefix + "contention_total",
			Help: "read-modify-write operations that ran out of attempts",
		}),
		penaltiesApplied: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ledgerMetricNamePrefix + "penalties_applied_total",
				Help: "penalties applied, by kind",
			},
			[]string{"kind"},
		),
		penaltyAmount: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: ledgerMetricNamePrefix + "penalty_amount_total",
			Help: "total penalty amount applied",
		}),
		penaltyCycleLatency: promautoFactory.NewHistogram(prometheus.HistogramOpts{
			Name:    ledgerMetricNamePrefix + "penalty_cycle_duration_seconds",
			Help:    "duration of penalty cycles",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),
		reconcileMismatches: promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: ledgerMetricNamePrefix + "reconcile_mismatches",
			Help: "members whose total contribution differed from approved payments at the last check",
		}),
	}
}
