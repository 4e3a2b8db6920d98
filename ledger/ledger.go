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

// Package ledger implements the stokvel member and payment ledger: member
// registration and balances, payment submission, payment approval and the
// monthly penalty cycle.
//
// All writes are optimistic compare-and-swap operations against the entity
// store. No operation spans more than one record atomically. Approval writes
// the payment first and the member second; a failure in between leaves an
// approved payment whose amount is missing from the member total, which the
// Reconciler detects and repairs.
package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/stokvel/database/plugin/blob"
	"github.com/blinklabs-io/stokvel/database/plugin/entity"
	"github.com/blinklabs-io/stokvel/event"
)

const (
	DefaultMaxAttempts    = 5
	DefaultRetryBackoff   = 10 * time.Millisecond
	DefaultPenaltyWorkers = 4

	tracerName = "github.com/blinklabs-io/stokvel/ledger"
)

var (
	DefaultLatePenalty   = decimal.NewFromInt(50)
	DefaultMissedPenalty = decimal.NewFromInt(100)
)

type Config struct {
	Logger       *slog.Logger
	Store        entity.EntityStore
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	// Blob enables receipt storage. It is optional.
	Blob           blob.BlobStore
	TracerProvider trace.TracerProvider
	// Now is used for record timestamps
	Now func() time.Time
	// MaxAttempts bounds every read-modify-write retry loop
	MaxAttempts    int
	RetryBackoff time.Duration
	// LatePenalty and MissedPenalty fall back to the defaults when nil. Zero
	// is a valid amount.
	LatePenalty    *decimal.Decimal
	MissedPenalty  *decimal.Decimal
	PenaltyWorkers int
}

// Ledger groups the ledger components. They share one store and are safe
// for concurrent use.
type Ledger struct {
	Members    *MemberLedger
	Payments   *PaymentLedger
	Approvals  *ApprovalWorkflow
	Penalties  *PenaltyEngine
	Reconciler *Reconciler
	// Receipts is nil when no blob store is configured
	Receipts *Receipts
}

// env holds what every component needs
type env struct {
	store        entity.EntityStore
	logger       *slog.Logger
	eventBus     *event.EventBus
	metrics      *ledgerMetrics
	tracer       trace.Tracer
	now          func() time.Time
	maxAttempts  int
	retryBackoff time.Duration
}

func (e *env) publish(eventType event.EventType, data any) {
	if e.eventBus == nil {
		return
	}
	e.eventBus.Publish(event.NewEvent(eventType, data))
}

// ResolvePenalties substitutes the defaults for unset amounts. Neither amount
// may be negative and a late payment must cost less than a missed month.
func ResolvePenalties(
	late *decimal.Decimal,
	missed *decimal.Decimal,
) (decimal.Decimal, decimal.Decimal, error) {
	lateAmount, missedAmount := DefaultLatePenalty, DefaultMissedPenalty
	if late != nil {
		lateAmount = *late
	}
	if missed != nil {
		missedAmount = *missed
	}
	if lateAmount.IsNegative() || missedAmount.IsNegative() {
		return decimal.Zero, decimal.Zero, newValidationError(
			"penalty",
			"penalty amounts must not be negative",
		)
	}
	if !lateAmount.LessThan(missedAmount) {
		return decimal.Zero, decimal.Zero, newValidationError(
			"penalty",
			fmt.Sprintf(
				"late penalty %s must be less than missed penalty %s",
				lateAmount.StringFixed(2),
				missedAmount.StringFixed(2),
			),
		)
	}
	return lateAmount, missedAmount, nil
}

// New builds the ledger components on top of an entity store
func New(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("ledger: entity store is required")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	} else if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	latePenalty, missedPenalty, err := ResolvePenalties(cfg.LatePenalty, cfg.MissedPenalty)
	if err != nil {
		return nil, err
	}
	if cfg.PenaltyWorkers <= 0 {
		cfg.PenaltyWorkers = DefaultPenaltyWorkers
	}
	e := &env{
		store:        cfg.Store,
		logger:       cfg.Logger.With("component", "ledger"),
		eventBus:     cfg.EventBus,
		metrics:      newLedgerMetrics(cfg.PromRegistry),
		tracer:       cfg.TracerProvider.Tracer(tracerName),
		now:          cfg.Now,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
	}
	members := &MemberLedger{env: e}
	payments := &PaymentLedger{env: e, members: members}
	l := &Ledger{
		Members:  members,
		Payments: payments,
		Approvals: &ApprovalWorkflow{
			env:      e,
			members:  members,
			payments: payments,
		},
		Penalties: &PenaltyEngine{
			env:           e,
			members:       members,
			payments:      payments,
			latePenalty:   latePenalty,
			missedPenalty: missedPenalty,
			workers:       cfg.PenaltyWorkers,
		},
		Reconciler: &Reconciler{
			env:      e,
			members:  members,
			payments: payments,
		},
	}
	if cfg.Blob != nil {
		l.Receipts = &Receipts{
			env:      e,
			blob:     cfg.Blob,
			payments: payments,
		}
	}
	return l, nil
}
