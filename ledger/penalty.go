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
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/stokvel/event"
)

type PenaltyKind string

const (
	PenaltyNone   PenaltyKind = "none"
	PenaltyLate   PenaltyKind = "late"
	PenaltyMissed PenaltyKind = "missed"
)

// PenaltyOutcome is the result of a penalty cycle for one member
type PenaltyOutcome struct {
	Amount decimal.Decimal
	Email  string
	Kind   PenaltyKind
}

type PenaltyReport struct {
	Period Period
	// Outcomes is sorted by email
	Outcomes []PenaltyOutcome
	Total    decimal.Decimal
	Late     int
	Missed   int
	Exempt   int
}

// PenaltyEngine applies the monthly late and missed payment penalties
type PenaltyEngine struct {
	env           *env
	members       *MemberLedger
	payments      *PaymentLedger
	latePenalty   decimal.Decimal
	missedPenalty decimal.Decimal
	workers       int
}

// RunPenaltyCycle evaluates every member for the period:
//
//   - a member who has paid this month is not penalized
//   - a member who has not, but has a Pending or Approved payment for the
//     period's month, gets the late penalty
//   - anyone else gets the missed penalty
//
// Every member's paid flag is then cleared. The engine keeps no record of
// processed periods, so running it twice for a period penalizes twice.
// The first storage error cancels the remaining work and is returned.
func (e *PenaltyEngine) RunPenaltyCycle(ctx context.Context, period Period) (*PenaltyReport, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	ctx, span := e.env.tracer.Start(
		ctx,
		"ledger.RunPenaltyCycle",
		trace.WithAttributes(attribute.String("stokvel.period", period.String())),
	)
	defer span.End()
	start := e.env.now()
	report, err := e.run(ctx, period)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.env.logger.Error(
			"penalty cycle failed",
			"period", period.String(),
			"error", err,
		)
		return nil, err
	}
	e.env.metrics.penaltyCycleLatency.Observe(e.env.now().Sub(start).Seconds())
	span.SetAttributes(
		attribute.Int("stokvel.members", len(report.Outcomes)),
		attribute.Int("stokvel.late", report.Late),
		attribute.Int("stokvel.missed", report.Missed),
	)
	e.env.logger.Info(
		"penalty cycle complete",
		"period", period.String(),
		"members", len(report.Outcomes),
		"late", report.Late,
		"missed", report.Missed,
		"exempt", report.Exempt,
		"total", report.Total.String(),
	)
	e.env.publish(
		event.PenaltyCycleEventType,
		event.PenaltyCycleEvent{
			Period:    period.String(),
			Members:   len(report.Outcomes),
			Late:      report.Late,
			Missed:    report.Missed,
			Exempt:    report.Exempt,
			Penalized: report.Total,
		},
	)
	return report, nil
}

func (e *PenaltyEngine) run(ctx context.Context, period Period) (*PenaltyReport, error) {
	// Snapshot the member list before writing to any member
	var members []*Member
	for m, err := range e.members.ListAll(ctx) {
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	outcomes := make([]PenaltyOutcome, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, m := range members {
		g.Go(func() error {
			outcome, err := e.evaluate(gctx, m, period)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(outcomes, func(a, b PenaltyOutcome) int {
		return strings.Compare(a.Email, b.Email)
	})
	report := &PenaltyReport{
		Period:   period,
		Outcomes: outcomes,
		Total:    decimal.Zero,
	}
	for _, outcome := range outcomes {
		switch outcome.Kind {
		case PenaltyLate:
			report.Late++
		case PenaltyMissed:
			report.Missed++
		default:
			report.Exempt++
		}
		report.Total = report.Total.Add(outcome.Amount)
	}
	return report, nil
}

func (e *PenaltyEngine) evaluate(
	ctx context.Context,
	m *Member,
	period Period,
) (PenaltyOutcome, error) {
	outcome := PenaltyOutcome{
		Email:  m.Email,
		Kind:   PenaltyNone,
		Amount: decimal.Zero,
	}
	if !m.HasPaidCurrentMonth {
		active, err := e.hasActivity(ctx, m.Email, period)
		if err != nil {
			return outcome, err
		}
		if active {
			outcome.Kind = PenaltyLate
			outcome.Amount = e.latePenalty
		} else {
			outcome.Kind = PenaltyMissed
			outcome.Amount = e.missedPenalty
		}
		if _, err := e.members.ApplyPenalty(ctx, m.Email, outcome.Amount); err != nil {
			return outcome, fmt.Errorf("penalize %s: %w", m.Email, err)
		}
		e.env.metrics.penaltiesApplied.WithLabelValues(string(outcome.Kind)).Inc()
		e.env.metrics.penaltyAmount.Add(outcome.Amount.InexactFloat64())
		e.env.logger.Info(
			"penalty applied",
			"email", m.Email,
			"period", period.String(),
			"kind", string(outcome.Kind),
			"amount", outcome.Amount.String(),
		)
		e.env.publish(
			event.PenaltyAppliedEventType,
			event.PenaltyAppliedEvent{
				Email:  m.Email,
				Period: period.String(),
				Kind:   string(outcome.Kind),
				Amount: outcome.Amount,
			},
		)
	}
	if _, err := e.members.ResetMonthlyFlag(ctx, m.Email); err != nil {
		return outcome, fmt.Errorf("reset monthly flag for %s: %w", m.Email, err)
	}
	return outcome, nil
}

// hasActivity reports whether the member has a Pending or Approved payment
// for the period's month
func (e *PenaltyEngine) hasActivity(ctx context.Context, email string, period Period) (bool, error) {
	for p, err := range e.payments.ListForMember(ctx, email) {
		if err != nil {
			return false, err
		}
		if p.Period.Month != int(period.Month) {
			continue
		}
		if p.Status == StatusPending || p.Status == StatusApproved {
			return true, nil
		}
	}
	return false, nil
}
