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

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/stokvel/event"
)

// ApprovalWorkflow moves pending payments to a terminal status. Approval is
// the only operation that writes two records.
type ApprovalWorkflow struct {
	env      *env
	members  *MemberLedger
	payments *PaymentLedger
}

// Approval is the result of a successful approval
type Approval struct {
	Payment *Payment
	Member  *Member
}

// Approve approves a pending payment and credits its amount to the owner.
//
// The payment is written before the member. If the credit fails after the
// payment was approved, Approve returns a *PartialApprovalError and leaves
// the payment Approved; the Reconciler repairs the member total. Approving
// an approved payment fails with ErrAlreadyApproved and credits nothing.
func (w *ApprovalWorkflow) Approve(
	ctx context.Context,
	ownerEmail string,
	periodKey PeriodKey,
) (*Approval, error) {
	ownerEmail = NormalizeEmail(ownerEmail)
	ctx, span := w.env.tracer.Start(
		ctx,
		"ledger.Approve",
		trace.WithAttributes(
			attribute.String("stokvel.owner_email", ownerEmail),
			attribute.String("stokvel.period_key", periodKey.String()),
		),
	)
	defer span.End()
	ret, err := w.approve(ctx, ownerEmail, periodKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return ret, nil
}

func (w *ApprovalWorkflow) approve(
	ctx context.Context,
	ownerEmail string,
	periodKey PeriodKey,
) (*Approval, error) {
	// Payment
	payment, err := w.payments.FindByKey(ctx, ownerEmail, periodKey)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case StatusApproved:
		return nil, fmt.Errorf("payment %s/%s: %w", ownerEmail, periodKey, ErrAlreadyApproved)
	case StatusRejected:
		return nil, fmt.Errorf(
			"%w: payment %s/%s is %s",
			ErrInvalidTransition,
			ownerEmail,
			periodKey,
			payment.Status,
		)
	}
	// Member
	if _, err := w.members.Find(ctx, ownerEmail); err != nil {
		return nil, err
	}
	// Approve against the token read above
	approved, err := w.payments.transition(ctx, payment, StatusApproved)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, w.explainConflict(ctx, ownerEmail, periodKey, err)
		}
		return nil, err
	}
	// Credit
	member, err := w.members.CreditContribution(ctx, ownerEmail, approved.AmountExpected)
	if err != nil {
		w.reportPartial(ownerEmail, periodKey, approved.AmountExpected, err)
		return nil, &PartialApprovalError{
			OwnerEmail: ownerEmail,
			Period:     periodKey,
			Amount:     approved.AmountExpected,
			Err:        err,
		}
	}
	w.env.logger.Info(
		"payment approved",
		"email", ownerEmail,
		"period_key", periodKey.String(),
		"amount", approved.AmountExpected.String(),
		"total_contribution", member.TotalContribution.String(),
	)
	w.env.publish(
		event.PaymentApprovedEventType,
		event.PaymentApprovedEvent{
			OwnerEmail:        ownerEmail,
			PeriodKey:         periodKey.String(),
			AmountExpected:    approved.AmountExpected,
			TotalContribution: member.TotalContribution,
		},
	)
	return &Approval{Payment: approved, Member: member}, nil
}

// explainConflict turns a lost race on the payment into ErrAlreadyApproved
// when the winner approved it
func (w *ApprovalWorkflow) explainConflict(
	ctx context.Context,
	ownerEmail string,
	periodKey PeriodKey,
	conflictErr error,
) error {
	current, err := w.payments.FindByKey(ctx, ownerEmail, periodKey)
	if err != nil {
		return conflictErr
	}
	if current.Status == StatusApproved {
		return fmt.Errorf("payment %s/%s: %w", ownerEmail, periodKey, ErrAlreadyApproved)
	}
	return conflictErr
}

func (w *ApprovalWorkflow) reportPartial(
	ownerEmail string,
	periodKey PeriodKey,
	amount decimal.Decimal,
	err error,
) {
	w.env.metrics.approvalPartial.Inc()
	w.env.logger.Error(
		"payment approved but member credit failed, reconciliation required",
		"email", ownerEmail,
		"period_key", periodKey.String(),
		"amount", amount.String(),
		"error", err,
	)
	w.env.publish(
		event.ApprovalPartialEventType,
		event.ApprovalPartialEvent{
			OwnerEmail:     ownerEmail,
			PeriodKey:      periodKey.String(),
			AmountExpected: amount,
			Error:          err.Error(),
		},
	)
}

// Reject moves a pending payment to Rejected. Nothing is credited.
func (w *ApprovalWorkflow) Reject(
	ctx context.Context,
	ownerEmail string,
	periodKey PeriodKey,
) (*Payment, error) {
	ownerEmail = NormalizeEmail(ownerEmail)
	ctx, span := w.env.tracer.Start(
		ctx,
		"ledger.Reject",
		trace.WithAttributes(
			attribute.String("stokvel.owner_email", ownerEmail),
			attribute.String("stokvel.period_key", periodKey.String()),
		),
	)
	defer span.End()
	p, err := w.payments.TransitionStatus(ctx, ownerEmail, periodKey, StatusPending, StatusRejected)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	w.env.logger.Info(
		"payment rejected",
		"email", ownerEmail,
		"period_key", periodKey.String(),
	)
	w.env.publish(
		event.PaymentRejectedEventType,
		event.PaymentRejectedEvent{OwnerEmail: ownerEmail, PeriodKey: periodKey.String()},
	)
	return p, nil
}
