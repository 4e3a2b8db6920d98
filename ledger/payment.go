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
	"iter"
	"time"

	"github.com/blinklabs-io/stokvel/database/models"
	"github.com/blinklabs-io/stokvel/database/types"
	"github.com/blinklabs-io/stokvel/event"
)

// PaymentLedger owns payment records
type PaymentLedger struct {
	env     *env
	members *MemberLedger
}

func paymentFromRecord(rec *types.Record) (*Payment, error) {
	p, err := models.DecodePayment(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("decode payment %s/%s: %w", rec.Key.Partition, rec.Key.Row, err)
	}
	amount, err := parseAmount(p.AmountExpected)
	if err != nil {
		return nil, fmt.Errorf("decode payment %s/%s amount: %w", rec.Key.Partition, rec.Key.Row, err)
	}
	status, err := ParseStatus(p.Status)
	if err != nil {
		return nil, fmt.Errorf("decode payment %s/%s: %w", rec.Key.Partition, rec.Key.Row, err)
	}
	ret := &Payment{
		OwnerEmail:     p.OwnerEmail,
		Period:         PeriodKey{Tier: p.TierBase, Month: p.MonthNumber},
		AmountExpected: amount,
		Status:         status,
		ReceiptRef:     p.ReceiptRef,
		SubmittedAt:    time.Unix(p.SubmittedAt, 0).UTC(),
		Token:          rec.Token,
	}
	if p.DecidedAt != 0 {
		ret.DecidedAt = time.Unix(p.DecidedAt, 0).UTC()
	}
	return ret, nil
}

func (p *Payment) record() (*types.Record, error) {
	m := &models.Payment{
		OwnerEmail:     p.OwnerEmail,
		Status:         string(p.Status),
		AmountExpected: p.AmountExpected.String(),
		ReceiptRef:     p.ReceiptRef,
		SubmittedAt:    p.SubmittedAt.Unix(),
		TierBase:       p.Period.Tier,
		MonthNumber:    p.Period.Month,
	}
	if !p.DecidedAt.IsZero() {
		m.DecidedAt = p.DecidedAt.Unix()
	}
	data, err := m.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode payment %s/%s: %w", p.OwnerEmail, p.Period, err)
	}
	return &types.Record{
		Key:   types.PaymentKey(p.OwnerEmail, p.Period.Tier, p.Period.Month),
		Token: p.Token,
		Data:  data,
	}, nil
}

// Submit records a pending payment of tier times month for the member. The
// member must exist and have selected the tier. A second submission for the
// same tier and month fails with ErrAlreadyExists.
func (l *PaymentLedger) Submit(
	ctx context.Context,
	ownerEmail string,
	tierBase int,
	monthNumber int,
	receiptRef string,
) (*Payment, error) {
	ownerEmail = NormalizeEmail(ownerEmail)
	if ownerEmail == "" {
		return nil, newValidationError("owner email", "owner email is required")
	}
	periodKey := PeriodKey{Tier: tierBase, Month: monthNumber}
	if err := periodKey.Validate(); err != nil {
		return nil, err
	}
	member, err := l.members.Find(ctx, ownerEmail)
	if err != nil {
		return nil, err
	}
	if !member.SelectedTiers.Contains(tierBase) {
		return nil, newValidationError(
			"tier",
			fmt.Sprintf("member %s has not selected tier %d", ownerEmail, tierBase),
		)
	}
	p := &Payment{
		OwnerEmail:     ownerEmail,
		Period:         periodKey,
		AmountExpected: periodKey.AmountExpected(),
		Status:         StatusPending,
		ReceiptRef:     receiptRef,
		SubmittedAt:    l.env.now().UTC().Truncate(time.Second),
	}
	rec, err := p.record()
	if err != nil {
		return nil, err
	}
	token, err := l.env.store.Create(ctx, rec)
	if err != nil {
		return nil, storeError(fmt.Sprintf("submit payment %s/%s", ownerEmail, periodKey), err)
	}
	p.Token = token
	l.env.metrics.paymentsSubmitted.Inc()
	l.env.logger.Info(
		"payment submitted",
		"email", ownerEmail,
		"period_key", periodKey.String(),
		"amount", p.AmountExpected.String(),
	)
	l.env.publish(
		event.PaymentSubmittedEventType,
		event.PaymentSubmittedEvent{
			OwnerEmail:     ownerEmail,
			PeriodKey:      periodKey.String(),
			AmountExpected: p.AmountExpected,
			ReceiptRef:     receiptRef,
		},
	)
	return p, nil
}

// Find returns the payment for the owner, tier and month
func (l *PaymentLedger) Find(
	ctx context.Context,
	ownerEmail string,
	tierBase int,
	monthNumber int,
) (*Payment, error) {
	return l.FindByKey(ctx, ownerEmail, PeriodKey{Tier: tierBase, Month: monthNumber})
}

func (l *PaymentLedger) FindByKey(
	ctx context.Context,
	ownerEmail string,
	periodKey PeriodKey,
) (*Payment, error) {
	ownerEmail = NormalizeEmail(ownerEmail)
	if ownerEmail == "" {
		return nil, newValidationError("owner email", "owner email is required")
	}
	if err := periodKey.Validate(); err != nil {
		return nil, err
	}
	rec, err := l.env.store.Get(
		ctx,
		types.PaymentKey(ownerEmail, periodKey.Tier, periodKey.Month),
	)
	if err != nil {
		return nil, storeError(fmt.Sprintf("payment %s/%s", ownerEmail, periodKey), err)
	}
	return paymentFromRecord(rec)
}

// ListForMember yields every payment owned by the member
func (l *PaymentLedger) ListForMember(
	ctx context.Context,
	ownerEmail string,
) iter.Seq2[*Payment, error] {
	ownerEmail = NormalizeEmail(ownerEmail)
	return func(yield func(*Payment, error) bool) {
		if ownerEmail == "" {
			yield(nil, newValidationError("owner email", "owner email is required"))
			return
		}
		for rec, err := range l.env.store.List(ctx, types.PaymentsTable, ownerEmail) {
			if err != nil {
				yield(nil, storeError("list payments for "+ownerEmail, err))
				return
			}
			p, err := paymentFromRecord(rec)
			if !yield(p, err) {
				return
			}
		}
	}
}

func checkTransition(from Status, to Status) error {
	if from != StatusPending || (to != StatusApproved && to != StatusRejected) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// TransitionStatus moves a payment from one status to another. The payment's
// current status must equal from, and only Pending to Approved or Rejected is
// permitted. A concurrent change returns ErrConflict; the caller re-reads.
func (l *PaymentLedger) TransitionStatus(
	ctx context.Context,
	ownerEmail string,
	periodKey PeriodKey,
	from Status,
	to Status,
) (*Payment, error) {
	if err := checkTransition(from, to); err != nil {
		return nil, err
	}
	p, err := l.FindByKey(ctx, ownerEmail, periodKey)
	if err != nil {
		return nil, err
	}
	if p.Status != from {
		return nil, fmt.Errorf(
			"%w: payment %s/%s is %s, not %s",
			ErrInvalidTransition,
			p.OwnerEmail,
			periodKey,
			p.Status,
			from,
		)
	}
	return l.transition(ctx, p, to)
}

// transition writes the new status against the token p was read with
func (l *PaymentLedger) transition(
	ctx context.Context,
	p *Payment,
	to Status,
) (*Payment, error) {
	if err := checkTransition(p.Status, to); err != nil {
		return nil, err
	}
	next := *p
	next.Status = to
	next.DecidedAt = l.env.now().UTC().Truncate(time.Second)
	rec, err := next.record()
	if err != nil {
		return nil, err
	}
	token, err := l.env.store.Put(ctx, rec, p.Token)
	if err != nil {
		return nil, storeError(
			fmt.Sprintf("transition payment %s/%s to %s", p.OwnerEmail, p.Period, to),
			err,
		)
	}
	next.Token = token
	l.env.metrics.paymentsDecided.WithLabelValues(string(to)).Inc()
	return &next, nil
}
