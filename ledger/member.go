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
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/blinklabs-io/stokvel/database/models"
	"github.com/blinklabs-io/stokvel/database/types"
	"github.com/blinklabs-io/stokvel/event"
)

// MemberLedger owns member records
type MemberLedger struct {
	env *env
}

func memberFromRecord(rec *types.Record) (*Member, error) {
	m, err := models.DecodeMember(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("decode member %s: %w", rec.Key.Row, err)
	}
	tiers, err := models.DecodeTiers(m.SelectedTiers)
	if err != nil {
		return nil, fmt.Errorf("decode member %s: %w", rec.Key.Row, err)
	}
	total, err := parseAmount(m.TotalContribution)
	if err != nil {
		return nil, fmt.Errorf("decode member %s total: %w", rec.Key.Row, err)
	}
	penalty, err := parseAmount(m.PenaltyBalance)
	if err != nil {
		return nil, fmt.Errorf("decode member %s penalty: %w", rec.Key.Row, err)
	}
	return &Member{
		Email:               m.Email,
		FullName:            m.FullName,
		WhatsAppNumber:      m.WhatsAppNumber,
		SelectedTiers:       TierSet(tiers),
		TotalContribution:   total,
		PenaltyBalance:      penalty,
		HasPaidCurrentMonth: m.HasPaidCurrentMonth,
		CreatedAt:           time.Unix(m.CreatedAt, 0).UTC(),
		Token:               rec.Token,
	}, nil
}

func (m *Member) record() (*types.Record, error) {
	data, err := (&models.Member{
		Email:               m.Email,
		FullName:            m.FullName,
		WhatsAppNumber:      m.WhatsAppNumber,
		SelectedTiers:       models.EncodeTiers(m.SelectedTiers),
		TotalContribution:   m.TotalContribution.String(),
		PenaltyBalance:      m.PenaltyBalance.String(),
		CreatedAt:           m.CreatedAt.Unix(),
		HasPaidCurrentMonth: m.HasPaidCurrentMonth,
	}).Encode()
	if err != nil {
		return nil, fmt.Errorf("encode member %s: %w", m.Email, err)
	}
	return &types.Record{
		Key:   types.MemberKey(m.Email),
		Token: m.Token,
		Data:  data,
	}, nil
}

func parseAmount(val string) (decimal.Decimal, error) {
	if val == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(val)
}

// Register creates a member with zero balances. The email is normalized
// before use.
func (l *MemberLedger) Register(
	ctx context.Context,
	email string,
	fullName string,
	whatsAppNumber string,
	tiers []int,
) (*Member, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	fullName = strings.TrimSpace(fullName)
	if err := validateFullName(fullName); err != nil {
		return nil, err
	}
	whatsAppNumber, err := normalizePhone(whatsAppNumber)
	if err != nil {
		return nil, err
	}
	tierSet, err := NewTierSet(tiers...)
	if err != nil {
		return nil, err
	}
	m := &Member{
		Email:             email,
		FullName:          fullName,
		WhatsAppNumber:    whatsAppNumber,
		SelectedTiers:     tierSet,
		TotalContribution: decimal.Zero,
		PenaltyBalance:    decimal.Zero,
		CreatedAt:         l.env.now().UTC().Truncate(time.Second),
	}
	rec, err := m.record()
	if err != nil {
		return nil, err
	}
	token, err := l.env.store.Create(ctx, rec)
	if err != nil {
		return nil, storeError("register member "+email, err)
	}
	m.Token = token
	l.env.metrics.membersRegistered.Inc()
	l.env.logger.Info(
		"registered member",
		"email", email,
		"tiers", tierSet.String(),
	)
	l.env.publish(
		event.MemberRegisteredEventType,
		event.MemberRegisteredEvent{Email: email, Tiers: []int(tierSet)},
	)
	return m, nil
}

// Find returns the member with the given email
func (l *MemberLedger) Find(ctx context.Context, email string) (*Member, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, newValidationError("email", "email is required")
	}
	rec, err := l.env.store.Get(ctx, types.MemberKey(email))
	if err != nil {
		return nil, storeError("member "+email, err)
	}
	return memberFromRecord(rec)
}

// ListAll yields every member. Ranging again re-reads the store.
func (l *MemberLedger) ListAll(ctx context.Context) iter.Seq2[*Member, error] {
	return func(yield func(*Member, error) bool) {
		for rec, err := range l.env.store.List(ctx, types.MembersTable, types.MemberPartition) {
			if err != nil {
				yield(nil, storeError("list members", err))
				return
			}
			m, err := memberFromRecord(rec)
			if !yield(m, err) {
				return
			}
		}
	}
}

// update applies mutate to a fresh copy of the member and writes it back,
// retrying on conflict
func (l *MemberLedger) update(
	ctx context.Context,
	email string,
	op string,
	mutate func(*Member),
) (*Member, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, newValidationError("email", "email is required")
	}
	what := op + " " + email
	var ret *Member
	err := l.env.retryConflicts(ctx, what, func() error {
		m, err := l.Find(ctx, email)
		if err != nil {
			return err
		}
		mutate(m)
		rec, err := m.record()
		if err != nil {
			return err
		}
		token, err := l.env.store.Put(ctx, rec, m.Token)
		if err != nil {
			return storeError(what, err)
		}
		m.Token = token
		ret = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return newValidationError("amount", fmt.Sprintf("%s is negative", amount))
	}
	return nil
}

// CreditContribution adds amount to the member's total contribution and
// marks the current month as paid
func (l *MemberLedger) CreditContribution(
	ctx context.Context,
	email string,
	amount decimal.Decimal,
) (*Member, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	m, err := l.update(ctx, email, "credit contribution", func(m *Member) {
		m.TotalContribution = m.TotalContribution.Add(amount)
		m.HasPaidCurrentMonth = true
	})
	if err != nil {
		return nil, err
	}
	l.env.metrics.contributionCredit.Add(amount.InexactFloat64())
	return m, nil
}

// ApplyPenalty adds amount to the member's penalty balance
func (l *MemberLedger) ApplyPenalty(
	ctx context.Context,
	email string,
	amount decimal.Decimal,
) (*Member, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return l.update(ctx, email, "apply penalty", func(m *Member) {
		m.PenaltyBalance = m.PenaltyBalance.Add(amount)
	})
}

// ResetMonthlyFlag clears the member's paid-this-month flag
func (l *MemberLedger) ResetMonthlyFlag(ctx context.Context, email string) (*Member, error) {
	return l.update(ctx, email, "reset monthly flag", func(m *Member) {
		m.HasPaidCurrentMonth = false
	})
}

// SetContribution overwrites the member's total contribution. Only the
// reconciler uses this.
func (l *MemberLedger) SetContribution(
	ctx context.Context,
	email string,
	amount decimal.Decimal,
) (*Member, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	return l.update(ctx, email, "set contribution", func(m *Member) {
		m.TotalContribution = amount
	})
}
