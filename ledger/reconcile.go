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

	"github.com/shopspring/decimal"
)

// Reconciler compares member totals with their approved payments
type Reconciler struct {
	env      *env
	members  *MemberLedger
	payments *PaymentLedger
}

// Mismatch is a member whose total contribution differs from the sum of
// their approved payments
type Mismatch struct {
	Email    string
	Recorded decimal.Decimal
	Approved decimal.Decimal
}

// Check returns every member whose total contribution does not equal the sum
// of amountExpected over their Approved payments
func (r *Reconciler) Check(ctx context.Context) ([]Mismatch, error) {
	var ret []Mismatch
	for m, err := range r.members.ListAll(ctx) {
		if err != nil {
			return nil, err
		}
		approved, err := r.approvedTotal(ctx, m.Email)
		if err != nil {
			return nil, err
		}
		if !approved.Equal(m.TotalContribution) {
			ret = append(ret, Mismatch{
				Email:    m.Email,
				Recorded: m.TotalContribution,
				Approved: approved,
			})
		}
	}
	r.env.metrics.reconcileMismatches.Set(float64(len(ret)))
	return ret, nil
}

// Repair sets each mismatched member's total to the sum of their approved
// payments and returns the members it changed
func (r *Reconciler) Repair(ctx context.Context) ([]Mismatch, error) {
	mismatches, err := r.Check(ctx)
	if err != nil {
		return nil, err
	}
	var repaired []Mismatch
	for _, mismatch := range mismatches {
		// Recompute in case an approval landed after the check
		approved, err := r.approvedTotal(ctx, mismatch.Email)
		if err != nil {
			return repaired, err
		}
		if _, err := r.members.SetContribution(ctx, mismatch.Email, approved); err != nil {
			return repaired, err
		}
		mismatch.Approved = approved
		repaired = append(repaired, mismatch)
		r.env.logger.Warn(
			"repaired member total contribution",
			"email", mismatch.Email,
			"recorded", mismatch.Recorded.String(),
			"approved", approved.String(),
		)
	}
	r.env.metrics.reconcileMismatches.Set(0)
	return repaired, nil
}

func (r *Reconciler) approvedTotal(ctx context.Context, email string) (decimal.Decimal, error) {
	total := decimal.Zero
	for p, err := range r.payments.ListForMember(ctx, email) {
		if err != nil {
			return decimal.Zero, err
		}
		if p.Status == StatusApproved {
			total = total.Add(p.AmountExpected)
		}
	}
	return total, nil
}
