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

package event

import (
	"github.com/shopspring/decimal"
)

// Ledger event types
const (
	MemberRegisteredEventType EventType = "ledger.member.registered"
	PaymentSubmittedEventType EventType = "ledger.payment.submitted"
	PaymentApprovedEventType  EventType = "ledger.payment.approved"
	PaymentRejectedEventType  EventType = "ledger.payment.rejected"
	ApprovalPartialEventType  EventType = "ledger.approval.partial"
	PenaltyAppliedEventType   EventType = "ledger.penalty.applied"
	PenaltyCycleEventType     EventType = "ledger.penalty.cycle"
)

type MemberRegisteredEvent struct {
	Email string
	Tiers []int
}

type PaymentSubmittedEvent struct {
	OwnerEmail     string
	PeriodKey      string
	AmountExpected decimal.Decimal
	ReceiptRef     string
}

type PaymentApprovedEvent struct {
	OwnerEmail        string
	PeriodKey         string
	AmountExpected    decimal.Decimal
	TotalContribution decimal.Decimal
}

type PaymentRejectedEvent struct {
	OwnerEmail string
	PeriodKey  string
}

// ApprovalPartialEvent reports a payment that was approved but whose owner
// was not credited. Reconciliation repairs the member total.
type ApprovalPartialEvent struct {
	OwnerEmail     string
	PeriodKey      string
	AmountExpected decimal.Decimal
	Error          string
}

type PenaltyAppliedEvent struct {
	Email  string
	Period string
	Kind   string
	Amount decimal.Decimal
}

type PenaltyCycleEvent struct {
	Period    string
	Members   int
	Late      int
	Missed    int
	Exempt    int
	Penalized decimal.Decimal
}
