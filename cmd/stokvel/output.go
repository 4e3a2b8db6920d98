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

package main

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/stokvel/ledger"
	"github.com/blinklabs-io/stokvel/scheduler"
)

// The views below give the YAML output stable field names. Amounts are
// rendered with two decimal places.

type memberView struct {
	Email               string `yaml:"email"`
	FullName            string `yaml:"fullName"`
	WhatsAppNumber      string `yaml:"whatsAppNumber"`
	SelectedTiers       []int  `yaml:"selectedTiers,flow"`
	TotalContribution   string `yaml:"totalContribution"`
	PenaltyBalance      string `yaml:"penaltyBalance"`
	HasPaidCurrentMonth bool   `yaml:"hasPaidCurrentMonth"`
	CreatedAt           string `yaml:"createdAt"`
}

func newMemberView(m *ledger.Member) memberView {
	return memberView{
		Email:               m.Email,
		FullName:            m.FullName,
		WhatsAppNumber:      m.WhatsAppNumber,
		SelectedTiers:       m.SelectedTiers,
		TotalContribution:   m.TotalContribution.StringFixed(2),
		PenaltyBalance:      m.PenaltyBalance.StringFixed(2),
		HasPaidCurrentMonth: m.HasPaidCurrentMonth,
		CreatedAt:           formatTime(m.CreatedAt),
	}
}

type paymentView struct {
	OwnerEmail     string `yaml:"ownerEmail"`
	Period         string `yaml:"period"`
	Tier           int    `yaml:"tier"`
	Month          int    `yaml:"month"`
	AmountExpected string `yaml:"amountExpected"`
	Status         string `yaml:"status"`
	ReceiptRef     string `yaml:"receiptRef,omitempty"`
	SubmittedAt    string `yaml:"submittedAt"`
	DecidedAt      string `yaml:"decidedAt,omitempty"`
}

func newPaymentView(p *ledger.Payment) paymentView {
	return paymentView{
		OwnerEmail:     p.OwnerEmail,
		Period:         p.Period.String(),
		Tier:           p.Period.Tier,
		Month:          p.Period.Month,
		AmountExpected: p.AmountExpected.StringFixed(2),
		Status:         string(p.Status),
		ReceiptRef:     p.ReceiptRef,
		SubmittedAt:    formatTime(p.SubmittedAt),
		DecidedAt:      formatTime(p.DecidedAt),
	}
}

type outcomeView struct {
	Email  string `yaml:"email"`
	Kind   string `yaml:"kind"`
	Amount string `yaml:"amount"`
}

type penaltyReportView struct {
	Period   string        `yaml:"period"`
	Total    string        `yaml:"total"`
	Late     int           `yaml:"late"`
	Missed   int           `yaml:"missed"`
	Exempt   int           `yaml:"exempt"`
	Outcomes []outcomeView `yaml:"outcomes"`
}

func newPenaltyReportView(r *ledger.PenaltyReport) penaltyReportView {
	ret := penaltyReportView{
		Period:   r.Period.String(),
		Total:    r.Total.StringFixed(2),
		Late:     r.Late,
		Missed:   r.Missed,
		Exempt:   r.Exempt,
		Outcomes: make([]outcomeView, 0, len(r.Outcomes)),
	}
	for _, o := range r.Outcomes {
		ret.Outcomes = append(ret.Outcomes, outcomeView{
			Email:  o.Email,
			Kind:   string(o.Kind),
			Amount: o.Amount.StringFixed(2),
		})
	}
	return ret
}

type runView struct {
	Period     string `yaml:"period"`
	Trigger    string `yaml:"trigger"`
	Status     string `yaml:"status"`
	Error      string `yaml:"error,omitempty"`
	StartedAt  string `yaml:"startedAt"`
	FinishedAt string `yaml:"finishedAt,omitempty"`
}

func newRunView(r *scheduler.Run) runView {
	return runView{
		Period:     r.Period,
		Trigger:    r.Trigger,
		Status:     r.Status,
		Error:      r.Error,
		StartedAt:  formatTime(r.StartedAt),
		FinishedAt: formatTime(r.FinishedAt),
	}
}

type mismatchView struct {
	Email    string `yaml:"email"`
	Recorded string `yaml:"recorded"`
	Approved string `yaml:"approved"`
}

func newMismatchViews(mismatches []ledger.Mismatch) []mismatchView {
	ret := make([]mismatchView, 0, len(mismatches))
	for _, m := range mismatches {
		ret = append(ret, mismatchView{
			Email:    m.Email,
			Recorded: m.Recorded.StringFixed(2),
			Approved: m.Approved.StringFixed(2),
		})
	}
	return ret
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return enc.Close()
}
