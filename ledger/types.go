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
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/blinklabs-io/stokvel/database/types"
)

// Status is the approval state of a payment
type Status string

const (
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func ParseStatus(val string) (Status, error) {
	for _, s := range []Status{StatusPending, StatusApproved, StatusRejected} {
		if strings.EqualFold(val, string(s)) {
			return s, nil
		}
	}
	return "", newValidationError("status", fmt.Sprintf("unknown status %q", val))
}

// TierSet is a sorted set of positive monthly contribution amounts
type TierSet []int

// NewTierSet builds a tier set, collapsing duplicates. It fails on an empty
// set or a non-positive tier.
func NewTierSet(tiers ...int) (TierSet, error) {
	if len(tiers) == 0 {
		return nil, newValidationError("tiers", "at least one tier is required")
	}
	ret := slices.Clone(tiers)
	for _, tier := range ret {
		if tier <= 0 {
			return nil, newValidationError(
				"tiers",
				fmt.Sprintf("tier %d is not positive", tier),
			)
		}
	}
	slices.Sort(ret)
	return TierSet(slices.Compact(ret)), nil
}

// ParseTierSet parses a comma-separated list such as "50,100"
func ParseTierSet(val string) (TierSet, error) {
	var tiers []int
	for part := range strings.SplitSeq(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tier, err := strconv.Atoi(part)
		if err != nil {
			return nil, newValidationError("tiers", fmt.Sprintf("%q is not a number", part))
		}
		tiers = append(tiers, tier)
	}
	return NewTierSet(tiers...)
}

func (t TierSet) Contains(tier int) bool {
	_, found := slices.BinarySearch(t, tier)
	return found
}

func (t TierSet) String() string {
	parts := make([]string, len(t))
	for i, tier := range t {
		parts[i] = strconv.Itoa(tier)
	}
	return strings.Join(parts, ",")
}

// PeriodKey identifies a payment within its owner's payments
type PeriodKey struct {
	Tier  int
	Month int
}

// String returns the storage row form, for example "100_03"
func (p PeriodKey) String() string {
	return types.PaymentRowKey(p.Tier, p.Month)
}

func (p PeriodKey) Validate() error {
	if p.Tier <= 0 {
		return newValidationError("tier", fmt.Sprintf("tier %d is not positive", p.Tier))
	}
	if p.Month < 1 || p.Month > 12 {
		return newValidationError("month", fmt.Sprintf("month %d is outside 1-12", p.Month))
	}
	return nil
}

// AmountExpected is the contribution due for this key: tier times month
func (p PeriodKey) AmountExpected() decimal.Decimal {
	return decimal.NewFromInt(int64(p.Tier)).Mul(decimal.NewFromInt(int64(p.Month)))
}

func ParsePeriodKey(val string) (PeriodKey, error) {
	tier, month, err := types.ParsePaymentRowKey(val)
	if err != nil {
		return PeriodKey{}, newValidationError("period key", err.Error())
	}
	ret := PeriodKey{Tier: tier, Month: month}
	if err := ret.Validate(); err != nil {
		return PeriodKey{}, err
	}
	return ret, nil
}

// Period is one calendar month
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the period containing t, in UTC
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses the "YYYY-MM" form
func ParsePeriod(val string) (Period, error) {
	t, err := time.Parse("2006-01", val)
	if err != nil {
		return Period{}, newValidationError("period", fmt.Sprintf("%q is not YYYY-MM", val))
	}
	return PeriodOf(t), nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) Validate() error {
	if p.Year < 1 || p.Month < time.January || p.Month > time.December {
		return newValidationError("period", fmt.Sprintf("%d-%d is not a calendar month", p.Year, p.Month))
	}
	return nil
}

// Member is a registered stokvel member
type Member struct {
	CreatedAt           time.Time
	TotalContribution   decimal.Decimal
	PenaltyBalance      decimal.Decimal
	Email               string
	FullName            string
	WhatsAppNumber      string
	Token               string
	SelectedTiers       TierSet
	HasPaidCurrentMonth bool
}

// ExpectedTotal is the sum owed across all selected tiers for a month
func (m *Member) ExpectedTotal(month int) decimal.Decimal {
	ret := decimal.Zero
	for _, tier := range m.SelectedTiers {
		ret = ret.Add(PeriodKey{Tier: tier, Month: month}.AmountExpected())
	}
	return ret
}

// Payment is a submitted contribution awaiting or past approval
type Payment struct {
	SubmittedAt    time.Time
	DecidedAt      time.Time
	AmountExpected decimal.Decimal
	OwnerEmail     string
	ReceiptRef     string
	Token          string
	Status         Status
	Period         PeriodKey
}

// NormalizeEmail trims and lower-cases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validateEmail requires a bare address, without a display name
func validateEmail(email string) error {
	if email == "" {
		return newValidationError("email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return newValidationError("email", fmt.Sprintf("%q is not a valid address", email))
	}
	return nil
}

const minFullNameLength = 3

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// validateFullName expects an already trimmed name
func validateFullName(fullName string) error {
	if fullName == "" {
		return newValidationError("full name", "full name is required")
	}
	if utf8.RuneCountInString(fullName) < minFullNameLength {
		return newValidationError(
			"full name",
			fmt.Sprintf("full name must be at least %d characters", minFullNameLength),
		)
	}
	return nil
}

// normalizePhone strips separators and checks the result is an optionally
// '+'-prefixed run of 7 to 15 digits
func normalizePhone(number string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", newValidationError("whatsapp number", "whatsapp number is required")
	}
	compact := phoneSeparators.Replace(number)
	if !phonePattern.MatchString(compact) {
		return "", newValidationError(
			"whatsapp number",
			fmt.Sprintf("%q is not a valid phone number", number),
		)
	}
	return compact, nil
}
