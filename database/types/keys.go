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

package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Table names. Each table is an independent keyspace in the entity store.
const (
	MembersTable     = "Members"
	PaymentsTable    = "Payments"
	PenaltyRunsTable = "PenaltyRuns"
)

// Fixed partitions for tables that are not partitioned by owner
const (
	MemberPartition     = "StokvelMember"
	PenaltyRunPartition = "PenaltyRun"
)

// Key identifies a single record in the entity store
type Key struct {
	Table     string
	Partition string
	Row       string
}

func (k Key) String() string {
	return k.Table + "/" + k.Partition + "/" + k.Row
}

// Validate checks that every key component is populated
func (k Key) Validate() error {
	if k.Table == "" || k.Partition == "" || k.Row == "" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k.String())
	}
	return nil
}

// MemberKey returns the storage key for the member with the given email
func MemberKey(email string) Key {
	return Key{
		Table:     MembersTable,
		Partition: MemberPartition,
		Row:       email,
	}
}

// PaymentKey returns the storage key for a payment. Payments are scoped
// under their owner and use the "{tier}_{month:02}" row key.
func PaymentKey(ownerEmail string, tierBase int, monthNumber int) Key {
	return Key{
		Table:     PaymentsTable,
		Partition: ownerEmail,
		Row:       PaymentRowKey(tierBase, monthNumber),
	}
}

// PaymentRowKey formats a tier and month as a payment row key
func PaymentRowKey(tierBase int, monthNumber int) string {
	return fmt.Sprintf("%d_%02d", tierBase, monthNumber)
}

// ParsePaymentRowKey splits a payment row key into its tier and month. Both
// parts must be unsigned decimal digits.
func ParsePaymentRowKey(row string) (int, int, error) {
	tierStr, monthStr, ok := strings.Cut(row, "_")
	if !ok || !isDigits(tierStr) || len(monthStr) != 2 || !isDigits(monthStr) {
		return 0, 0, fmt.Errorf("%w: payment row %q", ErrInvalidKey, row)
	}
	tier, err := strconv.Atoi(tierStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: payment row %q", ErrInvalidKey, row)
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: payment row %q", ErrInvalidKey, row)
	}
	return tier, month, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PenaltyRunKey returns the storage key of the processed-period marker
func PenaltyRunKey(period string) Key {
	return Key{
		Table:     PenaltyRunsTable,
		Partition: PenaltyRunPartition,
		Row:       period,
	}
}
