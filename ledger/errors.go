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
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/blinklabs-io/stokvel/database/types"
)

var (
	// ErrNotFound is returned when a member or payment does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when registering a duplicate member or
	// submitting a duplicate payment
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict is returned when a write was based on a stale read. The
	// caller must re-read before trying again.
	ErrConflict = errors.New("concurrent modification")
	// ErrContention is returned when a read-modify-write loop runs out of
	// attempts
	ErrContention = errors.New("retry budget exhausted")
	// ErrInvalidTransition is returned for payment status changes other than
	// Pending to Approved or Pending to Rejected
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyApproved is returned when approving an approved payment
	ErrAlreadyApproved = errors.New("payment already approved")
	// ErrValidation matches every ValidationError
	ErrValidation = errors.New("validation failed")
)

// ValidationError describes malformed input
type ValidationError struct {
	Field  string
	Reason string
}

func newValidationError(field string, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PartialApprovalError is returned by Approve when the payment was moved to
// Approved but crediting the member failed. The payment is not rolled back;
// the reconciler restores the member total.
type PartialApprovalError struct {
	OwnerEmail string
	Period     PeriodKey
	Amount     decimal.Decimal
	Err        error
}

func (e *PartialApprovalError) Error() string {
	return fmt.Sprintf(
		"payment %s/%s approved but member not credited with %s: %s",
		e.OwnerEmail,
		e.Period,
		e.Amount,
		e.Err,
	)
}

func (e *PartialApprovalError) Unwrap() error {
	return e.Err
}

// storeError translates an entity store error into a ledger error
func storeError(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, types.ErrAlreadyExists):
		return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
	case errors.Is(err, types.ErrConflict):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	case errors.Is(err, types.ErrInvalidKey):
		return newValidationError("key", fmt.Sprintf("%s: %s", what, err))
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
