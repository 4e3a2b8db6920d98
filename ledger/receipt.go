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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/blinklabs-io/stokvel/database/plugin/blob"
)

const receiptPrefix = "receipts/"

// Receipts stores receipt images in the blob store. The returned reference
// is opaque to the rest of the ledger.
type Receipts struct {
	env      *env
	blob     blob.BlobStore
	payments *PaymentLedger
}

// ReceiptKey returns the content-addressed blob key for a receipt
func ReceiptKey(ownerEmail string, periodKey PeriodKey, image []byte) string {
	sum := sha256.Sum256(image)
	return fmt.Sprintf(
		"%s%s/%s_%s",
		receiptPrefix,
		NormalizeEmail(ownerEmail),
		periodKey,
		hex.EncodeToString(sum[:]),
	)
}

// Store uploads a receipt image and returns its reference. Storing the same
// image twice yields the same reference.
func (r *Receipts) Store(
	ctx context.Context,
	ownerEmail string,
	tierBase int,
	monthNumber int,
	image []byte,
) (string, error) {
	ownerEmail = NormalizeEmail(ownerEmail)
	if err := validateEmail(ownerEmail); err != nil {
		return "", err
	}
	periodKey := PeriodKey{Tier: tierBase, Month: monthNumber}
	if err := periodKey.Validate(); err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", newValidationError("receipt", "receipt image is empty")
	}
	key := ReceiptKey(ownerEmail, periodKey, image)
	ref, err := r.blob.Put(ctx, key, image, http.DetectContentType(image))
	if err != nil {
		return "", fmt.Errorf("store receipt %s: %w", key, err)
	}
	r.env.logger.Debug(
		"stored receipt",
		"email", ownerEmail,
		"period_key", periodKey.String(),
		"ref", ref,
	)
	return ref, nil
}

// SubmitWithReceipt stores the receipt and submits the payment referencing
// it. A failed submit leaves the stored receipt in place.
func (r *Receipts) SubmitWithReceipt(
	ctx context.Context,
	ownerEmail string,
	tierBase int,
	monthNumber int,
	image []byte,
) (*Payment, error) {
	ref, err := r.Store(ctx, ownerEmail, tierBase, monthNumber, image)
	if err != nil {
		return nil, err
	}
	return r.payments.Submit(ctx, ownerEmail, tierBase, monthNumber, ref)
}

// Load returns a stored receipt image by blob key
func (r *Receipts) Load(ctx context.Context, key string) ([]byte, error) {
	return r.blob.Get(ctx, key)
}

// KeyFromRef returns the blob key behind a reference returned by Store
func (r *Receipts) KeyFromRef(ref string) (string, error) {
	key, err := r.blob.KeyFromRef(ref)
	if err != nil || !strings.HasPrefix(key, receiptPrefix) {
		return "", newValidationError("receipt", fmt.Sprintf("%q is not a receipt reference", ref))
	}
	return key, nil
}

// LoadForPayment returns the receipt image referenced by a payment
func (r *Receipts) LoadForPayment(ctx context.Context, p *Payment) ([]byte, error) {
	if p.ReceiptRef == "" {
		return nil, fmt.Errorf(
			"payment %s/%s has no receipt: %w",
			p.OwnerEmail,
			p.Period,
			ErrNotFound,
		)
	}
	key, err := r.KeyFromRef(p.ReceiptRef)
	if err != nil {
		return nil, err
	}
	return r.Load(ctx, key)
}
