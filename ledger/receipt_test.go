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

package ledger_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blobbadger "github.com/blinklabs-io/stokvel/database/plugin/blob/badger"
	"github.com/blinklabs-io/stokvel/ledger"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newReceiptLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	blobStore, err := blobbadger.New()
	require.NoError(t, err)
	require.NoError(t, blobStore.Start())
	t.Cleanup(func() { _ = blobStore.Close() })
	l := newTestLedger(t, func(cfg *ledger.Config) { cfg.Blob = blobStore })
	require.NotNil(t, l.Receipts)
	return l
}

func TestReceiptKey(t *testing.T) {
	key := ledger.ReceiptKey("Mpho@Example.com", ledger.PeriodKey{Tier: 100, Month: 3}, []byte("img"))
	assert.True(t, strings.HasPrefix(key, "receipts/mpho@example.com/100_03_"), key)
	assert.Len(t, key, len("receipts/mpho@example.com/100_03_")+64)
	assert.NotEqual(t, key, ledger.ReceiptKey("mpho@example.com", ledger.PeriodKey{Tier: 100, Month: 3}, []byte("other")))
}

func TestStoreReceipt(t *testing.T) {
	l := newReceiptLedger(t)
	ctx := context.Background()
	ref, err := l.Receipts.Store(ctx, "mpho@example.com", 100, 3, pngHeader)
	require.NoError(t, err)
	key := ledger.ReceiptKey("mpho@example.com", ledger.PeriodKey{Tier: 100, Month: 3}, pngHeader)
	assert.Equal(t, "badger:"+key, ref)

	again, err := l.Receipts.Store(ctx, "mpho@example.com", 100, 3, pngHeader)
	require.NoError(t, err)
	assert.Equal(t, ref, again)

	data, err := l.Receipts.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}

func TestStoreReceiptValidation(t *testing.T) {
	l := newReceiptLedger(t)
	ctx := context.Background()
	_, err := l.Receipts.Store(ctx, "mpho@example.com", 100, 3, nil)
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = l.Receipts.Store(ctx, "mpho", 100, 3, pngHeader)
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = l.Receipts.Store(ctx, "mpho@example.com", 100, 0, pngHeader)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestSubmitWithReceipt(t *testing.T) {
	l := newReceiptLedger(t)
	ctx := context.Background()
	mustRegister(t, l, "mpho@example.com", 100)
	p, err := l.Receipts.SubmitWithReceipt(ctx, "mpho@example.com", 100, 3, pngHeader)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, p.Status)
	assert.True(t, strings.HasPrefix(p.ReceiptRef, "badger:receipts/mpho@example.com/100_03_"))

	_, err = l.Receipts.SubmitWithReceipt(ctx, "mpho@example.com", 100, 3, pngHeader)
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)
}

func TestLoadForPayment(t *testing.T) {
	l := newReceiptLedger(t)
	ctx := context.Background()
	mustRegister(t, l, "mpho@example.com", 100)
	p, err := l.Receipts.SubmitWithReceipt(ctx, "mpho@example.com", 100, 3, pngHeader)
	require.NoError(t, err)
	data, err := l.Receipts.LoadForPayment(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	noReceipt, err := l.Payments.Submit(ctx, "mpho@example.com", 100, 4, "")
	require.NoError(t, err)
	_, err = l.Receipts.LoadForPayment(ctx, noReceipt)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestReceiptsKeyFromRef(t *testing.T) {
	l := newReceiptLedger(t)
	key, err := l.Receipts.KeyFromRef("badger:receipts/a@b.co/50_12_cd")
	require.NoError(t, err)
	assert.Equal(t, "receipts/a@b.co/50_12_cd", key)
	for _, bad := range []string{
		"https://example.com/r.png",
		"s3://bucket/receipts/a@b.co/100_03_ab",
		"badger:other/receipts/a@b.co/100_03_ab",
	} {
		_, err := l.Receipts.KeyFromRef(bad)
		assert.ErrorIs(t, err, ledger.ErrValidation, "ref %q", bad)
	}
}

func TestLoadForPaymentOwnerWithReceiptsInEmail(t *testing.T) {
	l := newReceiptLedger(t)
	ctx := context.Background()
	const owner = "a/receipts/x@example.com"
	mustRegister(t, l, owner, 50)
	p, err := l.Receipts.SubmitWithReceipt(ctx, owner, 50, 3, pngHeader)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.ReceiptRef, "badger:receipts/"+owner+"/50_03_"), p.ReceiptRef)
	data, err := l.Receipts.LoadForPayment(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}
