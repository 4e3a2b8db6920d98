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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/stokvel/database/types"
	"github.com/blinklabs-io/stokvel/event"
	"github.com/blinklabs-io/stokvel/internal/test/testutil"
	"github.com/blinklabs-io/stokvel/ledger"
)

func TestRegister(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	m, err := l.Members.Register(ctx, " Sipho@Example.com ", "Sipho Dlamini", "+27821234567", []int{100, 50})
	require.NoError(t, err)
	assert.Equal(t, "sipho@example.com", m.Email)
	assert.Equal(t, ledger.TierSet{50, 100}, m.SelectedTiers)
	assert.True(t, m.TotalContribution.IsZero())
	assert.True(t, m.PenaltyBalance.IsZero())
	assert.False(t, m.HasPaidCurrentMonth)
	assert.NotEmpty(t, m.Token)
	assert.Equal(t, testNow, m.CreatedAt)

	found, err := l.Members.Find(ctx, "SIPHO@example.com")
	require.NoError(t, err)
	assert.Equal(t, m.Email, found.Email)
	assert.Equal(t, "Sipho Dlamini", found.FullName)
	assert.Equal(t, "+27821234567", found.WhatsAppNumber)
	assert.Equal(t, m.SelectedTiers, found.SelectedTiers)
	assert.Equal(t, m.Token, found.Token)
	assert.Equal(t, testNow, found.CreatedAt)
}

func TestRegisterValidation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	testDefs := []struct {
		name     string
		email    string
		fullName string
		whatsApp string
		tiers    []int
	}{
		{name: "missing email", email: "", fullName: "Amahle", whatsApp: "+27820000000", tiers: []int{50}},
		{name: "malformed email", email: "not-an-email", fullName: "Amahle", whatsApp: "+27820000000", tiers: []int{50}},
		{name: "empty tiers", email: "a@example.com", fullName: "Amahle", whatsApp: "+27820000000", tiers: nil},
		{name: "zero tier", email: "a@example.com", fullName: "Amahle", whatsApp: "+27820000000", tiers: []int{0}},
		{name: "negative tier", email: "a@example.com", fullName: "Amahle", whatsApp: "+27820000000", tiers: []int{50, -100}},
		{name: "blank name", email: "a@example.com", fullName: "  ", whatsApp: "+27820000000", tiers: []int{50}},
		{name: "short name", email: "a@example.com", fullName: " Al ", whatsApp: "+27820000000", tiers: []int{50}},
		{name: "missing whatsapp", email: "a@example.com", fullName: "Amahle", whatsApp: " ", tiers: []int{50}},
		{name: "letters in whatsapp", email: "a@example.com", fullName: "Amahle", whatsApp: "082-CALL-NOW", tiers: []int{50}},
		{name: "short whatsapp", email: "a@example.com", fullName: "Amahle", whatsApp: "12345", tiers: []int{50}},
		{name: "inner plus in whatsapp", email: "a@example.com", fullName: "Amahle", whatsApp: "27+820000000", tiers: []int{50}},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			_, err := l.Members.Register(ctx, testDef.email, testDef.fullName, testDef.whatsApp, testDef.tiers)
			require.ErrorIs(t, err, ledger.ErrValidation)
			var validationErr *ledger.ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}
	_, err := l.Members.Find(ctx, "a@example.com")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRegisterNormalizesWhatsApp(t *testing.T) {
	l := newTestLedger(t)
	m, err := l.Members.Register(context.Background(), "sizwe@example.com", "Sizwe Ngcobo", " +27 (82) 123-4567 ", []int{50})
	require.NoError(t, err)
	assert.Equal(t, "+27821234567", m.WhatsAppNumber)
	m, err = l.Members.Register(context.Background(), "jo@example.com", "Joë", "082.123.4567", []int{50})
	require.NoError(t, err)
	assert.Equal(t, "0821234567", m.WhatsAppNumber)
	assert.Equal(t, "Joë", m.FullName)
}

func TestRegisterDuplicate(t *testing.T) {
	l := newTestLedger(t)
	mustRegister(t, l, "lindiwe@example.com", 50)
	_, err := l.Members.Register(context.Background(), "Lindiwe@example.com", "Other", "+27820000009", []int{100})
	require.ErrorIs(t, err, ledger.ErrAlreadyExists)
	m, err := l.Members.Find(context.Background(), "lindiwe@example.com")
	require.NoError(t, err)
	assert.Equal(t, ledger.TierSet{50}, m.SelectedTiers)
}

func TestRegisterPublishesEvent(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, ch := eb.Subscribe(event.MemberRegisteredEventType)
	l := newTestLedger(t, func(cfg *ledger.Config) { cfg.EventBus = eb })
	mustRegister(t, l, "thabo@example.com", 100, 50)
	evt := testutil.RequireReceive(t, ch, time.Second, "member registered event")
	data, ok := evt.Data.(event.MemberRegisteredEvent)
	require.True(t, ok)
	assert.Equal(t, "thabo@example.com", data.Email)
	assert.Equal(t, []int{50, 100}, data.Tiers)
}

func TestFindMissing(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Members.Find(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = l.Members.Find(context.Background(), "  ")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestListAll(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	for _, email := range []string{"c@example.com", "a@example.com", "b@example.com"} {
		mustRegister(t, l, email, 50)
	}
	var emails []string
	for m, err := range l.Members.ListAll(ctx) {
		require.NoError(t, err)
		emails = append(emails, m.Email)
	}
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com", "c@example.com"}, emails)

	// The sequence re-reads the store when ranged again
	mustRegister(t, l, "d@example.com", 50)
	count := 0
	for _, err := range l.Members.ListAll(ctx) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 4, count)
}

func TestCreditContribution(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	before := mustRegister(t, l, "ayanda@example.com", 100)
	m, err := l.Members.CreditContribution(ctx, "ayanda@example.com", dec(300))
	require.NoError(t, err)
	assert.True(t, m.TotalContribution.Equal(dec(300)))
	assert.True(t, m.HasPaidCurrentMonth)
	assert.NotEqual(t, before.Token, m.Token)

	m, err = l.Members.CreditContribution(ctx, "ayanda@example.com", dec(50))
	require.NoError(t, err)
	assert.True(t, m.TotalContribution.Equal(dec(350)))

	_, err = l.Members.CreditContribution(ctx, "ayanda@example.com", dec(-1))
	assert.ErrorIs(t, err, ledger.ErrValidation)
	_, err = l.Members.CreditContribution(ctx, "ghost@example.com", dec(1))
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestApplyPenaltyAndReset(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, l, "nomsa@example.com", 50)
	_, err := l.Members.CreditContribution(ctx, "nomsa@example.com", dec(50))
	require.NoError(t, err)

	m, err := l.Members.ApplyPenalty(ctx, "nomsa@example.com", dec(50))
	require.NoError(t, err)
	assert.True(t, m.PenaltyBalance.Equal(dec(50)))
	assert.True(t, m.TotalContribution.Equal(dec(50)))

	m, err = l.Members.ResetMonthlyFlag(ctx, "nomsa@example.com")
	require.NoError(t, err)
	assert.False(t, m.HasPaidCurrentMonth)
	assert.True(t, m.PenaltyBalance.Equal(dec(50)))

	_, err = l.Members.ApplyPenalty(ctx, "nomsa@example.com", dec(-50))
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestSetContribution(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	mustRegister(t, l, "zodwa@example.com", 50)
	m, err := l.Members.SetContribution(ctx, "zodwa@example.com", dec(150))
	require.NoError(t, err)
	assert.True(t, m.TotalContribution.Equal(dec(150)))
	assert.False(t, m.HasPaidCurrentMonth)
}

func TestUpdateContention(t *testing.T) {
	store := newFaultStore(newTestStore(t), types.MembersTable, types.ErrConflict)
	store.enabled.Store(false)
	l := newTestLedger(t, func(cfg *ledger.Config) {
		cfg.Store = store
		cfg.MaxAttempts = 3
	})
	mustRegister(t, l, "palesa@example.com", 50)
	store.enabled.Store(true)

	_, err := l.Members.CreditContribution(context.Background(), "palesa@example.com", dec(50))
	require.ErrorIs(t, err, ledger.ErrContention)
	assert.Equal(t, int64(3), store.putCalls.Load())

	store.enabled.Store(false)
	m, err := l.Members.Find(context.Background(), "palesa@example.com")
	require.NoError(t, err)
	assert.True(t, m.TotalContribution.IsZero())
}

func TestUpdateDoesNotRetryOtherErrors(t *testing.T) {
	store := newFaultStore(newTestStore(t), types.MembersTable, types.ErrNotFound)
	store.enabled.Store(false)
	l := newTestLedger(t, func(cfg *ledger.Config) { cfg.Store = store })
	mustRegister(t, l, "karabo@example.com", 50)
	store.enabled.Store(true)
	_, err := l.Members.ApplyPenalty(context.Background(), "karabo@example.com", dec(50))
	require.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Equal(t, int64(1), store.putCalls.Load())
}

func TestConcurrentCreditsAreNotLost(t *testing.T) {
	l := newTestLedger(t, func(cfg *ledger.Config) { cfg.MaxAttempts = 50 })
	ctx := context.Background()
	mustRegister(t, l, "busi@example.com", 10)
	const writers = 10
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = l.Members.CreditContribution(ctx, "busi@example.com", dec(10))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	m, err := l.Members.Find(ctx, "busi@example.com")
	require.NoError(t, err)
	assert.True(t, m.TotalContribution.Equal(dec(100)), "got %s", m.TotalContribution)
}

func TestRegisterWithStalledSubscriber(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	// Subscribed but never read
	_, _ = eb.Subscribe(event.MemberRegisteredEventType)
	l := newTestLedger(t, func(cfg *ledger.Config) {
		cfg.EventBus = eb
	})
	const total = event.EventQueueSize + 10
	done := make(chan struct{})
	errs := make(chan error, total)
	go func() {
		defer close(done)
		for i := range total {
			email := fmt.Sprintf("member%02d@example.com", i)
			_, err := l.Members.Register(context.Background(), email, "Member "+email, "+27820000000", []int{50})
			errs <- err
		}
	}()
	testutil.RequireClosed(t, done, 2*time.Second, "register with a stalled subscriber")
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	count := 0
	for _, err := range l.Members.ListAll(context.Background()) {
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, total, count)
}
