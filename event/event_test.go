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

package event_test

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/stokvel/event"
	"github.com/blinklabs-io/stokvel/internal/test/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEventBusSingleSubscriber(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(event.PaymentSubmittedEventType)
	eb.Publish(event.NewEvent(
		event.PaymentSubmittedEventType,
		event.PaymentSubmittedEvent{
			OwnerEmail:     "thandi@example.com",
			PeriodKey:      "100_03",
			AmountExpected: decimal.NewFromInt(300),
		},
	))
	evt := testutil.RequireReceive(t, subCh, time.Second, "payment submitted event")
	data, ok := evt.Data.(event.PaymentSubmittedEvent)
	require.True(t, ok, "unexpected event data type %T", evt.Data)
	assert.Equal(t, "100_03", data.PeriodKey)
	assert.True(t, data.AmountExpected.Equal(decimal.NewFromInt(300)))
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, sub1Ch := eb.Subscribe(event.PenaltyCycleEventType)
	_, sub2Ch := eb.Subscribe(event.PenaltyCycleEventType)
	eb.Publish(event.NewEvent(event.PenaltyCycleEventType, event.PenaltyCycleEvent{Period: "2025-03"}))
	for _, ch := range []<-chan event.Event{sub1Ch, sub2Ch} {
		evt := testutil.RequireReceive(t, ch, time.Second, "penalty cycle event")
		assert.Equal(t, event.PenaltyCycleEventType, evt.Type)
	}
}

func TestEventBusTypesAreIsolated(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(event.PaymentApprovedEventType)
	eb.Publish(event.NewEvent(event.PaymentRejectedEventType, event.PaymentRejectedEvent{}))
	testutil.RequireNoReceive(t, subCh, 50*time.Millisecond, "rejected event on approved subscription")
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	subId, subCh := eb.Subscribe(event.MemberRegisteredEventType)
	eb.Unsubscribe(event.MemberRegisteredEventType, subId)
	eb.Publish(event.NewEvent(event.MemberRegisteredEventType, event.MemberRegisteredEvent{}))
	testutil.RequireClosed(t, subCh, time.Second, "subscriber channel after Unsubscribe")
	// Unknown ids are ignored
	eb.Unsubscribe(event.MemberRegisteredEventType, subId)
}

func TestSubscribeFunc(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	doneCh := make(chan event.Event, 1)
	eb.SubscribeFunc(event.ApprovalPartialEventType, func(evt event.Event) {
		doneCh <- evt
	})
	eb.Publish(event.NewEvent(
		event.ApprovalPartialEventType,
		event.ApprovalPartialEvent{OwnerEmail: "sipho@example.com"},
	))
	evt := testutil.RequireReceive(t, doneCh, time.Second, "handler call")
	assert.Equal(t, "sipho@example.com", evt.Data.(event.ApprovalPartialEvent).OwnerEmail)
}

func TestSubscribeFuncPanicRecovery(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	var calls atomic.Int32
	doneCh := make(chan struct{}, 2)
	eb.SubscribeFunc(event.PenaltyAppliedEventType, func(evt event.Event) {
		defer func() { doneCh <- struct{}{} }()
		if calls.Add(1) == 1 {
			panic("handler failure")
		}
	})
	for range 2 {
		eb.Publish(event.NewEvent(event.PenaltyAppliedEventType, event.PenaltyAppliedEvent{}))
	}
	for range 2 {
		testutil.RequireReceive(t, doneCh, time.Second, "handler did not survive panic")
	}
	assert.EqualValues(t, 2, calls.Load())
}

func TestPublishAsync(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(event.PaymentApprovedEventType)
	require.True(t, eb.PublishAsync(event.NewEvent(event.PaymentApprovedEventType, event.PaymentApprovedEvent{})))
	evt := testutil.RequireReceive(t, subCh, time.Second, "async event")
	assert.Equal(t, event.PaymentApprovedEventType, evt.Type)
}

func TestEventBusStop(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	_, subCh := eb.Subscribe(event.PaymentSubmittedEventType)
	var handled atomic.Int32
	eb.SubscribeFunc(event.PaymentSubmittedEventType, func(event.Event) {
		handled.Add(1)
	})
	eb.Stop()
	_, ok := <-subCh
	assert.False(t, ok, "subscriber channel should be closed after Stop")
	assert.False(t, eb.PublishAsync(event.NewEvent(event.PaymentSubmittedEventType, nil)))
	// Publishing after Stop reaches nobody
	eb.Publish(event.NewEvent(event.PaymentSubmittedEventType, nil))
	assert.Zero(t, handled.Load())
	// Subscriptions after Stop are closed immediately
	_, lateCh := eb.Subscribe(event.PaymentSubmittedEventType)
	_, ok = <-lateCh
	assert.False(t, ok)
	// Stop is idempotent
	eb.Stop()
}

func TestEventBusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)
	defer eb.Stop()
	subId, _ := eb.Subscribe(event.PaymentRejectedEventType)
	eb.Publish(event.NewEvent(event.PaymentRejectedEventType, event.PaymentRejectedEvent{}))
	eb.Unsubscribe(event.PaymentRejectedEventType, subId)
	count, err := promtestutil.GatherAndCount(reg, "event_bus_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPublishSkipsFullSubscriber(t *testing.T) {
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)
	defer eb.Stop()
	stalledId, stalledCh := eb.Subscribe(event.MemberRegisteredEventType)
	const total = event.EventQueueSize + 10
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range total {
			eb.Publish(event.NewEvent(event.MemberRegisteredEventType, event.MemberRegisteredEvent{}))
		}
	}()
	testutil.RequireClosed(t, done, time.Second, "publish to a stalled subscriber")
	assert.Len(t, stalledCh, event.EventQueueSize)
	expected := `
# HELP event_bus_dropped_total Events dropped because the async queue or a subscriber buffer was full
# TYPE event_bus_dropped_total counter
event_bus_dropped_total{type="ledger.member.registered"} 10
`
	require.NoError(t, promtestutil.GatherAndCompare(
		reg,
		strings.NewReader(expected),
		"event_bus_dropped_total",
	))
	unsubDone := make(chan struct{})
	go func() {
		defer close(unsubDone)
		eb.Unsubscribe(event.MemberRegisteredEventType, stalledId)
	}()
	testutil.RequireClosed(t, unsubDone, time.Second, "unsubscribe with a full buffer")
	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		eb.Stop()
	}()
	testutil.RequireClosed(t, stopDone, time.Second, "stop after dropped deliveries")
}
