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

import "github.com/prometheus/client_golang/prometheus"

const eventMetricNamePrefix = "event_bus_"

type eventMetrics struct {
	eventsTotal   *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	handlerPanics *prometheus.CounterVec
	subscribers   *prometheus.GaugeVec
}

func newEventMetrics(promRegistry prometheus.Registerer) *eventMetrics {
	m := &eventMetrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: eventMetricNamePrefix + "events_total",
				Help: "Total number of events published",
			},
			[]string{"type"},
		),
		droppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: eventMetricNamePrefix + "dropped_total",
				Help: "Events dropped because the async queue or a subscriber buffer was full",
			},
			[]string{"type"},
		),
		handlerPanics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: eventMetricNamePrefix + "handler_panics_total",
				Help: "Subscriber callbacks that panicked",
			},
			[]string{"type"},
		),
		subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: eventMetricNamePrefix + "subscribers",
				Help: "Current number of subscribers",
			},
			[]string{"type"},
		),
	}
	promRegistry.MustRegister(
		m.eventsTotal,
		m.droppedTotal,
		m.handlerPanics,
		m.subscribers,
	)
	return m
}
