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

package stokvel

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/blinklabs-io/stokvel/database"
	"github.com/blinklabs-io/stokvel/ledger"
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	scheduleLocation *time.Location
	latePenalty      *decimal.Decimal
	missedPenalty    *decimal.Decimal
	dataDir          string
	entityPlugin     string
	blobPlugin       string
	penaltySchedule  string
	maxAttempts      int
	penaltyWorkers   int
	retryBackoff     time.Duration
	shutdownTimeout  time.Duration
	tracing          bool
	tracingStdout    bool
}

func (c *Config) validate() error {
	if c.maxAttempts < 0 {
		return fmt.Errorf("invalid max attempts: %d", c.maxAttempts)
	}
	if c.penaltyWorkers < 0 {
		return fmt.Errorf("invalid penalty worker count: %d", c.penaltyWorkers)
	}
	if _, _, err := ledger.ResolvePenalties(c.latePenalty, c.missedPenalty); err != nil {
		return fmt.Errorf("invalid penalties: %w", err)
	}
	if c.penaltySchedule != "" {
		if _, err := cron.ParseStandard(c.penaltySchedule); err != nil {
			return fmt.Errorf("invalid penalty schedule %q: %w", c.penaltySchedule, err)
		}
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the Stokvel config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new stokvel config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		entityPlugin: database.DefaultEntityPlugin,
		blobPlugin:   database.DefaultBlobPlugin,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the persistent data directory to use. The default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithEntityPlugin specifies the entity storage plugin to use
func WithEntityPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.entityPlugin = plugin
	}
}

// WithBlobPlugin specifies the receipt blob storage plugin to use
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. Metrics are not registered by default
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithPenaltySchedule specifies the cron schedule for the penalty cycle. The default is midnight on the 8th of each month
func WithPenaltySchedule(schedule string) ConfigOptionFunc {
	return func(c *Config) {
		c.penaltySchedule = schedule
	}
}

// WithScheduleLocation specifies the time zone for the penalty schedule. The default is UTC
func WithScheduleLocation(loc *time.Location) ConfigOptionFunc {
	return func(c *Config) {
		c.scheduleLocation = loc
	}
}

// WithLatePenalty specifies the penalty for a late payment
func WithLatePenalty(amount decimal.Decimal) ConfigOptionFunc {
	return func(c *Config) {
		c.latePenalty = &amount
	}
}

// WithMissedPenalty specifies the penalty for a missed month
func WithMissedPenalty(amount decimal.Decimal) ConfigOptionFunc {
	return func(c *Config) {
		c.missedPenalty = &amount
	}
}

// WithMaxAttempts specifies how many times a conflicting write is retried before giving up
func WithMaxAttempts(attempts int) ConfigOptionFunc {
	return func(c *Config) {
		c.maxAttempts = attempts
	}
}

// WithRetryBackoff specifies the base delay between conflicting write attempts
func WithRetryBackoff(backoff time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.retryBackoff = backoff
	}
}

// WithPenaltyWorkers specifies how many members are evaluated concurrently during a penalty cycle
func WithPenaltyWorkers(workers int) ConfigOptionFunc {
	return func(c *Config) {
		c.penaltyWorkers = workers
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
