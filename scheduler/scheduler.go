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

// Package scheduler triggers the monthly penalty cycle. Each period is run
// at most once: before running, the scheduler claims the period by creating
// a marker record, and an existing marker skips the run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/blinklabs-io/stokvel/database/plugin/entity"
	"github.com/blinklabs-io/stokvel/ledger"
)

const (
	// DefaultSchedule fires at midnight on the 8th of every month
	DefaultSchedule   = "0 0 8 * *"
	DefaultRunTimeout = 30 * time.Minute

	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// ErrPeriodProcessed is returned when a period already has a marker
var ErrPeriodProcessed = errors.New("penalty cycle already run for period")

// PenaltyRunner runs one penalty cycle. It is satisfied by
// *ledger.PenaltyEngine.
type PenaltyRunner interface {
	RunPenaltyCycle(ctx context.Context, period ledger.Period) (*ledger.PenaltyReport, error)
}

type Config struct {
	Logger    *slog.Logger
	Store     entity.EntityStore
	Penalties PenaltyRunner
	// Location is the time zone the schedule and the current period are
	// evaluated in. It defaults to UTC.
	Location   *time.Location
	Now        func() time.Time
	Schedule   string
	RunTimeout time.Duration
}

type Scheduler struct {
	config   Config
	logger   *slog.Logger
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

// New validates the configuration and parses the schedule
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("scheduler: entity store is required")
	}
	if cfg.Penalties == nil {
		return nil, errors.New("scheduler: penalty runner is required")
	}
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	s := &Scheduler{
		config: cfg,
		logger: cfg.Logger.With("component", "scheduler"),
	}
	parser := cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := s.cron.AddFunc(cfg.Schedule, s.runScheduled); err != nil {
		return nil, fmt.Errorf("invalid penalty schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start starts the cron loop. Scheduled runs use a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.logger.Info(
		"penalty scheduler started",
		"schedule", s.config.Schedule,
		"location", s.config.Location.String(),
	)
	return nil
}

// Stop cancels any running cycle and waits for it to return. It is safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		cancel := s.cancel
		s.mu.Unlock()
		if !started {
			return
		}
		cancel()
		<-s.cron.Stop().Done()
		s.logger.Info("penalty scheduler stopped")
	})
}

// Next returns the next scheduled run time, or the zero time if the
// scheduler is not running
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// CurrentPeriod is the calendar month containing now in the scheduler's
// location
func (s *Scheduler) CurrentPeriod() ledger.Period {
	t := s.config.Now().In(s.config.Location)
	return ledger.Period{Year: t.Year(), Month: t.Month()}
}

func (s *Scheduler) runScheduled() {
	s.mu.Lock()
	baseCtx := s.ctx
	s.mu.Unlock()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, cancel := context.WithTimeout(baseCtx, s.config.RunTimeout)
	defer cancel()
	period := s.CurrentPeriod()
	if _, err := s.run(ctx, period, TriggerSchedule, false); err != nil {
		if errors.Is(err, ErrPeriodProcessed) {
			s.logger.Info(
				"skipping penalty cycle, period already processed",
				"period", period.String(),
			)
			return
		}
		s.logger.Error(
			"scheduled penalty cycle failed",
			"period", period.String(),
			"error", err,
		)
	}
}

// RunOnce runs the penalty cycle for period unless it already has a marker,
// in which case it returns ErrPeriodProcessed
func (s *Scheduler) RunOnce(ctx context.Context, period ledger.Period) (*ledger.PenaltyReport, error) {
	return s.run(ctx, period, TriggerManual, false)
}

// ForceRun runs the penalty cycle even if the period has a marker. Members
// penalized by an earlier run are penalized again.
func (s *Scheduler) ForceRun(ctx context.Context, period ledger.Period) (*ledger.PenaltyReport, error) {
	return s.run(ctx, period, TriggerManual, true)
}

func (s *Scheduler) run(
	ctx context.Context,
	period ledger.Period,
	trigger string,
	force bool,
) (*ledger.PenaltyReport, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	claim, err := s.claim(ctx, period, trigger, force)
	if err != nil {
		return nil, err
	}
	s.logger.Info(
		"running penalty cycle",
		"period", period.String(),
		"trigger", trigger,
		"forced", force,
	)
	report, runErr := s.config.Penalties.RunPenaltyCycle(ctx, period)
	// Record the outcome even if ctx was cancelled
	if err := s.finish(context.WithoutCancel(ctx), claim, runErr); err != nil {
		s.logger.Error(
			"failed to update penalty run marker",
			"period", period.String(),
			"error", err,
		)
		if runErr == nil {
			return report, err
		}
	}
	if runErr != nil {
		return nil, runErr
	}
	return report, nil
}
