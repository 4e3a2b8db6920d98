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

// Package stokvel wires the ledger to its storage, event bus and penalty
// scheduler. A Stokvel is constructed once per process and passed to
// whatever serves requests.
package stokvel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/stokvel/database"
	"github.com/blinklabs-io/stokvel/event"
	"github.com/blinklabs-io/stokvel/ledger"
	"github.com/blinklabs-io/stokvel/scheduler"
)

const defaultShutdownTimeout = 30 * time.Second

type Stokvel struct {
	db             *database.Database
	eventBus       *event.EventBus
	ledger         *ledger.Ledger
	scheduler      *scheduler.Scheduler
	tracerProvider trace.TracerProvider
	shutdownFuncs  []func(context.Context) error
	config         Config
	closeOnce      sync.Once
}

// New opens the database and builds the ledger and scheduler. The scheduler
// is not started.
func New(cfg Config) (*Stokvel, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Stokvel{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
	}
	if err := s.open(); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

func (s *Stokvel) open() error {
	// Configure tracing
	if s.config.tracing {
		if err := s.setupTracing(); err != nil {
			return err
		}
	} else {
		s.tracerProvider = otel.GetTracerProvider()
	}
	// Load database
	db, err := database.New(&database.Config{
		Logger:       s.config.logger,
		PromRegistry: s.config.promRegistry,
		DataDir:      s.config.dataDir,
		EntityPlugin: s.config.entityPlugin,
		BlobPlugin:   s.config.blobPlugin,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db
	// Ledger
	l, err := ledger.New(ledger.Config{
		Logger:         s.config.logger,
		Store:          db.Entity(),
		Blob:           db.Blob(),
		EventBus:       s.eventBus,
		PromRegistry:   s.config.promRegistry,
		TracerProvider: s.tracerProvider,
		MaxAttempts:    s.config.maxAttempts,
		RetryBackoff:   s.config.retryBackoff,
		LatePenalty:    s.config.latePenalty,
		MissedPenalty:  s.config.missedPenalty,
		PenaltyWorkers: s.config.penaltyWorkers,
	})
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	s.ledger = l
	// Penalty scheduler
	sched, err := scheduler.New(scheduler.Config{
		Logger:    s.config.logger,
		Store:     db.Entity(),
		Penalties: l.Penalties,
		Schedule:  s.config.penaltySchedule,
		Location:  s.config.scheduleLocation,
	})
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.scheduler = sched
	return nil
}

func (s *Stokvel) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *Stokvel) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

func (s *Stokvel) EventBus() *event.EventBus {
	return s.eventBus
}

func (s *Stokvel) Database() *database.Database {
	return s.db
}

// StartScheduler starts the monthly penalty trigger
func (s *Stokvel) StartScheduler(ctx context.Context) error {
	return s.scheduler.Start(ctx)
}

// Close stops the scheduler and releases storage. It is safe to call more
// than once.
func (s *Stokvel) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.shutdown()
	})
	return err
}

func (s *Stokvel) shutdown() error {
	shutdownTimeout := defaultShutdownTimeout
	if s.config.shutdownTimeout > 0 {
		shutdownTimeout = s.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	s.config.logger.Debug("starting graceful shutdown")

	// Stop accepting new work
	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	// Close database
	if s.db != nil {
		if closeErr := s.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Call registered shutdown functions
	for _, fn := range s.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	s.shutdownFuncs = nil

	if s.eventBus != nil {
		s.eventBus.Stop()
	}

	s.config.logger.Debug("graceful shutdown complete")
	return err
}
