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

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/stokvel/database/models"
	"github.com/blinklabs-io/stokvel/database/types"
	"github.com/blinklabs-io/stokvel/ledger"
)

const (
	RunStatusRunning  = "running"
	RunStatusComplete = "complete"
	RunStatusFailed   = "failed"
)

// Run describes the marker left by a penalty cycle
type Run struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Period     string
	Trigger    string
	Status     string
	Error      string
}

type runClaim struct {
	run   *models.PenaltyRun
	token string
}

func runFromModel(m *models.PenaltyRun) *Run {
	ret := &Run{
		Period:    m.Period,
		Trigger:   m.Trigger,
		Status:    m.Status,
		Error:     m.Error,
		StartedAt: time.Unix(m.StartedAt, 0).UTC(),
	}
	if m.FinishedAt != 0 {
		ret.FinishedAt = time.Unix(m.FinishedAt, 0).UTC()
	}
	return ret
}

// claim writes the marker for period. Without force an existing marker
// fails the claim; with force the marker is taken over.
func (s *Scheduler) claim(
	ctx context.Context,
	period ledger.Period,
	trigger string,
	force bool,
) (*runClaim, error) {
	run := &models.PenaltyRun{
		Period:    period.String(),
		Trigger:   trigger,
		Status:    RunStatusRunning,
		StartedAt: s.config.Now().Unix(),
	}
	data, err := run.Encode()
	if err != nil {
		return nil, err
	}
	key := types.PenaltyRunKey(period.String())
	token, err := s.config.Store.Create(ctx, &types.Record{Key: key, Data: data})
	if err == nil {
		return &runClaim{run: run, token: token}, nil
	}
	if !errors.Is(err, types.ErrAlreadyExists) {
		return nil, fmt.Errorf("create penalty run marker: %w", err)
	}
	existing, err := s.config.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read penalty run marker: %w", err)
	}
	prev, err := models.DecodePenaltyRun(existing.Data)
	if err != nil {
		return nil, fmt.Errorf("decode penalty run marker: %w", err)
	}
	if !force {
		return nil, fmt.Errorf(
			"%w: %s (%s by %s)",
			ErrPeriodProcessed,
			period,
			prev.Status,
			prev.Trigger,
		)
	}
	token, err = s.config.Store.Put(ctx, &types.Record{Key: key, Data: data}, existing.Token)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			return nil, fmt.Errorf("%w: %s (claimed concurrently)", ErrPeriodProcessed, period)
		}
		return nil, fmt.Errorf("take over penalty run marker: %w", err)
	}
	s.logger.Warn(
		"taking over existing penalty run marker",
		"period", period.String(),
		"previous_status", prev.Status,
	)
	return &runClaim{run: run, token: token}, nil
}

func (s *Scheduler) finish(ctx context.Context, claim *runClaim, runErr error) error {
	run := *claim.run
	run.FinishedAt = s.config.Now().Unix()
	run.Status = RunStatusComplete
	if runErr != nil {
		run.Status = RunStatusFailed
		run.Error = runErr.Error()
	}
	data, err := run.Encode()
	if err != nil {
		return err
	}
	_, err = s.config.Store.Put(
		ctx,
		&types.Record{Key: types.PenaltyRunKey(run.Period), Data: data},
		claim.token,
	)
	return err
}

// Marker returns the marker for period, or ledger.ErrNotFound
func (s *Scheduler) Marker(ctx context.Context, period ledger.Period) (*Run, error) {
	rec, err := s.config.Store.Get(ctx, types.PenaltyRunKey(period.String()))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("penalty run %s: %w", period, ledger.ErrNotFound)
		}
		return nil, err
	}
	m, err := models.DecodePenaltyRun(rec.Data)
	if err != nil {
		return nil, err
	}
	return runFromModel(m), nil
}

// Runs returns every penalty run marker
func (s *Scheduler) Runs(ctx context.Context) ([]*Run, error) {
	var ret []*Run
	for rec, err := range s.config.Store.List(ctx, types.PenaltyRunsTable, types.PenaltyRunPartition) {
		if err != nil {
			return nil, err
		}
		m, err := models.DecodePenaltyRun(rec.Data)
		if err != nil {
			return nil, err
		}
		ret = append(ret, runFromModel(m))
	}
	return ret, nil
}
