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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blinklabs-io/stokvel"
	"github.com/blinklabs-io/stokvel/internal/config"
)

// Options translates the loaded process config into stokvel options
func Options(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) ([]stokvel.ConfigOptionFunc, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	latePenalty, err := cfg.LatePenaltyAmount()
	if err != nil {
		return nil, err
	}
	missedPenalty, err := cfg.MissedPenaltyAmount()
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return nil, err
	}
	retryBackoff, err := cfg.RetryBackoffDuration()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.ScheduleLocation()
	if err != nil {
		return nil, err
	}
	opts := []stokvel.ConfigOptionFunc{
		stokvel.WithLogger(logger),
		stokvel.WithDatabasePath(cfg.DatabasePath),
		stokvel.WithEntityPlugin(cfg.EntityPlugin),
		stokvel.WithBlobPlugin(cfg.BlobPlugin),
		stokvel.WithPenaltySchedule(cfg.PenaltySchedule),
		stokvel.WithScheduleLocation(loc),
		stokvel.WithLatePenalty(latePenalty),
		stokvel.WithMissedPenalty(missedPenalty),
		stokvel.WithMaxAttempts(cfg.MaxAttempts),
		stokvel.WithRetryBackoff(retryBackoff),
		stokvel.WithPenaltyWorkers(cfg.PenaltyWorkers),
		stokvel.WithShutdownTimeout(shutdownTimeout),
		stokvel.WithTracing(cfg.Tracing),
		stokvel.WithTracingStdout(cfg.TracingStdout),
	}
	if promRegistry != nil {
		opts = append(opts, stokvel.WithPrometheusRegistry(promRegistry))
	}
	return opts, nil
}

// Open builds a Stokvel from the process config without starting the
// scheduler. The caller owns the returned value and must Close it.
func Open(
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*stokvel.Stokvel, error) {
	opts, err := Options(cfg, logger, promRegistry)
	if err != nil {
		return nil, err
	}
	return stokvel.New(stokvel.NewConfig(opts...))
}

// Run opens the ledger, serves metrics and runs the penalty scheduler until
// SIGINT or SIGTERM is received
func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	shutdownTimeout, err := cfg.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	// Enable metrics with default prometheus registry
	s, err := Open(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	if cfg.Scheduler {
		if err := s.StartScheduler(signalCtx); err != nil {
			return errors.Join(err, s.Close())
		}
		logger.Info(
			"penalty scheduler started, next run at "+s.Scheduler().Next().Format(time.RFC3339),
			"component", "node",
		)
	}

	errChan := make(chan error, 1)
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr: fmt.Sprintf(
				"%s:%d",
				cfg.BindAddr,
				cfg.MetricsPort,
			),
			Handler:           mux,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		logger.Info(
			"serving prometheus metrics on "+metricsServer.Addr,
			"component", "node",
		)
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
	}

	// Wait for signal or error
	var runErr error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown", "component", "node")
	case runErr = <-errChan:
		logger.Error("node error", "component", "node", "error", runErr)
		signalCtxStop()
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "component", "node", "error", err)
		}
	}
	if err := s.Close(); err != nil {
		logger.Error("shutdown errors occurred", "component", "node", "error", err)
		return errors.Join(runErr, err)
	}
	if runErr == nil {
		logger.Info("shutdown complete", "component", "node")
	}
	return runErr
}
