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

package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/blinklabs-io/stokvel/database/plugin/entity/internal/gormstore"
	"github.com/blinklabs-io/stokvel/database/types"
)

// EntityStoreSqlite is a SQLite-backed entity store
type EntityStoreSqlite struct {
	db          *gorm.DB
	store       *gormstore.Store
	logger      *slog.Logger
	timerVacuum *time.Timer
	timerMutex  sync.Mutex
	vacuumWG    sync.WaitGroup
	dataDir     string
	closed      bool
}

// New creates a SQLite entity store. Uses an in-memory database if dataDir is empty.
func New(
	dataDir string,
	logger *slog.Logger,
) (*EntityStoreSqlite, error) {
	db, err := NewWithOptions(
		WithDataDir(dataDir),
		WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err := db.Start(); err != nil {
		return nil, err
	}
	return db, nil
}

// NewWithOptions creates a SQLite entity store. The database is opened by Start()
func NewWithOptions(opts ...SqliteOptionFunc) (*EntityStoreSqlite, error) {
	db := &EntityStoreSqlite{}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db, nil
}

// Start implements the plugin.Plugin interface
func (d *EntityStoreSqlite) Start() error {
	var entityDb *gorm.DB
	var err error
	gormConfig := &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	}
	if d.dataDir == "" {
		// Each in-memory store gets its own named database. cache=shared lets
		// the pool's connections see the same data.
		entityDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
			),
			gormConfig,
		)
		if err != nil {
			return err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(d.dataDir, fs.ModePerm); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		entityDbPath := filepath.Join(
			d.dataDir,
			"entity.sqlite",
		)
		// WAL journal mode, wait on locks instead of failing immediately
		connOpts := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		entityDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf("file:%s?%s", entityDbPath, connOpts),
			),
			gormConfig,
		)
		if err != nil {
			return err
		}
	}
	// SQLite allows a single writer. Funnel everything through one
	// connection so concurrent writers queue instead of failing with
	// SQLITE_BUSY or SQLITE_LOCKED.
	sqlDb, err := entityDb.DB()
	if err != nil {
		return err
	}
	sqlDb.SetMaxOpenConns(1)
	d.db = entityDb
	d.store = gormstore.New(entityDb)
	if err := d.init(); err != nil {
		return err
	}
	d.logger.Debug("creating entity table", "component", "database")
	return d.store.Migrate()
}

// Stop implements the plugin.Plugin interface
func (d *EntityStoreSqlite) Stop() error {
	return d.Close()
}

func (d *EntityStoreSqlite) init() error {
	// Configure tracing for GORM
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	// Schedule daily database vacuum to free unused space
	d.scheduleDailyVacuum()
	return nil
}

func (d *EntityStoreSqlite) runVacuum() error {
	d.timerMutex.Lock()
	if d.dataDir == "" || d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	d.vacuumWG.Add(1)
	d.timerMutex.Unlock()
	defer d.vacuumWG.Done()
	return d.DB().Exec("VACUUM").Error
}

// scheduleDailyVacuum schedules a daily vacuum operation
func (d *EntityStoreSqlite) scheduleDailyVacuum() {
	d.timerMutex.Lock()
	defer d.timerMutex.Unlock()
	if d.closed {
		return
	}
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
	}
	f := func() {
		d.logger.Debug(
			"running vacuum on sqlite entity database",
			"component", "database",
		)
		// schedule next run
		defer d.scheduleDailyVacuum()
		if err := d.runVacuum(); err != nil {
			d.logger.Error(
				"failed to free unused space in entity store",
				"component", "database",
				"error", err,
			)
		}
	}
	d.timerVacuum = time.AfterFunc(24*time.Hour, f)
}

// Close shuts down the database connection and stops background processes
func (d *EntityStoreSqlite) Close() error {
	d.timerMutex.Lock()
	if d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	d.closed = true
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
		d.timerVacuum = nil
	}
	d.timerMutex.Unlock()
	d.vacuumWG.Wait()
	if d.db == nil {
		return nil
	}
	sqlDb, err := d.DB().DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDb.Close()
}

// DB returns the underlying GORM database handle
func (d *EntityStoreSqlite) DB() *gorm.DB {
	return d.db
}

func (d *EntityStoreSqlite) Get(ctx context.Context, key types.Key) (*types.Record, error) {
	return d.store.Get(ctx, key)
}

func (d *EntityStoreSqlite) Create(ctx context.Context, rec *types.Record) (string, error) {
	return d.store.Create(ctx, rec)
}

func (d *EntityStoreSqlite) Put(
	ctx context.Context,
	rec *types.Record,
	expectedToken string,
) (string, error) {
	return d.store.Put(ctx, rec, expectedToken)
}

func (d *EntityStoreSqlite) List(
	ctx context.Context,
	table string,
	partition string,
) iter.Seq2[*types.Record, error] {
	return d.store.List(ctx, table, partition)
}
