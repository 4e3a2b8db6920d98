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

// Package badgerdb opens and maintains the badger databases used by the
// entity and blob plugins.
package badgerdb

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Default cache sizes for BadgerDB (in bytes)
const (
	DefaultBlockCacheSize = 67108864 // 64MB
	DefaultIndexCacheSize = 33554432 // 32MB
)

const gcInterval = 5 * time.Minute

// Config describes a badger database. Subdir is joined to DataDir so several
// stores can share a data dir.
type Config struct {
	Logger         *slog.Logger
	DataDir        string
	Subdir         string
	BlockCacheSize uint64
	IndexCacheSize uint64
	GcEnabled      bool
}

// DB is an open badger database with its value log GC loop
type DB struct {
	*badger.DB
	logger   *slog.Logger
	gcTicker *time.Ticker
	gcStopCh chan struct{}
	gcWg     sync.WaitGroup
	closeMu  sync.Mutex
	closed   bool
}

// Open opens the database described by cfg. An empty DataDir selects an
// in-memory database, for which GC is never run.
func Open(cfg Config) (*DB, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.BlockCacheSize == 0 {
		cfg.BlockCacheSize = DefaultBlockCacheSize
	}
	if cfg.IndexCacheSize == 0 {
		cfg.IndexCacheSize = DefaultIndexCacheSize
	}
	var badgerOpts badger.Options
	if cfg.DataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
		cfg.GcEnabled = false
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(cfg.DataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(cfg.DataDir, cfg.Subdir)).
			WithBlockCacheSize(int64(cfg.BlockCacheSize)). //nolint:gosec // cache sizes are operator controlled
			WithIndexCacheSize(int64(cfg.IndexCacheSize)). //nolint:gosec // cache sizes are operator controlled
			WithCompression(options.Snappy)
	}
	badgerOpts = badgerOpts.
		WithLogger(NewBadgerLogger(cfg.Logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	bdb, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	db := &DB{
		DB:     bdb,
		logger: cfg.Logger,
	}
	if cfg.GcEnabled {
		db.gcTicker = time.NewTicker(gcInterval)
		db.gcStopCh = make(chan struct{})
		db.gcWg.Add(1)
		go db.runGc(db.gcTicker, db.gcStopCh)
	}
	return db, nil
}

func (d *DB) runGc(t *time.Ticker, stop <-chan struct{}) {
	defer d.gcWg.Done()
	for {
		select {
		case <-t.C:
			// Keep collecting while each pass rewrites a file
			for {
				err := d.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					d.logger.Warn(
						fmt.Sprintf("badger GC failure: %s", err),
						"component", "database",
					)
				}
				break
			}
		case <-stop:
			return
		}
	}
}

// Close stops GC and closes the database. It is safe to call more than once.
func (d *DB) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.gcTicker != nil {
		d.gcTicker.Stop()
		close(d.gcStopCh)
		// Wait for GC goroutine to finish
		d.gcWg.Wait()
	}
	return d.DB.Close()
}
