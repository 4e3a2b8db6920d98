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

package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/stokvel/database/plugin"
	"github.com/blinklabs-io/stokvel/database/plugin/blob"
	"github.com/blinklabs-io/stokvel/database/plugin/entity"
)

const (
	DefaultEntityPlugin = "sqlite"
	DefaultBlobPlugin   = "badger"
)

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	// DataDir is passed to plugins that store data locally. An empty value
	// selects in-memory storage.
	DataDir      string
	EntityPlugin string
	BlobPlugin   string
}

// Database ties together the entity store holding ledger records and the
// blob store holding payment receipts
type Database struct {
	logger  *slog.Logger
	entity  entity.EntityStore
	blob    blob.BlobStore
	dataDir string
}

// Entity returns the underlying entity store instance
func (d *Database) Entity() entity.EntityStore {
	return d.entity
}

// Blob returns the underlying blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	if d.entity != nil {
		err = errors.Join(err, d.entity.Close())
	}
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

// New creates a new database instance using the configured plugins
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	logger := config.Logger
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	entityPlugin := config.EntityPlugin
	if entityPlugin == "" {
		entityPlugin = DefaultEntityPlugin
	}
	blobPlugin := config.BlobPlugin
	if blobPlugin == "" {
		blobPlugin = DefaultBlobPlugin
	}
	// Point local plugins at our data dir. Remote plugins don't define the
	// option and ignore it.
	if err := plugin.SetPluginOption(plugin.PluginTypeEntity, entityPlugin, "data-dir", config.DataDir); err != nil {
		return nil, err
	}
	if err := plugin.SetPluginOption(plugin.PluginTypeBlob, blobPlugin, "data-dir", config.DataDir); err != nil {
		return nil, err
	}
	entityStore, err := entity.New(entityPlugin, logger)
	if err != nil {
		return nil, err
	}
	blobStore, err := blob.New(blobPlugin, logger)
	if err != nil {
		return nil, errors.Join(err, entityStore.Close())
	}
	var metrics *storeMetrics
	if config.PromRegistry != nil {
		metrics = newStoreMetrics(config.PromRegistry)
	}
	db := &Database{
		logger:  logger,
		entity:  newInstrumentedEntityStore(entityStore, metrics),
		blob:    newInstrumentedBlobStore(blobStore, metrics),
		dataDir: config.DataDir,
	}
	logger.Info(
		fmt.Sprintf(
			"opened database with entity plugin %q and blob plugin %q",
			entityPlugin,
			blobPlugin,
		),
		"component", "database",
	)
	return db, nil
}
