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

package postgres

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/blinklabs-io/stokvel/database/plugin/entity/internal/gormstore"
	"github.com/blinklabs-io/stokvel/database/types"
)

// EntityStorePostgres stores entities in Postgres.
type EntityStorePostgres struct {
	db     *gorm.DB
	store  *gormstore.Store
	logger *slog.Logger

	host     string
	port     uint
	user     string
	password string
	database string
	sslMode  string
	timeZone string
	maxConns int
	dsn      string // Data source name (postgres connection string)
}

// NewWithOptions creates a new entity store with options. The connection is
// opened by Start()
func NewWithOptions(opts ...PostgresOptionFunc) (*EntityStorePostgres, error) {
	db := &EntityStorePostgres{}
	for _, opt := range opts {
		opt(db)
	}
	if db.host == "" {
		db.host = "localhost"
	}
	if db.port == 0 {
		db.port = 5432
	}
	if db.user == "" {
		db.user = "postgres"
	}
	if db.database == "" {
		db.database = "stokvel"
	}
	if db.sslMode == "" {
		db.sslMode = "disable"
	}
	if db.timeZone == "" {
		db.timeZone = "UTC"
	}
	if db.maxConns <= 0 {
		db.maxConns = 20
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db, nil
}

// connString returns the DSN used to connect. An explicit DSN wins over the
// individual connection options.
func (d *EntityStorePostgres) connString() string {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		return dsn
	}
	parts := []string{
		"host=" + d.host,
		"user=" + d.user,
		"password=" + d.password,
		"dbname=" + d.database,
		"port=" + strconv.FormatUint(uint64(d.port), 10),
		"sslmode=" + d.sslMode,
	}
	if d.timeZone != "" {
		parts = append(parts, "TimeZone="+d.timeZone)
	}
	return strings.Join(parts, " ")
}

// Start implements the plugin.Plugin interface
func (d *EntityStorePostgres) Start() error {
	entityDb, err := gorm.Open(
		postgres.Open(d.connString()),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
	if err != nil {
		return err
	}
	d.logger.Info(
		"connected to postgres entity store",
		"component", "database",
		"host", d.host,
		"port", d.port,
		"database", d.database,
	)
	d.db = entityDb
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxIdleConns(min(10, d.maxConns))
	sqlDB.SetMaxOpenConns(d.maxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	// Configure tracing for GORM
	if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return err
	}
	d.store = gormstore.New(entityDb)
	return d.store.Migrate()
}

// Stop implements the plugin.Plugin interface
func (d *EntityStorePostgres) Stop() error {
	return d.Close()
}

// Close closes the underlying connection pool
func (d *EntityStorePostgres) Close() error {
	// Start() failed or was never called
	if d.db == nil {
		return nil
	}
	db, err := d.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func (d *EntityStorePostgres) Get(ctx context.Context, key types.Key) (*types.Record, error) {
	return d.store.Get(ctx, key)
}

func (d *EntityStorePostgres) Create(ctx context.Context, rec *types.Record) (string, error) {
	return d.store.Create(ctx, rec)
}

func (d *EntityStorePostgres) Put(
	ctx context.Context,
	rec *types.Record,
	expectedToken string,
) (string, error) {
	return d.store.Put(ctx, rec, expectedToken)
}

func (d *EntityStorePostgres) List(
	ctx context.Context,
	table string,
	partition string,
) iter.Seq2[*types.Record, error] {
	return d.store.List(ctx, table, partition)
}
