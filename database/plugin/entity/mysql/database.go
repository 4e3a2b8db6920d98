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

package mysql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/blinklabs-io/stokvel/database/plugin/entity/internal/gormstore"
	"github.com/blinklabs-io/stokvel/database/types"
)

// mysqlUnknownDatabase is the server error number for a missing schema
const mysqlUnknownDatabase = 1049

// EntityStoreMysql stores entities in MySQL.
type EntityStoreMysql struct {
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
	dsn      string // Data source name (MySQL connection string)
}

// NewWithOptions creates a new entity store with options. The connection is
// opened by Start()
func NewWithOptions(opts ...MysqlOptionFunc) (*EntityStoreMysql, error) {
	db := &EntityStoreMysql{}
	for _, opt := range opts {
		opt(db)
	}
	if db.host == "" {
		db.host = "localhost"
	}
	if db.port == 0 {
		db.port = 3306
	}
	if db.user == "" {
		db.user = "root"
	}
	if db.database == "" {
		db.database = "stokvel"
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

// connString returns the DSN used to connect and the database name it
// targets. An explicit DSN wins over the individual connection options.
func (d *EntityStoreMysql) connString() (string, string) {
	if dsn := strings.TrimSpace(d.dsn); dsn != "" {
		if parsedDB, ok := parseMysqlDatabaseFromDSN(dsn); ok {
			return dsn, parsedDB
		}
		return dsn, d.database
	}
	cfg := mysql.Config{
		User:   d.user,
		Passwd: d.password,
		Net:    "tcp",
		Addr: fmt.Sprintf(
			"%s:%s",
			d.host,
			strconv.FormatUint(uint64(d.port), 10),
		),
		DBName:               d.database,
		ParseTime:            true,
		AllowNativePasswords: true,
		Params:               map[string]string{},
	}
	if d.timeZone != "" {
		loc, err := time.LoadLocation(d.timeZone)
		if err != nil {
			loc = time.UTC
		}
		cfg.Loc = loc
	}
	if d.sslMode != "" {
		cfg.Params["tls"] = d.sslMode
	}
	return cfg.FormatDSN(), d.database
}

func openGorm(dsn string) (*gorm.DB, error) {
	return gorm.Open(
		gormmysql.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
}

// Start implements the plugin.Plugin interface
func (d *EntityStoreMysql) Start() error {
	dsn, dbName := d.connString()
	entityDb, err := openGorm(dsn)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) || mysqlErr.Number != mysqlUnknownDatabase {
			return err
		}
		if createErr := d.ensureDatabaseExists(dsn, dbName); createErr != nil {
			return errors.Join(err, createErr)
		}
		entityDb, err = openGorm(dsn)
		if err != nil {
			return err
		}
	}
	d.logger.Info(
		"connected to mysql entity store",
		"component", "database",
		"host", d.host,
		"port", d.port,
		"database", dbName,
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

func (d *EntityStoreMysql) ensureDatabaseExists(dsn string, dbName string) error {
	if dbName == "" {
		return errors.New("no database name in DSN")
	}
	adminDsn, ok := stripDatabaseFromDSN(dsn)
	if !ok {
		return fmt.Errorf("cannot derive admin DSN for database %s", dbName)
	}
	adminDb, err := openGorm(adminDsn)
	if err != nil {
		return err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return err
	}
	defer sqlAdminDb.Close()
	d.logger.Info(
		"creating mysql database",
		"component", "database",
		"database", dbName,
	)
	return adminDb.Exec(
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName),
	).Error
}

func parseMysqlDatabaseFromDSN(dsn string) (string, bool) {
	base := dsn
	if idx := strings.Index(base, "?"); idx >= 0 {
		base = base[:idx]
	}
	slash := strings.LastIndex(base, "/")
	if slash < 0 || slash == len(base)-1 {
		return "", false
	}
	return base[slash+1:], true
}

func stripDatabaseFromDSN(dsn string) (string, bool) {
	base, params, _ := strings.Cut(dsn, "?")
	slash := strings.LastIndex(base, "/")
	if slash < 0 {
		return "", false
	}
	base = base[:slash+1]
	if params == "" {
		return base, true
	}
	return base + "?" + params, true
}

// Stop implements the plugin.Plugin interface
func (d *EntityStoreMysql) Stop() error {
	return d.Close()
}

// Close closes the underlying connection pool
func (d *EntityStoreMysql) Close() error {
	if d.db == nil {
		return nil
	}
	db, err := d.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func (d *EntityStoreMysql) Get(ctx context.Context, key types.Key) (*types.Record, error) {
	return d.store.Get(ctx, key)
}

func (d *EntityStoreMysql) Create(ctx context.Context, rec *types.Record) (string, error) {
	return d.store.Create(ctx, rec)
}

func (d *EntityStoreMysql) Put(
	ctx context.Context,
	rec *types.Record,
	expectedToken string,
) (string, error) {
	return d.store.Put(ctx, rec, expectedToken)
}

func (d *EntityStoreMysql) List(
	ctx context.Context,
	table string,
	partition string,
) iter.Seq2[*types.Record, error] {
	return d.store.List(ctx, table, partition)
}
