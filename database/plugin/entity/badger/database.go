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

package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/blinklabs-io/stokvel/database/plugin/internal/badgerdb"
	"github.com/blinklabs-io/stokvel/database/types"
)

const (
	keyPrefix    = "e/"
	keySeparator = "\x00"
	// createAttempts bounds retries of Create after a badger txn conflict
	createAttempts = 3
)

// envelope is the stored value for each entity
type envelope struct {
	_         struct{} `cbor:",toarray"`
	Token     string
	Data      []byte
	UpdatedAt int64
}

// EntityStoreBadger stores entities in badger as CBOR envelopes
type EntityStoreBadger struct {
	db             *badgerdb.DB
	logger         *slog.Logger
	dataDir        string
	blockCacheSize uint64
	indexCacheSize uint64
	gcEnabled      bool
}

// NewWithOptions creates a badger entity store. The database is opened by Start()
func NewWithOptions(opts ...BadgerOptionFunc) (*EntityStoreBadger, error) {
	db := &EntityStoreBadger{
		blockCacheSize: badgerdb.DefaultBlockCacheSize,
		indexCacheSize: badgerdb.DefaultIndexCacheSize,
		gcEnabled:      true,
	}
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
func (d *EntityStoreBadger) Start() error {
	db, err := badgerdb.Open(badgerdb.Config{
		Logger:         d.logger,
		DataDir:        d.dataDir,
		Subdir:         "entity",
		BlockCacheSize: d.blockCacheSize,
		IndexCacheSize: d.indexCacheSize,
		GcEnabled:      d.gcEnabled,
	})
	if err != nil {
		return err
	}
	d.db = db
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *EntityStoreBadger) Stop() error {
	return d.Close()
}

func (d *EntityStoreBadger) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func validateKey(key types.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if strings.Contains(key.Table+key.Partition+key.Row, keySeparator) {
		return fmt.Errorf("%w: NUL byte in %q", types.ErrInvalidKey, key.String())
	}
	return nil
}

func partitionPrefix(table string, partition string) []byte {
	return []byte(keyPrefix + table + keySeparator + partition + keySeparator)
}

func encodeKey(key types.Key) []byte {
	return append(partitionPrefix(key.Table, key.Partition), key.Row...)
}

func decodeRecord(rawKey []byte, table string, partition string, val []byte) (*types.Record, error) {
	var env envelope
	if err := cbor.Unmarshal(val, &env); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return &types.Record{
		Key: types.Key{
			Table:     table,
			Partition: partition,
			Row:       string(bytes.TrimPrefix(rawKey, partitionPrefix(table, partition))),
		},
		Token:     env.Token,
		Data:      env.Data,
		UpdatedAt: time.Unix(0, env.UpdatedAt),
	}, nil
}

func encodeEnvelope(token string, data []byte) ([]byte, error) {
	return cbor.Marshal(&envelope{
		Token:     token,
		Data:      data,
		UpdatedAt: time.Now().UnixNano(),
	})
}

func getItem(txn *badger.Txn, key types.Key) (*types.Record, error) {
	rawKey := encodeKey(key)
	item, err := txn.Get(rawKey)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, key)
		}
		return nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeRecord(rawKey, key.Table, key.Partition, val)
}

func (d *EntityStoreBadger) Get(ctx context.Context, key types.Key) (*types.Record, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ret *types.Record
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		ret, err = getItem(txn, key)
		return err
	})
	return ret, err
}

func (d *EntityStoreBadger) Create(ctx context.Context, rec *types.Record) (string, error) {
	if err := validateKey(rec.Key); err != nil {
		return "", err
	}
	token := uuid.NewString()
	val, err := encodeEnvelope(token, rec.Data)
	if err != nil {
		return "", err
	}
	for range createAttempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err = d.db.Update(func(txn *badger.Txn) error {
			_, err := getItem(txn, rec.Key)
			if err == nil {
				return fmt.Errorf("%w: %s", types.ErrAlreadyExists, rec.Key)
			}
			if !errors.Is(err, types.ErrNotFound) {
				return err
			}
			return txn.Set(encodeKey(rec.Key), val)
		})
		// A conflicting commit means another writer touched the key, so the
		// next attempt sees it
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return "", fmt.Errorf("%w: %s", types.ErrAlreadyExists, rec.Key)
		}
		return "", err
	}
	return token, nil
}

func (d *EntityStoreBadger) Put(
	ctx context.Context,
	rec *types.Record,
	expectedToken string,
) (string, error) {
	if err := validateKey(rec.Key); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	newToken := uuid.NewString()
	val, err := encodeEnvelope(newToken, rec.Data)
	if err != nil {
		return "", err
	}
	err = d.db.Update(func(txn *badger.Txn) error {
		existing, err := getItem(txn, rec.Key)
		if err != nil {
			return err
		}
		if existing.Token != expectedToken {
			return fmt.Errorf("%w: %s", types.ErrConflict, rec.Key)
		}
		return txn.Set(encodeKey(rec.Key), val)
	})
	if err != nil {
		// Another transaction committed to the key after we read it
		if errors.Is(err, badger.ErrConflict) {
			return "", fmt.Errorf("%w: %s", types.ErrConflict, rec.Key)
		}
		return "", err
	}
	return newToken, nil
}

// List reads the partition in a single read transaction and yields the
// records after the transaction is released
func (d *EntityStoreBadger) List(
	ctx context.Context,
	table string,
	partition string,
) iter.Seq2[*types.Record, error] {
	return func(yield func(*types.Record, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		prefix := partitionPrefix(table, partition)
		var records []*types.Record
		err := d.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.IteratorOptions{
				Prefix:         prefix,
				PrefetchValues: true,
				PrefetchSize:   100,
			})
			defer it.Close()
			for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				rec, err := decodeRecord(item.KeyCopy(nil), table, partition, val)
				if err != nil {
					return err
				}
				records = append(records, rec)
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
			return
		}
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}
