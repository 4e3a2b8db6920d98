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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"

	"github.com/blinklabs-io/stokvel/database/plugin/blob"
	"github.com/blinklabs-io/stokvel/database/plugin/internal/badgerdb"
	"github.com/blinklabs-io/stokvel/database/types"
)

const (
	refScheme = "badger:"
	keyPrefix = "b/"
)

type blobObject struct {
	_           struct{} `cbor:",toarray"`
	ContentType string
	Data        []byte
}

// BlobStoreBadger stores blobs in badger. Data is not persisted when no
// data dir is configured
type BlobStoreBadger struct {
	db             *badgerdb.DB
	logger         *slog.Logger
	dataDir        string
	blockCacheSize uint64
	indexCacheSize uint64
	gcEnabled      bool
}

// New creates a new blob store. The database is opened by Start()
func New(opts ...BlobStoreBadgerOptionFunc) (*BlobStoreBadger, error) {
	db := &BlobStoreBadger{
		// Set defaults
		gcEnabled:      true,
		blockCacheSize: badgerdb.DefaultBlockCacheSize,
		indexCacheSize: badgerdb.DefaultIndexCacheSize,
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
func (d *BlobStoreBadger) Start() error {
	db, err := badgerdb.Open(badgerdb.Config{
		Logger:         d.logger,
		DataDir:        d.dataDir,
		Subdir:         "blob",
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
func (d *BlobStoreBadger) Stop() error {
	return d.Close()
}

// Close stops GC and closes the database
func (d *BlobStoreBadger) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// KeyFromRef strips the "badger:" scheme from a reference
func (d *BlobStoreBadger) KeyFromRef(ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, refScheme)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: badger reference %q", types.ErrInvalidKey, ref)
	}
	return key, nil
}

// Put stores data under key and returns a "badger:<key>" reference
func (d *BlobStoreBadger) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) (string, error) {
	if err := blob.ValidateKey(key); err != nil {
		return "", err
	}
	if d.db == nil {
		return "", types.ErrBlobStoreUnavailable
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	val, err := cbor.Marshal(&blobObject{
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return "", err
	}
	if err := d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), val)
	}); err != nil {
		d.logger.Error(
			fmt.Sprintf("badger put %q failed: %s", key, err),
			"component", "database",
		)
		return "", err
	}
	return refScheme + key, nil
}

// Get retrieves the data stored under key
func (d *BlobStoreBadger) Get(ctx context.Context, key string) ([]byte, error) {
	if err := blob.ValidateKey(key); err != nil {
		return nil, err
	}
	if d.db == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var obj blobObject
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return types.ErrBlobKeyNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &obj)
		})
	})
	if err != nil {
		return nil, err
	}
	return obj.Data, nil
}
