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

package badgerdb

import (
	"bytes"
	"log/slog"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemory(t *testing.T) {
	db, err := Open(Config{GcEnabled: true})
	require.NoError(t, err)
	// GC is never started for in-memory databases
	assert.Nil(t, db.gcTicker)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}

func TestOpenOnDiskWithGc(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(Config{DataDir: dir, Subdir: "entity", GcEnabled: true})
	require.NoError(t, err)
	assert.NotNil(t, db.gcTicker)
	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	}))
	require.NoError(t, db.Close())

	db, err = Open(Config{DataDir: dir, Subdir: "entity"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("k"))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		assert.Equal(t, []byte("v"), val)
		return err
	}))
}

func TestBadgerLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewBadgerLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	logger.Warningf("value log %d rewritten\n", 3)
	assert.Contains(t, buf.String(), `msg="value log 3 rewritten"`)
	assert.Contains(t, buf.String(), "component=database")
}
