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

package database_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/stokvel/database"
	"github.com/blinklabs-io/stokvel/database/types"
)

func TestNewInMemoryDefaults(t *testing.T) {
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	defer db.Close()
	require.NotNil(t, db.Entity())
	require.NotNil(t, db.Blob())
	assert.Equal(t, "", db.DataDir())
	assert.NotNil(t, db.Logger())

	ctx := context.Background()
	key := types.MemberKey("zanele@example.com")
	_, err = db.Entity().Create(ctx, &types.Record{Key: key, Data: []byte("x")})
	require.NoError(t, err)
	ref, err := db.Blob().Put(ctx, "receipts/r1", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "badger:receipts/r1", ref)
}

func TestNewWithDataDir(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dir})
	require.NoError(t, err)
	ctx := context.Background()
	key := types.MemberKey("kagiso@example.com")
	_, err = db.Entity().Create(ctx, &types.Record{Key: key, Data: []byte("persisted")})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = database.New(&database.Config{DataDir: dir})
	require.NoError(t, err)
	defer db.Close()
	rec, err := db.Entity().Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), rec.Data)
}

func TestNewBadgerEntityPlugin(t *testing.T) {
	db, err := database.New(&database.Config{EntityPlugin: "badger"})
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Entity().Get(context.Background(), types.MemberKey("none@example.com"))
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestNewUnknownPlugin(t *testing.T) {
	_, err := database.New(&database.Config{EntityPlugin: "does-not-exist"})
	assert.Error(t, err)
}

func TestStoreMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	db, err := database.New(&database.Config{PromRegistry: reg})
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	key := types.MemberKey("naledi@example.com")
	token, err := db.Entity().Create(ctx, &types.Record{Key: key})
	require.NoError(t, err)
	_, err = db.Entity().Put(ctx, &types.Record{Key: key}, token)
	require.NoError(t, err)
	_, err = db.Entity().Put(ctx, &types.Record{Key: key}, token)
	require.ErrorIs(t, err, types.ErrConflict)
	for range db.Entity().List(ctx, types.MembersTable, types.MemberPartition) {
	}
	_, err = db.Blob().Get(ctx, "receipts/missing")
	require.ErrorIs(t, err, types.ErrBlobKeyNotFound)

	count, err := testutil.GatherAndCount(reg, "database_entity_ops_total")
	require.NoError(t, err)
	// create/ok, put/ok, put/conflict, list/ok
	assert.Equal(t, 4, count)
	count, err = testutil.GatherAndCount(reg, "database_blob_ops_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
