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

// Package entitytest holds behavior tests shared by the entity store plugins
package entitytest

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/stokvel/database/types"
)

// Store is the subset of the entity store contract exercised here
type Store interface {
	Get(ctx context.Context, key types.Key) (*types.Record, error)
	Create(ctx context.Context, rec *types.Record) (string, error)
	Put(ctx context.Context, rec *types.Record, expectedToken string) (string, error)
	List(ctx context.Context, table string, partition string) iter.Seq2[*types.Record, error]
}

// Run exercises the entity store contract against a freshly opened store
func Run(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	key := types.MemberKey("thandi@example.com")

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get(ctx, types.MemberKey("nobody@example.com"))
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("CreateGet", func(t *testing.T) {
		token, err := store.Create(ctx, &types.Record{Key: key, Data: []byte("v1")})
		require.NoError(t, err)
		require.NotEmpty(t, token)
		rec, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, key, rec.Key)
		assert.Equal(t, token, rec.Token)
		assert.Equal(t, []byte("v1"), rec.Data)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		_, err := store.Create(ctx, &types.Record{Key: key, Data: []byte("other")})
		require.ErrorIs(t, err, types.ErrAlreadyExists)
		rec, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), rec.Data)
	})

	t.Run("PutMatchingToken", func(t *testing.T) {
		rec, err := store.Get(ctx, key)
		require.NoError(t, err)
		newToken, err := store.Put(ctx, &types.Record{Key: key, Data: []byte("v2")}, rec.Token)
		require.NoError(t, err)
		assert.NotEqual(t, rec.Token, newToken)
		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, newToken, got.Token)
		assert.Equal(t, []byte("v2"), got.Data)
	})

	t.Run("PutStaleToken", func(t *testing.T) {
		rec, err := store.Get(ctx, key)
		require.NoError(t, err)
		_, err = store.Put(ctx, &types.Record{Key: key, Data: []byte("v3")}, rec.Token)
		require.NoError(t, err)
		// Second writer still holds the old token
		_, err = store.Put(ctx, &types.Record{Key: key, Data: []byte("lost")}, rec.Token)
		require.ErrorIs(t, err, types.ErrConflict)
		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("v3"), got.Data)
	})

	t.Run("PutMissing", func(t *testing.T) {
		_, err := store.Put(
			ctx,
			&types.Record{Key: types.MemberKey("ghost@example.com")},
			"token",
		)
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		_, err := store.Create(ctx, &types.Record{Key: types.Key{Table: types.MembersTable}})
		require.ErrorIs(t, err, types.ErrInvalidKey)
	})

	t.Run("ListPartition", func(t *testing.T) {
		owner := "sipho@example.com"
		for _, month := range []int{3, 1, 2} {
			_, err := store.Create(ctx, &types.Record{
				Key:  types.PaymentKey(owner, 100, month),
				Data: []byte(fmt.Sprintf("m%d", month)),
			})
			require.NoError(t, err)
		}
		// Different partition in the same table
		_, err := store.Create(ctx, &types.Record{
			Key:  types.PaymentKey("other@example.com", 100, 1),
			Data: []byte("x"),
		})
		require.NoError(t, err)
		var rows []string
		for rec, err := range store.List(ctx, types.PaymentsTable, owner) {
			require.NoError(t, err)
			rows = append(rows, rec.Key.Row)
		}
		assert.Equal(t, []string{"100_01", "100_02", "100_03"}, rows)
		// Sequence can be restarted
		count := 0
		for _, err := range store.List(ctx, types.PaymentsTable, owner) {
			require.NoError(t, err)
			count++
		}
		assert.Equal(t, 3, count)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		count := 0
		for range store.List(ctx, types.PaymentsTable, "empty@example.com") {
			count++
		}
		assert.Zero(t, count)
	})

	t.Run("ConcurrentPut", func(t *testing.T) {
		ckey := types.MemberKey("race@example.com")
		token, err := store.Create(ctx, &types.Record{Key: ckey, Data: []byte("0")})
		require.NoError(t, err)
		const writers = 8
		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for i := range writers {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.Put(
					ctx,
					&types.Record{Key: ckey, Data: []byte(fmt.Sprint(i))},
					token,
				)
				switch {
				case err == nil:
					wins.Add(1)
				case assert.ErrorIs(t, err, types.ErrConflict):
					conflicts.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())
		assert.EqualValues(t, writers-1, conflicts.Load())
	})
}
