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

// Package gormstore implements the entity store on any gorm dialect. The
// relational plugins open their own connection and hand it to New.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blinklabs-io/stokvel/database/types"
)

const keyWhere = "entity_table = ? AND partition_key = ? AND row_key = ?"

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the entity table
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Entity{})
}

func (s *Store) Get(ctx context.Context, key types.Key) (*types.Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	ret := &Entity{}
	result := s.db.WithContext(ctx).
		Where(keyWhere, key.Table, key.Partition, key.Row).
		First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrNotFound, key)
		}
		return nil, result.Error
	}
	return ret.record(), nil
}

func (s *Store) Create(ctx context.Context, rec *types.Record) (string, error) {
	if err := rec.Key.Validate(); err != nil {
		return "", err
	}
	now := time.Now()
	tmpEntity := &Entity{
		EntityTable:  rec.Key.Table,
		PartitionKey: rec.Key.Partition,
		RowKey:       rec.Key.Row,
		Token:        uuid.NewString(),
		Data:         rec.Data,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(tmpEntity)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", fmt.Errorf("%w: %s", types.ErrAlreadyExists, rec.Key)
	}
	return tmpEntity.Token, nil
}

func (s *Store) Put(
	ctx context.Context,
	rec *types.Record,
	expectedToken string,
) (string, error) {
	if err := rec.Key.Validate(); err != nil {
		return "", err
	}
	newToken := uuid.NewString()
	result := s.db.WithContext(ctx).
		Model(&Entity{}).
		Where(keyWhere+" AND token = ?", rec.Key.Table, rec.Key.Partition, rec.Key.Row, expectedToken).
		Updates(map[string]any{
			"token":      newToken,
			"data":       rec.Data,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		// Distinguish a stale token from a missing record
		if _, err := s.Get(ctx, rec.Key); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %s", types.ErrConflict, rec.Key)
	}
	return newToken, nil
}

func (s *Store) List(
	ctx context.Context,
	table string,
	partition string,
) iter.Seq2[*types.Record, error] {
	return func(yield func(*types.Record, error) bool) {
		var entities []Entity
		result := s.db.WithContext(ctx).
			Where("entity_table = ? AND partition_key = ?", table, partition).
			Order("row_key").
			Find(&entities)
		if result.Error != nil {
			yield(nil, result.Error)
			return
		}
		for i := range entities {
			if !yield(entities[i].record(), nil) {
				return
			}
		}
	}
}
