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

package gormstore

import (
	"time"

	"github.com/blinklabs-io/stokvel/database/types"
)

// Entity is the single relational table backing the entity store. Each
// logical table is a value of EntityTable.
type Entity struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	EntityTable  string `gorm:"column:entity_table;primaryKey;size:64"`
	PartitionKey string `gorm:"column:partition_key;primaryKey;size:320"`
	RowKey       string `gorm:"column:row_key;primaryKey;size:320"`
	Token        string `gorm:"column:token;size:36;not null"`
	Data         []byte `gorm:"column:data"`
}

func (Entity) TableName() string {
	return "entity"
}

func (e *Entity) key() types.Key {
	return types.Key{
		Table:     e.EntityTable,
		Partition: e.PartitionKey,
		Row:       e.RowKey,
	}
}

func (e *Entity) record() *types.Record {
	return &types.Record{
		Key:       e.key(),
		Token:     e.Token,
		Data:      e.Data,
		UpdatedAt: e.UpdatedAt,
	}
}
