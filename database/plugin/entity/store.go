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

package entity

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/blinklabs-io/stokvel/database/plugin"
	"github.com/blinklabs-io/stokvel/database/types"
)

// EntityStore is keyed record persistence with optimistic concurrency.
// Implementations do not validate business invariants.
type EntityStore interface {
	// Get returns the stored record or types.ErrNotFound
	Get(ctx context.Context, key types.Key) (*types.Record, error)
	// Create stores a new record and returns its token, or
	// types.ErrAlreadyExists if the key is taken
	Create(ctx context.Context, rec *types.Record) (string, error)
	// Put replaces the record if its stored token equals expectedToken and
	// returns the new token. A mismatch returns types.ErrConflict and leaves
	// the stored record unchanged.
	Put(ctx context.Context, rec *types.Record, expectedToken string) (string, error)
	// List yields every record in a partition. The sequence is finite and
	// can be ranged over again to re-read the partition.
	List(ctx context.Context, table string, partition string) iter.Seq2[*types.Record, error]
	Close() error
}

// New returns the started entity plugin selected by name
func New(pluginName string, logger *slog.Logger) (EntityStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeEntity, pluginName, logger)
	if err != nil {
		return nil, err
	}
	store, ok := p.(EntityStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement EntityStore interface",
			pluginName,
		)
	}
	return store, nil
}
