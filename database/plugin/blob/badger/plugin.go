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
	"sync"

	"github.com/blinklabs-io/stokvel/database/plugin"
	"github.com/blinklabs-io/stokvel/database/plugin/internal/badgerdb"
)

var (
	receiptOptions      badgerdb.PluginOptions
	receiptOptionsMutex sync.RWMutex
)

func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "badger",
			Description:        "BadgerDB local receipt store",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options:            receiptOptions.Declare(),
		},
	)
}

// NewFromCmdlineOptions builds a receipt store that shares the data dir of
// the entity store under its own subdirectory
func NewFromCmdlineOptions() plugin.Plugin {
	receiptOptionsMutex.RLock()
	o := receiptOptions
	receiptOptionsMutex.RUnlock()
	p, err := New(
		WithDataDir(o.DataDir),
		WithBlockCacheSize(o.BlockCacheSize),
		WithIndexCacheSize(o.IndexCacheSize),
		WithGc(o.GcEnabled),
	)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}
