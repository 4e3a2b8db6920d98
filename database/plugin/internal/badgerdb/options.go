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

import "github.com/blinklabs-io/stokvel/database/plugin"

// PluginOptions holds the settings shared by the badger-backed plugins
type PluginOptions struct {
	DataDir        string
	BlockCacheSize uint64
	IndexCacheSize uint64
	GcEnabled      bool
}

// Declare binds o to the plugin options and resets it to the defaults
func (o *PluginOptions) Declare() []plugin.PluginOption {
	return []plugin.PluginOption{
		plugin.StringOption("data-dir", "Data directory for badger storage", ".stokvel", &o.DataDir),
		plugin.UintOption("block-cache-size", "Badger block cache size in bytes", DefaultBlockCacheSize, &o.BlockCacheSize),
		plugin.UintOption("index-cache-size", "Badger index cache size in bytes", DefaultIndexCacheSize, &o.IndexCacheSize),
		plugin.BoolOption("gc", "Run value log garbage collection", true, &o.GcEnabled),
	}
}
