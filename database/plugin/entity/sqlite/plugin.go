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

package sqlite

import (
	"sync"

	"github.com/blinklabs-io/stokvel/database/plugin"
)

var (
	dataDirOption string
	optionsMutex  sync.RWMutex
)

func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeEntity,
			Name:               "sqlite",
			Description:        "SQLite relational database",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				plugin.StringOption(
					"data-dir",
					"Directory holding stokvel.sqlite, empty for an in-memory database",
					".stokvel",
					&dataDirOption,
				),
			},
		},
	)
}

// NewFromCmdlineOptions builds a store in the configured data dir
func NewFromCmdlineOptions() plugin.Plugin {
	optionsMutex.RLock()
	dataDir := dataDirOption
	optionsMutex.RUnlock()
	p, err := NewWithOptions(WithDataDir(dataDir))
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}
