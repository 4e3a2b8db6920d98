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

package mysql

import (
	"sync"

	"github.com/blinklabs-io/stokvel/database/plugin"
	"github.com/blinklabs-io/stokvel/database/plugin/entity/internal/gormstore"
)

var (
	serverOptions      gormstore.ServerOptions
	serverOptionsMutex sync.RWMutex
)

func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeEntity,
			Name:               "mysql",
			Description:        "MySQL relational database",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: serverOptions.Declare("MySQL", gormstore.ServerOptions{
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Database: "stokvel",
				TimeZone: "UTC",
				MaxConns: 20,
			}),
		},
	)
}

// NewFromCmdlineOptions builds a store from the current option values. The
// connection is opened by Start.
func NewFromCmdlineOptions() plugin.Plugin {
	serverOptionsMutex.RLock()
	o := serverOptions
	serverOptionsMutex.RUnlock()
	p, err := NewWithOptions(
		WithHost(o.Host),
		WithPort(uint(o.Port)),
		WithUser(o.User),
		WithPassword(o.Password),
		WithDatabase(o.Database),
		WithSSLMode(o.SSLMode),
		WithTimeZone(o.TimeZone),
		WithMaxConnections(int(o.MaxConns)), //nolint:gosec
		WithDSN(o.DSN),
	)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}
