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

import "github.com/blinklabs-io/stokvel/database/plugin"

// ServerOptions holds the connection settings of a networked SQL server
type ServerOptions struct {
	Host     string
	User     string
	Password string
	Database string
	SSLMode  string
	TimeZone string
	DSN      string
	Port     uint64
	MaxConns uint64
}

// Declare binds o to the plugin options of the named server, using def for
// the default values
func (o *ServerOptions) Declare(server string, def ServerOptions) []plugin.PluginOption {
	return []plugin.PluginOption{
		plugin.StringOption("host", server+" host", def.Host, &o.Host),
		plugin.UintOption("port", server+" port", def.Port, &o.Port),
		plugin.StringOption("user", server+" user", def.User, &o.User),
		plugin.StringOption("password", server+" password", def.Password, &o.Password),
		plugin.StringOption("database", server+" database name", def.Database, &o.Database),
		plugin.StringOption("ssl-mode", server+" TLS mode", def.SSLMode, &o.SSLMode),
		plugin.StringOption("timezone", "Time zone of stored timestamps", def.TimeZone, &o.TimeZone),
		plugin.UintOption("max-connections", "Maximum open connections", def.MaxConns, &o.MaxConns),
		plugin.StringOption("dsn", "Full "+server+" DSN, overriding the other options", def.DSN, &o.DSN),
	}
}
