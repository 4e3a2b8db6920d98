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

package plugin_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/stokvel/database/plugin"
)

type mockPlugin struct {
	logger  *slog.Logger
	started bool
}

func (m *mockPlugin) Start() error                  { m.started = true; return nil }
func (m *mockPlugin) Stop() error                   { return nil }
func (m *mockPlugin) SetLogger(logger *slog.Logger) { m.logger = logger }

var testOptions struct {
	dataDir  string
	gc       bool
	workers  int
	cacheMax uint64
}

func init() {
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeEntity,
		Name:               "mock-options",
		Description:        "plugin with one option of each type",
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
		Options: []plugin.PluginOption{
			{
				Name:         "data-dir",
				Type:         plugin.PluginOptionTypeString,
				DefaultValue: ".stokvel",
				Dest:         &(testOptions.dataDir),
			},
			{
				Name:         "gc",
				Type:         plugin.PluginOptionTypeBool,
				DefaultValue: true,
				Dest:         &(testOptions.gc),
			},
			{
				Name:         "workers",
				Type:         plugin.PluginOptionTypeInt,
				DefaultValue: 2,
				Dest:         &(testOptions.workers),
			},
			{
				Name:         "cache-max",
				Type:         plugin.PluginOptionTypeUint,
				DefaultValue: uint64(10),
				Dest:         &(testOptions.cacheMax),
			},
		},
	})
}

func TestRegisterAndGetPlugin(t *testing.T) {
	pluginName := "test-plugin-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               pluginName,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
	})

	p := plugin.GetPlugin(plugin.PluginTypeBlob, pluginName)
	require.NotNil(t, p)
	_, ok := p.(*mockPlugin)
	assert.True(t, ok, "expected *mockPlugin, got %T", p)

	// Same name under another type is a different plugin
	assert.Nil(t, plugin.GetPlugin(plugin.PluginTypeEntity, pluginName))

	found := false
	for _, pl := range plugin.GetPlugins(plugin.PluginTypeBlob) {
		if pl.Name == pluginName {
			found = true
		}
	}
	assert.True(t, found, "plugin not in GetPlugins list")
}

func TestStartPlugin(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p, err := plugin.StartPlugin(plugin.PluginTypeEntity, "mock-options", logger)
	require.NoError(t, err)
	mp, ok := p.(*mockPlugin)
	require.True(t, ok)
	assert.True(t, mp.started)
	assert.Same(t, logger, mp.logger)

	_, err = plugin.StartPlugin(plugin.PluginTypeEntity, "does-not-exist", nil)
	assert.Error(t, err)
}

func TestStartErrorPlugin(t *testing.T) {
	startErr := errors.New("boom")
	pluginName := "error-plugin-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               pluginName,
		NewFromOptionsFunc: func() plugin.Plugin { return plugin.NewErrorPlugin(startErr) },
	})
	_, err := plugin.StartPlugin(plugin.PluginTypeBlob, pluginName, nil)
	assert.ErrorIs(t, err, startErr)
}

func TestSetPluginOption(t *testing.T) {
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeEntity, "mock-options", "data-dir", ""))
	assert.Equal(t, "", testOptions.dataDir)

	// Wrong type
	assert.Error(t, plugin.SetPluginOption(plugin.PluginTypeEntity, "mock-options", "data-dir", 123))

	// Unknown option is a no-op
	assert.NoError(t, plugin.SetPluginOption(plugin.PluginTypeEntity, "mock-options", "does-not-exist", "x"))

	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeEntity, "mock-options", "cache-max", 42))
	assert.Equal(t, uint64(42), testOptions.cacheMax)
	assert.Error(t, plugin.SetPluginOption(plugin.PluginTypeEntity, "mock-options", "cache-max", -1))

	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeEntity, "mock-options", "gc", false))
	assert.False(t, testOptions.gc)

	// Plugin not found
	assert.Error(t, plugin.SetPluginOption(plugin.PluginTypeEntity, "nonexistent", "data-dir", t.TempDir()))
}

func TestProcessEnvVars(t *testing.T) {
	t.Setenv("STOKVEL_ENTITY_MOCK_OPTIONS_WORKERS", "7")
	t.Setenv("STOKVEL_ENTITY_MOCK_OPTIONS_DATA_DIR", "/tmp/env-dir")
	require.NoError(t, plugin.ProcessEnvVars())
	assert.Equal(t, 7, testOptions.workers)
	assert.Equal(t, "/tmp/env-dir", testOptions.dataDir)

	t.Setenv("STOKVEL_ENTITY_MOCK_OPTIONS_GC", "not-a-bool")
	assert.Error(t, plugin.ProcessEnvVars())
}

func TestProcessConfig(t *testing.T) {
	err := plugin.ProcessConfig(map[string]map[string]map[string]any{
		"entity": {
			"mock-options": {
				"data-dir":  "/var/lib/stokvel",
				"cache-max": 64,
				"gc":        "true",
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/stokvel", testOptions.dataDir)
	assert.Equal(t, uint64(64), testOptions.cacheMax)
	assert.True(t, testOptions.gc)
}

func TestPopulateCmdlineOptions(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, plugin.PopulateCmdlineOptions(fs))
	require.NotNil(t, fs.Lookup("entity-mock-options-data-dir"))
	require.NoError(t, fs.Parse([]string{"--entity-mock-options-workers=3"}))
	assert.Equal(t, 3, testOptions.workers)
}

func TestOptionConstructors(t *testing.T) {
	var (
		host  string
		port  uint64
		debug bool
	)
	opts := []plugin.PluginOption{
		plugin.StringOption("host", "server host", "localhost", &host),
		plugin.UintOption("port", "server port", 5432, &port),
		plugin.BoolOption("debug", "verbose logging", true, &debug),
	}
	assert.Equal(t, "localhost", host)
	assert.Equal(t, uint64(5432), port)
	assert.True(t, debug)
	assert.Equal(t, plugin.PluginOptionTypeString, opts[0].Type)
	assert.Equal(t, plugin.PluginOptionTypeUint, opts[1].Type)
	assert.Equal(t, plugin.PluginOptionTypeBool, opts[2].Type)

	pluginName := "constructed-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               pluginName,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
		Options:            opts,
	})
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, pluginName, "port", 3306))
	assert.Equal(t, uint64(3306), port)
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, pluginName, "host", "db.internal"))
	assert.Equal(t, "db.internal", host)
}
