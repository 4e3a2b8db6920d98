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

package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/stokvel/database/plugin"
)

type ctxKey string

const configContextKey ctxKey = "stokvel.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultEntityPlugin    = "sqlite"
	DefaultBlobPlugin      = "badger"
	DefaultShutdownTimeout = "30s"
	DefaultPenaltySchedule = "0 0 8 * *"
	DefaultLatePenalty     = "50"
	DefaultMissedPenalty   = "100"
	DefaultRetryBackoff    = "10ms"
)

// ErrPluginListRequested is returned when the user requests to list available plugins
// This is not an error condition but a successful operation that displays plugin information
var ErrPluginListRequested = errors.New("plugin list requested")

type tempConfig struct {
	Config   *Config                   `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Entity   map[string]map[string]any `yaml:"entity,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
}

type databaseConfig struct {
	Entity map[string]any `yaml:"entity,omitempty"`
	Blob   map[string]any `yaml:"blob,omitempty"`
}

type Config struct {
	EntityPlugin     string `yaml:"entityPlugin"     envconfig:"STOKVEL_DATABASE_ENTITY_PLUGIN"`
	BlobPlugin       string `yaml:"blobPlugin"       envconfig:"STOKVEL_DATABASE_BLOB_PLUGIN"`
	DatabasePath     string `yaml:"databasePath"                                               split_words:"true"`
	BindAddr         string `yaml:"bindAddr"                                                   split_words:"true"`
	ShutdownTimeout  string `yaml:"shutdownTimeout"                                            split_words:"true"`
	PenaltySchedule  string `yaml:"penaltySchedule"                                            split_words:"true"`
	ScheduleTimezone string `yaml:"scheduleTimezone"                                           split_words:"true"`
	LatePenalty      string `yaml:"latePenalty"                                                split_words:"true"`
	MissedPenalty    string `yaml:"missedPenalty"                                              split_words:"true"`
	RetryBackoff     string `yaml:"retryBackoff"                                               split_words:"true"`
	MetricsPort      uint   `yaml:"metricsPort"                                                split_words:"true"`
	MaxAttempts      int    `yaml:"maxAttempts"                                                split_words:"true"`
	PenaltyWorkers   int    `yaml:"penaltyWorkers"                                             split_words:"true"`
	Scheduler        bool   `yaml:"scheduler"`
	Tracing          bool   `yaml:"tracing"`
	TracingStdout    bool   `yaml:"tracingStdout"                                              split_words:"true"`
}

func defaultConfig() *Config {
	return &Config{
		EntityPlugin:     DefaultEntityPlugin,
		BlobPlugin:       DefaultBlobPlugin,
		DatabasePath:     ".stokvel",
		BindAddr:         "0.0.0.0",
		MetricsPort:      12799,
		ShutdownTimeout:  DefaultShutdownTimeout,
		PenaltySchedule:  DefaultPenaltySchedule,
		ScheduleTimezone: "UTC",
		LatePenalty:      DefaultLatePenalty,
		MissedPenalty:    DefaultMissedPenalty,
		RetryBackoff:     DefaultRetryBackoff,
		MaxAttempts:      5,
		PenaltyWorkers:   4,
		Scheduler:        true,
	}
}

// Validate checks values that are stored as strings
func (c *Config) Validate() error {
	if _, err := c.ShutdownTimeoutDuration(); err != nil {
		return err
	}
	if _, err := c.RetryBackoffDuration(); err != nil {
		return err
	}
	if _, err := c.ScheduleLocation(); err != nil {
		return err
	}
	late, err := c.LatePenaltyAmount()
	if err != nil {
		return err
	}
	missed, err := c.MissedPenaltyAmount()
	if err != nil {
		return err
	}
	if !late.LessThan(missed) {
		return fmt.Errorf(
			"invalid penalties: late penalty %s must be less than missed penalty %s",
			late,
			missed,
		)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("invalid maxAttempts: %d", c.MaxAttempts)
	}
	if c.PenaltyWorkers < 0 {
		return fmt.Errorf("invalid penaltyWorkers: %d", c.PenaltyWorkers)
	}
	return nil
}

func (c *Config) ShutdownTimeoutDuration() (time.Duration, error) {
	if c.ShutdownTimeout == "" {
		return 0, nil
	}
	ret, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdown timeout: %w", err)
	}
	return ret, nil
}

func (c *Config) RetryBackoffDuration() (time.Duration, error) {
	if c.RetryBackoff == "" {
		return 0, nil
	}
	ret, err := time.ParseDuration(c.RetryBackoff)
	if err != nil {
		return 0, fmt.Errorf("invalid retry backoff: %w", err)
	}
	return ret, nil
}

func (c *Config) ScheduleLocation() (*time.Location, error) {
	if c.ScheduleTimezone == "" {
		return time.UTC, nil
	}
	ret, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone: %w", err)
	}
	return ret, nil
}

// LatePenaltyAmount parses the late penalty. An empty value means the
// default; "0" disables the penalty.
func (c *Config) LatePenaltyAmount() (decimal.Decimal, error) {
	return parsePenalty("late", c.LatePenalty, DefaultLatePenalty)
}

func (c *Config) MissedPenaltyAmount() (decimal.Decimal, error) {
	return parsePenalty("missed", c.MissedPenalty, DefaultMissedPenalty)
}

func parsePenalty(name string, val string, def string) (decimal.Decimal, error) {
	if val == "" {
		val = def
	}
	ret, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s penalty %q: %w", name, val, err)
	}
	if ret.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s penalty %q: negative", name, val)
	}
	return ret, nil
}

// findConfigFile returns the first of ~/.stokvel/stokvel.yaml and
// /etc/stokvel/stokvel.yaml that exists
func findConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".stokvel", "stokvel.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/stokvel/stokvel.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

// LoadConfig builds the configuration from defaults, the config file (if
// any) and the environment, in that order. Plugin options found in the
// file and the environment are applied to the plugin registry.
func LoadConfig(configFile string) (*Config, error) {
	cfg := defaultConfig()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := loadConfigFile(configFile, cfg); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	if err := envconfig.Process("stokvel", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	// Process plugin environment variables
	if err := plugin.ProcessEnvVars(); err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(configFile string, cfg *Config) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	// If config section exists, use it for main config
	if tempCfg.Config != nil {
		// Overlay config values onto existing defaults
		configBytes, err := yaml.Marshal(tempCfg.Config)
		if err != nil {
			return fmt.Errorf("error re-marshalling config: %w", err)
		}
		if err := yaml.Unmarshal(configBytes, cfg); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		// Otherwise unmarshal the whole file as main config
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process plugin configurations
	pluginConfig := make(map[string]map[string]map[string]any)
	if tempCfg.Entity != nil {
		pluginConfig["entity"] = tempCfg.Entity
	}
	if tempCfg.Blob != nil {
		pluginConfig["blob"] = tempCfg.Blob
	}
	// Handle database section if present
	if tempCfg.Database != nil {
		if tempCfg.Database.Entity != nil {
			name, entityConfig := splitPluginSection("entity", tempCfg.Database.Entity)
			if name != "" {
				cfg.EntityPlugin = name
			}
			mergePluginConfig(pluginConfig, "entity", entityConfig)
		}
		if tempCfg.Database.Blob != nil {
			name, blobConfig := splitPluginSection("blob", tempCfg.Database.Blob)
			if name != "" {
				cfg.BlobPlugin = name
			}
			mergePluginConfig(pluginConfig, "blob", blobConfig)
		}
	}
	if len(pluginConfig) > 0 {
		if err := plugin.ProcessConfig(pluginConfig); err != nil {
			return fmt.Errorf(
				"error processing plugin config: %w",
				err,
			)
		}
	}
	return nil
}

// splitPluginSection separates the "plugin" selector of a database section
// from the per-plugin option maps
func splitPluginSection(
	sectionName string,
	section map[string]any,
) (string, map[string]map[string]any) {
	var pluginName string
	ret := make(map[string]map[string]any)
	for k, v := range section {
		if k == "plugin" {
			if name, ok := v.(string); ok {
				pluginName = name
			}
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			ret[k] = val
		case map[any]any:
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			ret[k] = stringAnyMap
		default:
			// Log skipped non-map config entries
			fmt.Fprintf(os.Stderr, "warning: skipping %s config entry %q: expected map, got %T\n", sectionName, k, v)
		}
	}
	return pluginName, ret
}

// mergePluginConfig merges with existing plugin config instead of overwriting
func mergePluginConfig(
	pluginConfig map[string]map[string]map[string]any,
	pluginType string,
	section map[string]map[string]any,
) {
	if pluginConfig[pluginType] == nil {
		pluginConfig[pluginType] = section
		return
	}
	maps.Copy(pluginConfig[pluginType], section)
}
