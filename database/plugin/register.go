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

package plugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeEntity PluginType = 1
	PluginTypeBlob   PluginType = 2
)

// PluginTypeName returns the human readable name of a plugin type
func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeEntity:
		return "entity"
	case PluginTypeBlob:
		return "blob"
	default:
		return "unknown"
	}
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = 1
	PluginOptionTypeBool   PluginOptionType = 2
	PluginOptionTypeInt    PluginOptionType = 3
	PluginOptionTypeUint   PluginOptionType = 4
)

type PluginOption struct {
	DefaultValue any
	Dest         any
	Name         string
	Description  string
	Type         PluginOptionType
}

// StringOption declares a string option written to dest
func StringOption(name string, description string, def string, dest *string) PluginOption {
	*dest = def
	return PluginOption{
		Name:         name,
		Type:         PluginOptionTypeString,
		Description:  description,
		DefaultValue: def,
		Dest:         dest,
	}
}

// UintOption declares an unsigned option written to dest
func UintOption(name string, description string, def uint64, dest *uint64) PluginOption {
	*dest = def
	return PluginOption{
		Name:         name,
		Type:         PluginOptionTypeUint,
		Description:  description,
		DefaultValue: def,
		Dest:         dest,
	}
}

// BoolOption declares a boolean option written to dest
func BoolOption(name string, description string, def bool, dest *bool) PluginOption {
	*dest = def
	return PluginOption{
		Name:         name,
		Type:         PluginOptionTypeBool,
		Description:  description,
		DefaultValue: def,
		Dest:         dest,
	}
}

type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

var pluginEntries []PluginEntry

// Register adds a plugin entry to the registry. Plugins call this from init()
func Register(pluginEntry PluginEntry) {
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registered entries of the given type
func GetPlugins(pluginType PluginType) []PluginEntry {
	ret := []PluginEntry{}
	for _, p := range pluginEntries {
		if p.Type == pluginType {
			ret = append(ret, p)
		}
	}
	return ret
}

// GetPlugin instantiates the named plugin from its current options
func GetPlugin(pluginType PluginType, name string) Plugin {
	for _, p := range pluginEntries {
		if p.Type == pluginType && p.Name == name {
			return p.NewFromOptionsFunc()
		}
	}
	return nil
}

func (o PluginOption) flagName(p PluginEntry) string {
	return strings.Join(
		[]string{PluginTypeName(p.Type), p.Name, o.Name},
		"-",
	)
}

func (o PluginOption) envName(p PluginEntry) string {
	ret := strings.Join(
		[]string{"STOKVEL", PluginTypeName(p.Type), p.Name, o.Name},
		"_",
	)
	return strings.ToUpper(strings.ReplaceAll(ret, "-", "_"))
}

// PopulateCmdlineOptions adds a flag for every option of every registered plugin
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	for _, p := range pluginEntries {
		for _, o := range p.Options {
			name := o.flagName(p)
			desc := fmt.Sprintf("%s (%s plugin)", o.Description, p.Name)
			switch o.Type {
			case PluginOptionTypeString:
				def, _ := o.DefaultValue.(string)
				dest, ok := o.Dest.(*string)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				fs.StringVar(dest, name, def, desc)
			case PluginOptionTypeBool:
				def, _ := o.DefaultValue.(bool)
				dest, ok := o.Dest.(*bool)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				fs.BoolVar(dest, name, def, desc)
			case PluginOptionTypeInt:
				def, _ := o.DefaultValue.(int)
				dest, ok := o.Dest.(*int)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				fs.IntVar(dest, name, def, desc)
			case PluginOptionTypeUint:
				def, _ := o.DefaultValue.(uint64)
				dest, ok := o.Dest.(*uint64)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				fs.Uint64Var(dest, name, def, desc)
			default:
				return fmt.Errorf("unknown plugin option type %d for option %s", o.Type, name)
			}
		}
	}
	return nil
}

// ProcessEnvVars applies STOKVEL_<TYPE>_<PLUGIN>_<OPTION> environment variables
func ProcessEnvVars() error {
	for _, p := range pluginEntries {
		for _, o := range p.Options {
			val, ok := os.LookupEnv(o.envName(p))
			if !ok {
				continue
			}
			parsed, err := o.parseString(val)
			if err != nil {
				return fmt.Errorf("%s: %w", o.envName(p), err)
			}
			if err := o.assign(parsed); err != nil {
				return err
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin options loaded from a config file. The map is
// keyed by plugin type name, then plugin name, then option name.
func ProcessConfig(pluginConfig map[string]map[string]map[string]any) error {
	for _, p := range pluginEntries {
		typeConfig, ok := pluginConfig[PluginTypeName(p.Type)]
		if !ok {
			continue
		}
		options, ok := typeConfig[p.Name]
		if !ok {
			continue
		}
		for _, o := range p.Options {
			val, ok := options[o.Name]
			if !ok {
				continue
			}
			if s, isString := val.(string); isString && o.Type != PluginOptionTypeString {
				parsed, err := o.parseString(s)
				if err != nil {
					return fmt.Errorf("%s: %w", o.flagName(p), err)
				}
				val = parsed
			}
			if err := o.assign(val); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o PluginOption) parseString(val string) (any, error) {
	switch o.Type {
	case PluginOptionTypeString:
		return val, nil
	case PluginOptionTypeBool:
		return strconv.ParseBool(val)
	case PluginOptionTypeInt:
		return strconv.Atoi(val)
	case PluginOptionTypeUint:
		return strconv.ParseUint(val, 10, 64)
	default:
		return nil, fmt.Errorf("unknown plugin option type %d", o.Type)
	}
}
