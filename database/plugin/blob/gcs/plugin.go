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

package gcs

import (
	"sync"

	"github.com/blinklabs-io/stokvel/database/plugin"
)

type gcsOptions struct {
	bucket          string
	prefix          string
	credentialsFile string
	endpoint        string
}

var (
	gcsOpts      gcsOptions
	gcsOptsMutex sync.RWMutex
)

func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "gcs",
			Description:        "Google Cloud Storage receipt store",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				plugin.StringOption("bucket", "Bucket that holds receipts", "", &gcsOpts.bucket),
				plugin.StringOption("prefix", "Object name prefix inside the bucket", "", &gcsOpts.prefix),
				plugin.StringOption("credentials-file", "Service account key file", "", &gcsOpts.credentialsFile),
				plugin.StringOption("endpoint", "Storage emulator endpoint", "", &gcsOpts.endpoint),
			},
		},
	)
}

// NewFromCmdlineOptions builds a GCS store. Credentials are checked by Start.
func NewFromCmdlineOptions() plugin.Plugin {
	gcsOptsMutex.RLock()
	o := gcsOpts
	gcsOptsMutex.RUnlock()
	p, err := NewWithOptions(
		WithBucket(o.bucket),
		WithPrefix(o.prefix),
		WithCredentialsFile(o.credentialsFile),
		WithEndpoint(o.endpoint),
	)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}
