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

package aws

import (
	"sync"

	"github.com/blinklabs-io/stokvel/database/plugin"
)

type s3Options struct {
	bucket   string
	prefix   string
	region   string
	endpoint string
}

var (
	s3Opts      s3Options
	s3OptsMutex sync.RWMutex
)

func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "s3",
			Description:        "AWS S3 receipt store",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				plugin.StringOption("bucket", "Bucket that holds receipts", "", &s3Opts.bucket),
				plugin.StringOption("prefix", "Key prefix inside the bucket", "", &s3Opts.prefix),
				plugin.StringOption("region", "AWS region, defaults to the shared AWS config", "", &s3Opts.region),
				plugin.StringOption("endpoint", "S3-compatible endpoint URL", "", &s3Opts.endpoint),
			},
		},
	)
}

// NewFromCmdlineOptions builds an S3 store. The bucket is checked by Start.
func NewFromCmdlineOptions() plugin.Plugin {
	s3OptsMutex.RLock()
	o := s3Opts
	s3OptsMutex.RUnlock()
	p, err := NewWithOptions(
		WithBucket(o.bucket),
		WithPrefix(o.prefix),
		WithRegion(o.region),
		WithEndpoint(o.endpoint),
	)
	if err != nil {
		return plugin.NewErrorPlugin(err)
	}
	return p
}
