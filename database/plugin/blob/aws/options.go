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
	"log/slog"
	"time"

	"github.com/blinklabs-io/stokvel/database/plugin/blob"
)

type BlobStoreS3OptionFunc func(*BlobStoreS3)

// WithLogger routes plugin logs through logger
func WithLogger(logger *slog.Logger) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.SetLogger(logger)
	}
}

// WithBucket names the bucket that holds receipts
func WithBucket(bucket string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.bucket = bucket
	}
}

// WithPrefix places every receipt key under prefix. Leading and trailing
// slashes are normalized.
func WithPrefix(prefix string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.prefix = prefix
	}
}

// WithRegion overrides the region from the shared AWS config
func WithRegion(region string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.region = region
	}
}

// WithEndpoint targets an S3-compatible service such as MinIO. Path-style
// addressing is used whenever an endpoint is set.
func WithEndpoint(endpoint string) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.endpoint = endpoint
	}
}

// WithTimeout bounds each request and the initial config load
func WithTimeout(timeout time.Duration) BlobStoreS3OptionFunc {
	return func(b *BlobStoreS3) {
		b.timeout = timeout
	}
}

// SetLogger implements plugin.LoggerSetter
func (b *BlobStoreS3) SetLogger(logger *slog.Logger) {
	b.logger = blob.PluginLogger(logger, "s3")
}
