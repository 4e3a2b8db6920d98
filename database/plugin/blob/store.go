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

package blob

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/blinklabs-io/stokvel/database/plugin"
	"github.com/blinklabs-io/stokvel/database/types"
)

// BlobStore holds opaque objects such as payment receipts
type BlobStore interface {
	// Put writes data under key, replacing any existing object, and returns
	// a reference that identifies the object in this store
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get returns the object stored under key or types.ErrBlobKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// KeyFromRef reverses Put's reference. It fails with
	// types.ErrInvalidKey for references this store did not produce.
	KeyFromRef(ref string) (string, error)
	Close() error
}

// PluginLogger tags logger with the database component and the plugin name.
// A nil logger discards.
func PluginLogger(logger *slog.Logger, pluginName string) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger.With("component", "database", "plugin", pluginName)
}

// ValidateKey rejects keys that are empty or escape their prefix
func ValidateKey(key string) error {
	if key == "" ||
		strings.HasPrefix(key, "/") ||
		strings.Contains(key, "..") ||
		strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: blob key %q", types.ErrInvalidKey, key)
	}
	return nil
}

// New returns the started blob plugin selected by name
func New(pluginName string, logger *slog.Logger) (BlobStore, error) {
	// Get and start the plugin
	p, err := plugin.StartPlugin(plugin.PluginTypeBlob, pluginName, logger)
	if err != nil {
		return nil, err
	}
	// Type assert to BlobStore interface
	blobStore, ok := p.(BlobStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement BlobStore interface",
			pluginName,
		)
	}
	return blobStore, nil
}
