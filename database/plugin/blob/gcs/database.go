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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/blinklabs-io/stokvel/database/plugin/blob"
	"github.com/blinklabs-io/stokvel/database/types"
)

const defaultTimeout = 60 * time.Second

// BlobStoreGCS stores data in a Google Cloud Storage bucket.
type BlobStoreGCS struct {
	logger          *slog.Logger
	client          *storage.Client
	bucket          *storage.BucketHandle
	bucketName      string
	prefix          string
	credentialsFile string
	endpoint        string
	timeout         time.Duration
}

// New creates a new GCS-backed blob store from a location of the form
// "gs://bucket" or "gs://bucket/prefix"
func New(
	location string,
	logger *slog.Logger,
) (*BlobStoreGCS, error) {
	bucketName, prefix, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(
		WithBucket(bucketName),
		WithPrefix(prefix),
		WithLogger(logger),
	)
}

// ParseLocation splits a "gs://bucket[/prefix]" location into its bucket
// and object prefix
func ParseLocation(location string) (string, string, error) {
	path, ok := strings.CutPrefix(location, "gs://")
	if !ok {
		return "", "", errors.New(
			"gcs blob: expected location='gs://<bucket>[/prefix]'",
		)
	}
	bucketName, prefix, _ := strings.Cut(path, "/")
	if bucketName == "" {
		return "", "", errors.New("gcs blob: bucket not set")
	}
	return bucketName, normalizePrefix(prefix), nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// NewWithOptions creates a new GCS-backed blob store using options.
func NewWithOptions(opts ...BlobStoreGCSOptionFunc) (*BlobStoreGCS, error) {
	db := &BlobStoreGCS{}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = blob.PluginLogger(nil, "gcs")
	}
	if db.timeout == 0 {
		db.timeout = defaultTimeout
	}
	db.prefix = normalizePrefix(db.prefix)
	return db, nil
}

// validateCredentials checks that a configured credentials file exists
func validateCredentials(credentialsFile string) error {
	if credentialsFile == "" {
		return nil
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf(
				"GCS credentials file does not exist: %s",
				credentialsFile,
			)
		}
		return fmt.Errorf("failed to read GCS credentials file: %w", err)
	}
	return nil
}

// Start implements the plugin.Plugin interface.
func (d *BlobStoreGCS) Start() error {
	if d.bucketName == "" {
		return errors.New("gcs blob: bucket not set")
	}
	if err := validateCredentials(d.credentialsFile); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var client *storage.Client
	var err error
	if d.endpoint != "" {
		// Emulators speak the JSON API without authentication
		client, err = storage.NewClient(
			ctx,
			option.WithEndpoint(d.endpoint),
			option.WithoutAuthentication(),
		)
	} else {
		clientOpts := []option.ClientOption{
			storage.WithDisabledClientMetrics(),
		}
		if d.credentialsFile != "" {
			clientOpts = append(
				clientOpts,
				option.WithCredentialsFile(d.credentialsFile),
			)
		}
		client, err = storage.NewGRPCClient(ctx, clientOpts...)
	}
	if err != nil {
		return fmt.Errorf(
			"gcs blob: failed in creating storage client: %w",
			err,
		)
	}
	d.client = client
	d.bucket = client.Bucket(d.bucketName)
	d.logger.Info("receipt store ready", "bucket", d.bucketName, "prefix", d.prefix)
	return nil
}

// Stop implements the plugin.Plugin interface.
func (d *BlobStoreGCS) Stop() error {
	return d.Close()
}

// Close closes the GCS client.
func (d *BlobStoreGCS) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	d.bucket = nil
	return err
}

func (d *BlobStoreGCS) fullKey(key string) string {
	return d.prefix + key
}

// Ref returns the reference recorded for key
func (d *BlobStoreGCS) Ref(key string) string {
	return "gs://" + d.bucketName + "/" + d.fullKey(key)
}

// KeyFromRef strips the bucket and configured prefix from a gs:// reference
func (d *BlobStoreGCS) KeyFromRef(ref string) (string, error) {
	full, ok := strings.CutPrefix(ref, "gs://"+d.bucketName+"/")
	if ok {
		if key, ok := strings.CutPrefix(full, d.prefix); ok && key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: gcs reference %q", types.ErrInvalidKey, ref)
}

// Put writes data to key and returns its gs:// reference
func (d *BlobStoreGCS) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) (string, error) {
	if err := blob.ValidateKey(key); err != nil {
		return "", err
	}
	if d.bucket == nil {
		return "", types.ErrBlobStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	w := d.bucket.Object(d.fullKey(key)).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		d.logger.Error("put failed", "key", key, "error", err)
		return "", err
	}
	if err := w.Close(); err != nil {
		d.logger.Error("put failed", "key", key, "error", err)
		return "", err
	}
	d.logger.Debug("put", "key", key, "bytes", len(data))
	return d.Ref(key), nil
}

// Get reads the object at key
func (d *BlobStoreGCS) Get(ctx context.Context, key string) ([]byte, error) {
	if err := blob.ValidateKey(key); err != nil {
		return nil, err
	}
	if d.bucket == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	r, err := d.bucket.Object(d.fullKey(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, types.ErrBlobKeyNotFound
		}
		d.logger.Error("get failed", "key", key, "error", err)
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		d.logger.Error("read failed", "key", key, "error", err)
		return nil, err
	}
	return data, nil
}
