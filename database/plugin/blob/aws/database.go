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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/blinklabs-io/stokvel/database/plugin/blob"
	"github.com/blinklabs-io/stokvel/database/types"
)

const defaultTimeout = 60 * time.Second

// BlobStoreS3 stores data in an AWS S3 bucket
type BlobStoreS3 struct {
	logger   *slog.Logger
	client   *s3.Client
	endpoint string
	bucket   string
	prefix   string
	region   string
	timeout  time.Duration
}

// New creates a new S3-backed blob store from a location of the form
// "s3://bucket" or "s3://bucket/prefix"
func New(
	location string,
	logger *slog.Logger,
) (*BlobStoreS3, error) {
	bucket, keyPrefix, err := ParseLocation(location)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(
		WithBucket(bucket),
		WithPrefix(keyPrefix),
		WithLogger(logger),
	)
}

// ParseLocation splits an "s3://bucket[/prefix]" location into its bucket
// and key prefix
func ParseLocation(location string) (string, string, error) {
	path, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", errors.New(
			"s3 blob: expected location='s3://<bucket>[/prefix]'",
		)
	}
	bucket, keyPrefix, _ := strings.Cut(path, "/")
	if bucket == "" {
		return "", "", errors.New("s3 blob: invalid S3 path (missing bucket)")
	}
	return bucket, normalizePrefix(keyPrefix), nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// NewWithOptions creates a new S3-backed blob store using options.
func NewWithOptions(opts ...BlobStoreS3OptionFunc) (*BlobStoreS3, error) {
	db := &BlobStoreS3{}
	for _, opt := range opts {
		opt(db)
	}
	if db.logger == nil {
		db.logger = blob.PluginLogger(nil, "s3")
	}
	if db.timeout == 0 {
		db.timeout = defaultTimeout
	}
	db.prefix = normalizePrefix(db.prefix)
	// AWS config loading happens in Start()
	return db, nil
}

func (d *BlobStoreS3) opContext(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.timeout)
}

// Start implements the plugin.Plugin interface.
func (d *BlobStoreS3) Start() error {
	if d.bucket == "" {
		return errors.New("s3 blob: bucket not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("s3 blob: load default AWS config: %w", err)
	}
	// Override region if specified
	if d.region != "" {
		awsCfg.Region = d.region
	}
	d.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, LocalStack) generally need path-style
		// addressing
		if d.endpoint != "" {
			o.BaseEndpoint = aws.String(d.endpoint)
			o.UsePathStyle = true
		}
	})
	d.logger.Info("receipt store ready", "bucket", d.bucket, "prefix", d.prefix)
	return nil
}

// Stop implements the plugin.Plugin interface.
func (d *BlobStoreS3) Stop() error {
	return d.Close()
}

// Close implements the BlobStore interface. The S3 client holds no resources
// that need releasing.
func (d *BlobStoreS3) Close() error {
	return nil
}

// Returns the S3 key with the configured prefix.
func (d *BlobStoreS3) fullKey(key string) string {
	return d.prefix + key
}

// Ref returns the reference recorded for key
func (d *BlobStoreS3) Ref(key string) string {
	return "s3://" + d.bucket + "/" + d.fullKey(key)
}

// KeyFromRef strips the bucket and configured prefix from an s3:// reference
func (d *BlobStoreS3) KeyFromRef(ref string) (string, error) {
	full, ok := strings.CutPrefix(ref, "s3://"+d.bucket+"/")
	if ok {
		if key, ok := strings.CutPrefix(full, d.prefix); ok && key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: s3 reference %q", types.ErrInvalidKey, ref)
}

// Put writes data to key and returns its s3:// reference
func (d *BlobStoreS3) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) (string, error) {
	if err := blob.ValidateKey(key); err != nil {
		return "", err
	}
	if d.client == nil {
		return "", types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	input := &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.fullKey(key)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := d.client.PutObject(ctx, input); err != nil {
		d.logger.Error("put failed", "key", key, "error", err)
		return "", err
	}
	d.logger.Debug("put", "key", key, "bytes", len(data))
	return d.Ref(key), nil
}

// Get reads the object at key
func (d *BlobStoreS3) Get(ctx context.Context, key string) ([]byte, error) {
	if err := blob.ValidateKey(key); err != nil {
		return nil, err
	}
	if d.client == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	ctx, cancel := d.opContext(ctx)
	defer cancel()
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.fullKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, types.ErrBlobKeyNotFound
		}
		d.logger.Error("get failed", "key", key, "error", err)
		return nil, err
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		d.logger.Error("read failed", "key", key, "error", err)
		return nil, err
	}
	d.logger.Debug("get", "key", key, "bytes", len(data))
	return data, nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
		return true
	}
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
