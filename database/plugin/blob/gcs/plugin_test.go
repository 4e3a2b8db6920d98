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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/stokvel/database/types"
)

func TestCredentialValidation(t *testing.T) {
	// Create temp directory for test files
	tempDir := t.TempDir()

	tests := []struct {
		name            string
		credentialsFile string
		expectError     bool
		errorMessage    string
	}{
		{
			name: "valid credentials file",
			credentialsFile: func() string {
				tempFile, err := os.CreateTemp(tempDir, "credentials-*.json")
				if err != nil {
					t.Fatalf("Failed to create temp file: %v", err)
				}
				tempFile.Close()
				return tempFile.Name()
			}(),
			expectError: false,
		},
		{
			name: "nonexistent credentials file",
			credentialsFile: filepath.Join(
				tempDir,
				"nonexistent-credentials.json",
			),
			expectError:  true,
			errorMessage: "GCS credentials file does not exist",
		},
		{
			name:            "empty credentials file path",
			credentialsFile: "",
			expectError:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCredentials(tt.credentialsFile)
			if tt.expectError {
				if err == nil {
					t.Errorf(
						"Expected error containing %q, but got no error",
						tt.errorMessage,
					)
				} else if !strings.Contains(err.Error(), tt.errorMessage) {
					t.Errorf("Expected error message containing %q, got %q", tt.errorMessage, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error, but got %q", err.Error())
			}
		})
	}
}

func TestParseLocation(t *testing.T) {
	bucket, prefix, err := ParseLocation("gs://club-receipts/2025")
	require.NoError(t, err)
	assert.Equal(t, "club-receipts", bucket)
	assert.Equal(t, "2025/", prefix)

	_, _, err = ParseLocation("gs://")
	assert.Error(t, err)
	_, _, err = ParseLocation("s3://club-receipts")
	assert.Error(t, err)
}

func TestRef(t *testing.T) {
	d, err := New("gs://club-receipts", nil)
	require.NoError(t, err)
	assert.Equal(t, "gs://club-receipts/receipts/abc.png", d.Ref("receipts/abc.png"))
}

func TestKeyFromRef(t *testing.T) {
	d, err := New("gs://club-receipts", nil)
	require.NoError(t, err)
	key, err := d.KeyFromRef("gs://club-receipts/receipts/receipts/x@example.com/50_03_ab")
	require.NoError(t, err)
	assert.Equal(t, "receipts/receipts/x@example.com/50_03_ab", key)
	_, err = d.KeyFromRef("s3://club-receipts/receipts/abc.png")
	assert.ErrorIs(t, err, types.ErrInvalidKey)
}

func TestStartErrors(t *testing.T) {
	d, err := NewWithOptions()
	require.NoError(t, err)
	assert.ErrorContains(t, d.Start(), "bucket not set")

	d, err = NewWithOptions(
		WithBucket("club-receipts"),
		WithCredentialsFile(filepath.Join(t.TempDir(), "missing.json")),
	)
	require.NoError(t, err)
	assert.ErrorContains(t, d.Start(), "does not exist")
}

func TestNotStarted(t *testing.T) {
	d, err := NewWithOptions(WithBucket("club-receipts"))
	require.NoError(t, err)
	_, err = d.Put(context.Background(), "receipts/x", []byte("x"), "")
	assert.ErrorIs(t, err, types.ErrBlobStoreUnavailable)
	assert.NoError(t, d.Close())
}
