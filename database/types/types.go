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

package types

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not present in the entity store
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when creating a record whose key is taken
var ErrAlreadyExists = errors.New("record already exists")

// ErrConflict is returned when a write carries a concurrency token that no
// longer matches the stored record
var ErrConflict = errors.New("concurrency token conflict")

// ErrInvalidKey is returned for keys with missing or malformed components
var ErrInvalidKey = errors.New("invalid key")

// ErrBlobKeyNotFound is returned by blob operations when a key is missing
var ErrBlobKeyNotFound = errors.New("blob key not found")

// ErrBlobStoreUnavailable is returned when the blob store cannot be accessed
var ErrBlobStoreUnavailable = errors.New("blob store unavailable")

// ErrNoStoreAvailable is returned when no entity store has been configured
var ErrNoStoreAvailable = errors.New("no store available")

// Record is a single keyed entry in the entity store. Data is opaque to the
// store; Token is the concurrency token of the stored version.
type Record struct {
	Key       Key
	Token     string
	Data      []byte
	UpdatedAt time.Time
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	ret := *r
	if r.Data != nil {
		ret.Data = append([]byte(nil), r.Data...)
	}
	return &ret
}
