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

// Package models holds the serialized shapes of ledger records. Values are
// CBOR-encoded into the entity store's opaque record data.
package models

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// ErrInvalidTiers is returned when a stored tier list cannot be parsed
var ErrInvalidTiers = errors.New("invalid tier list")

var encMode cbor.EncMode

func init() {
	var err error
	// Canonical encoding keeps identical records byte-identical
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encoding mode: %s", err))
	}
}

func encode(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func decode(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

// EncodeTiers renders a tier set as a comma-delimited string, ascending
func EncodeTiers(tiers []int) string {
	sorted := slices.Clone(tiers)
	slices.Sort(sorted)
	parts := make([]string, len(sorted))
	for i, tier := range sorted {
		parts[i] = strconv.Itoa(tier)
	}
	return strings.Join(parts, ",")
}

// DecodeTiers parses a comma-delimited tier string. Blank entries are
// skipped and duplicates collapsed.
func DecodeTiers(val string) ([]int, error) {
	var ret []int
	for part := range strings.SplitSeq(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tier, err := strconv.Atoi(part)
		if err != nil || tier <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTiers, val)
		}
		ret = append(ret, tier)
	}
	slices.Sort(ret)
	return slices.Compact(ret), nil
}
