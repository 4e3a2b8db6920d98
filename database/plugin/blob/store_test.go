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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blinklabs-io/stokvel/database/types"
)

func TestValidateKey(t *testing.T) {
	testDefs := []struct {
		key   string
		valid bool
	}{
		{"receipts/abc.pdf", true},
		{"abc", true},
		{"", false},
		{"/receipts/abc", false},
		{"receipts/../secret", false},
		{"receipts/a\x00b", false},
	}
	for _, testDef := range testDefs {
		err := ValidateKey(testDef.key)
		if testDef.valid {
			assert.NoError(t, err, testDef.key)
		} else {
			assert.ErrorIs(t, err, types.ErrInvalidKey, testDef.key)
		}
	}
}
