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

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierEncoding(t *testing.T) {
	assert.Equal(t, "50,100,200", EncodeTiers([]int{200, 50, 100}))
	assert.Equal(t, "", EncodeTiers(nil))

	tiers, err := DecodeTiers("100, 50,,100")
	require.NoError(t, err)
	assert.Equal(t, []int{50, 100}, tiers)

	tiers, err = DecodeTiers("")
	require.NoError(t, err)
	assert.Empty(t, tiers)

	for _, bad := range []string{"abc", "50,-1", "0"} {
		_, err := DecodeTiers(bad)
		assert.ErrorIs(t, err, ErrInvalidTiers, bad)
	}
}

func TestMemberEncodingIsDeterministic(t *testing.T) {
	m := &Member{
		Email:             "thandi@example.com",
		FullName:          "Thandi Nkosi",
		SelectedTiers:     "50,100",
		TotalContribution: "300",
		PenaltyBalance:    "0",
	}
	a, err := m.Encode()
	require.NoError(t, err)
	b, err := m.Encode()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	decoded, err := DecodeMember(a)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := DecodePayment([]byte{0xff, 0x00})
	assert.Error(t, err)
}
