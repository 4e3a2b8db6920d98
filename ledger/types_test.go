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

package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierSet(t *testing.T) {
	tiers, err := NewTierSet(100, 50, 100)
	require.NoError(t, err)
	assert.Equal(t, TierSet{50, 100}, tiers)
	assert.Equal(t, "50,100", tiers.String())
	assert.True(t, tiers.Contains(50))
	assert.False(t, tiers.Contains(75))

	_, err = NewTierSet()
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewTierSet(50, 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = NewTierSet(-50)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseTierSet(t *testing.T) {
	tiers, err := ParseTierSet(" 100, 50,,")
	require.NoError(t, err)
	assert.Equal(t, TierSet{50, 100}, tiers)
	_, err = ParseTierSet("fifty")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ParseTierSet("")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPeriodKey(t *testing.T) {
	key := PeriodKey{Tier: 100, Month: 3}
	assert.Equal(t, "100_03", key.String())
	assert.True(t, key.AmountExpected().Equal(decimal.NewFromInt(300)))

	parsed, err := ParsePeriodKey("50_12")
	require.NoError(t, err)
	assert.Equal(t, PeriodKey{Tier: 50, Month: 12}, parsed)

	for _, bad := range []string{"", "100", "100_3", "100_13", "0_01", "x_01", "100_00", "100_+3", "+100_03", "-100_03"} {
		_, err := ParsePeriodKey(bad)
		assert.ErrorIs(t, err, ErrValidation, "input %q", bad)
	}
}

func TestPeriod(t *testing.T) {
	p, err := ParsePeriod("2026-03")
	require.NoError(t, err)
	assert.Equal(t, Period{Year: 2026, Month: time.March}, p)
	assert.Equal(t, "2026-03", p.String())
	assert.Equal(
		t,
		Period{Year: 2026, Month: time.December},
		PeriodOf(time.Date(2026, time.December, 31, 23, 0, 0, 0, time.UTC)),
	)
	_, err = ParsePeriod("2026-3-1")
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, Period{Year: 2026}.Validate(), ErrValidation)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("approved")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s)
	assert.True(t, s.Terminal())
	assert.False(t, StatusPending.Terminal())
	_, err = ParseStatus("Paid")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, validateEmail("thandi@example.com"))
	for _, bad := range []string{"", "thandi", "Thandi <thandi@example.com>", "@example.com"} {
		assert.ErrorIs(t, validateEmail(bad), ErrValidation, "input %q", bad)
	}
	assert.Equal(t, "thandi@example.com", NormalizeEmail("  Thandi@Example.COM "))
}

func TestExpectedTotal(t *testing.T) {
	m := &Member{SelectedTiers: TierSet{50, 100}}
	assert.True(t, m.ExpectedTotal(3).Equal(decimal.NewFromInt(450)))
}
