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

// Member is the stored form of a ledger member. Money values are decimal
// strings.
type Member struct {
	Email               string `cbor:"email"`
	FullName            string `cbor:"fullName"`
	WhatsAppNumber      string `cbor:"whatsApp"`
	SelectedTiers       string `cbor:"tiers"`
	TotalContribution   string `cbor:"total"`
	PenaltyBalance      string `cbor:"penalty"`
	CreatedAt           int64  `cbor:"createdAt"`
	HasPaidCurrentMonth bool   `cbor:"paidMonth"`
}

func (m *Member) Encode() ([]byte, error) {
	return encode(m)
}

func DecodeMember(data []byte) (*Member, error) {
	ret := &Member{}
	if err := decode(data, ret); err != nil {
		return nil, err
	}
	return ret, nil
}
