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

// Payment is the stored form of a contribution payment
type Payment struct {
	OwnerEmail     string `cbor:"owner"`
	Status         string `cbor:"status"`
	AmountExpected string `cbor:"amount"`
	ReceiptRef     string `cbor:"receipt"`
	SubmittedAt    int64  `cbor:"submittedAt"`
	DecidedAt      int64  `cbor:"decidedAt,omitempty"`
	TierBase       int    `cbor:"tier"`
	MonthNumber    int    `cbor:"month"`
}

func (p *Payment) Encode() ([]byte, error) {
	return encode(p)
}

func DecodePayment(data []byte) (*Payment, error) {
	ret := &Payment{}
	if err := decode(data, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// PenaltyRun marks a period whose penalty cycle has been started
// PenaltyRun marks a period whose penalty cycle has been started
type PenaltyRun struct {
	Period     string `cbor:"period"`
	Trigger    string `cbor:"trigger"`
	Status     string `cbor:"status"`
	Error      string `cbor:"error,omitempty"`
	StartedAt  int64  `cbor:"startedAt"`
	FinishedAt int64  `cbor:"finishedAt,omitempty"`
}

func (p *PenaltyRun) Encode() ([]byte, error) {
	return encode(p)
}

func DecodePenaltyRun(data []byte) (*PenaltyRun, error) {
	ret := &PenaltyRun{}
	if err := decode(data, ret); err != nil {
		return nil, err
	}
	return ret, nil
}
