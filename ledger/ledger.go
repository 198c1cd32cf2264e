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
	"context"
	"errors"
	"math/big"
)

var (
	// ErrLedgerUnavailable is returned when the ledger cannot be reached. It
	// never means a zero balance or a missing campaign.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrTransferNotFound  = errors.New("ledger transfer not found")
)

type TransferKind int

const (
	TransferKindDonation TransferKind = iota + 1
	TransferKindWithdrawal
)

func (k TransferKind) String() string {
	switch k {
	case TransferKindDonation:
		return "donation"
	case TransferKindWithdrawal:
		return "withdrawal"
	default:
		return "unknown"
	}
}

// Transfer is a value movement recorded by the ledger contract. Account is
// the donor for donations and the recipient for withdrawals.
type Transfer struct {
	Amount       *big.Int
	Account      string
	TxHash       string
	CampaignID   uint64
	BlockNumber  uint64
	LogIndex     uint
	Kind         TransferKind
	MilestoneIdx uint8
}

// Reader is the read-only view of the ledger
type Reader interface {
	Balance(ctx context.Context, campaignID uint64) (*big.Int, error)
	Exists(ctx context.Context, campaignID uint64) (bool, error)
	Goal(ctx context.Context, campaignID uint64) (*big.Int, error)
	NextCampaignID(ctx context.Context) (uint64, error)
	// LookupTransfer returns the contract transfer recorded by a transaction
	LookupTransfer(ctx context.Context, txHash string) (*Transfer, error)
}
