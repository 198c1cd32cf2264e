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
	"time"

	"github.com/blinklabs-io/almoner/database/types"
)

// Campaign holds the off-chain metadata and latched state of a ledger campaign
type Campaign struct {
	CreatedAt              time.Time
	UpdatedAt              time.Time
	CompletedAt            *time.Time
	BalanceUpdatedAt       *time.Time
	Goal                   types.Amount
	FinalBalance           types.Amount
	LedgerBalance          types.Amount
	Owner                  string `gorm:"index;size:42;not null"`
	Title                  string `gorm:"size:255"`
	Description            string
	CoverURL               string `gorm:"size:1024"`
	ID                     uint   `gorm:"primarykey"`
	CampaignID             uint64 `gorm:"uniqueIndex;not null"`
	VoteCount              uint64 `gorm:"not null;default:0"`
	IsExist                bool   `gorm:"not null;default:true"`
	IsCompleted            bool   `gorm:"index;not null;default:false"`
	CurrentWithdrawalPhase uint8  `gorm:"not null;default:0"`
}

func (Campaign) TableName() string {
	return "campaign"
}
