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

// Vote is a reconciled donation. One row exists per campaign and transaction.
type Vote struct {
	CreatedAt   time.Time
	Amount      types.Amount
	Voter       string `gorm:"index;size:42;not null"`
	TxHash      string `gorm:"uniqueIndex:idx_vote_campaign_tx;size:66;not null"`
	ID          uint   `gorm:"primarykey"`
	CampaignID  uint64 `gorm:"uniqueIndex:idx_vote_campaign_tx;not null"`
	BlockNumber uint64 `gorm:"index"`
}

func (Vote) TableName() string {
	return "vote"
}
