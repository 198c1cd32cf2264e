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

const (
	RecordedByOwner    = "owner"
	RecordedByOperator = "operator"
	RecordedByWatcher  = "watcher"
)

// Withdrawal records a confirmed ledger transfer out of a campaign
type Withdrawal struct {
	CreatedAt    time.Time
	Amount       types.Amount
	TxHash       string `gorm:"uniqueIndex;size:66;not null"`
	Recipient    string `gorm:"size:42"`
	RecordedBy   string `gorm:"size:16;not null"`
	ID           uint   `gorm:"primarykey"`
	CampaignID   uint64 `gorm:"index;not null"`
	MilestoneIdx uint8  `gorm:"not null"`
}

func (Withdrawal) TableName() string {
	return "withdrawal"
}
