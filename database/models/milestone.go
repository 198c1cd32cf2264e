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

// Milestone is one phase of a campaign withdrawal schedule. Amount stays
// NULL until the campaign completes and is never recomputed after that.
type Milestone struct {
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ReleasedAt    *time.Time
	Amount        types.Amount
	Title         string `gorm:"size:255"`
	Description   string
	ReleaseTxHash string `gorm:"size:66"`
	ID            uint   `gorm:"primarykey"`
	CampaignID    uint64 `gorm:"uniqueIndex:idx_milestone_campaign_idx;not null"`
	Idx           uint8  `gorm:"uniqueIndex:idx_milestone_campaign_idx;not null"`
	Percentage    uint8  `gorm:"not null"`
	IsReleased    bool   `gorm:"not null;default:false"`
}

func (Milestone) TableName() string {
	return "milestone"
}
