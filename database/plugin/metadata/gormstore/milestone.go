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

package gormstore

import (
	"errors"
	"math/big"
	"time"

	"github.com/blinklabs-io/almoner/database/models"
	"github.com/blinklabs-io/almoner/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddMilestones inserts milestone rows, skipping any that already exist
func (s *Store) AddMilestones(
	milestones []models.Milestone,
	txn *gorm.DB,
) error {
	if len(milestones) == 0 {
		return nil
	}
	result := s.conn(txn).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&milestones)
	return result.Error
}

// GetMilestones returns the milestones of a campaign ordered by index
func (s *Store) GetMilestones(
	campaignID uint64,
	txn *gorm.DB,
) ([]models.Milestone, error) {
	var ret []models.Milestone
	result := s.conn(txn).
		Where("campaign_id = ?", campaignID).
		Order("idx ASC").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetMilestone returns a single milestone, or nil if not found
func (s *Store) GetMilestone(
	campaignID uint64,
	idx uint8,
	txn *gorm.DB,
) (*models.Milestone, error) {
	ret := &models.Milestone{}
	result := s.conn(txn).
		First(ret, "campaign_id = ? AND idx = ?", campaignID, idx)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// SetMilestoneAmount fixes the milestone amount. An amount that was already
// set is left untouched and false is returned.
func (s *Store) SetMilestoneAmount(
	campaignID uint64,
	idx uint8,
	amount *big.Int,
	txn *gorm.DB,
) (bool, error) {
	result := s.conn(txn).
		Model(&models.Milestone{}).
		Where(
			"campaign_id = ? AND idx = ? AND amount IS NULL",
			campaignID,
			idx,
		).
		Update("amount", types.NewAmount(amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// LatchMilestoneReleased marks a milestone released. It returns true only
// for the call that flipped the latch.
func (s *Store) LatchMilestoneReleased(
	campaignID uint64,
	idx uint8,
	txHash string,
	releasedAt time.Time,
	txn *gorm.DB,
) (bool, error) {
	result := s.conn(txn).
		Model(&models.Milestone{}).
		Where(
			"campaign_id = ? AND idx = ? AND is_released = ?",
			campaignID,
			idx,
			false,
		).
		Updates(map[string]any{
			"is_released":     true,
			"released_at":     releasedAt,
			"release_tx_hash": txHash,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
