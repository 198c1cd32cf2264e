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

// AddCampaign inserts a campaign. It returns false if the campaign already exists
func (s *Store) AddCampaign(
	campaign *models.Campaign,
	txn *gorm.DB,
) (bool, error) {
	result := s.conn(txn).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(campaign)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetCampaign returns a campaign by its ledger ID, or nil if not found
func (s *Store) GetCampaign(
	campaignID uint64,
	txn *gorm.DB,
) (*models.Campaign, error) {
	ret := &models.Campaign{}
	result := s.conn(txn).First(ret, "campaign_id = ?", campaignID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetCampaigns returns campaigns ordered by ledger ID
func (s *Store) GetCampaigns(
	limit int,
	offset int,
	txn *gorm.DB,
) ([]models.Campaign, error) {
	var ret []models.Campaign
	query := s.conn(txn).Order("campaign_id ASC").Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// SetCampaignBalance updates the cached ledger balance
func (s *Store) SetCampaignBalance(
	campaignID uint64,
	balance *big.Int,
	updatedAt time.Time,
	txn *gorm.DB,
) error {
	result := s.conn(txn).
		Model(&models.Campaign{}).
		Where("campaign_id = ?", campaignID).
		Updates(map[string]any{
			"ledger_balance":     types.NewAmount(balance),
			"balance_updated_at": updatedAt,
		})
	return result.Error
}

// LatchCampaignCompleted sets the completion latch and final balance. It
// returns true only for the call that flipped the latch.
func (s *Store) LatchCampaignCompleted(
	campaignID uint64,
	finalBalance *big.Int,
	completedAt time.Time,
	txn *gorm.DB,
) (bool, error) {
	result := s.conn(txn).
		Model(&models.Campaign{}).
		Where("campaign_id = ? AND is_completed = ?", campaignID, false).
		Updates(map[string]any{
			"is_completed":  true,
			"completed_at":  completedAt,
			"final_balance": types.NewAmount(finalBalance),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkCampaignClosed clears the ledger liveness flag of an uncompleted campaign
func (s *Store) MarkCampaignClosed(
	campaignID uint64,
	txn *gorm.DB,
) (bool, error) {
	result := s.conn(txn).
		Model(&models.Campaign{}).
		Where(
			"campaign_id = ? AND is_exist = ? AND is_completed = ?",
			campaignID,
			true,
			false,
		).
		Update("is_exist", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// IncrementCampaignVoteCount adds one to the campaign vote count
func (s *Store) IncrementCampaignVoteCount(
	campaignID uint64,
	txn *gorm.DB,
) error {
	result := s.conn(txn).
		Model(&models.Campaign{}).
		Where("campaign_id = ?", campaignID).
		UpdateColumn("vote_count", gorm.Expr("vote_count + ?", 1))
	return result.Error
}

// AdvanceWithdrawalPhase moves the withdrawal phase forward to idx. The
// phase never moves backwards.
func (s *Store) AdvanceWithdrawalPhase(
	campaignID uint64,
	idx uint8,
	txn *gorm.DB,
) (bool, error) {
	result := s.conn(txn).
		Model(&models.Campaign{}).
		Where(
			"campaign_id = ? AND current_withdrawal_phase < ?",
			campaignID,
			idx,
		).
		Update("current_withdrawal_phase", idx)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
