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

	"github.com/blinklabs-io/almoner/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddWithdrawal records a withdrawal. It returns false if a withdrawal with
// the same transaction hash already exists.
func (s *Store) AddWithdrawal(
	withdrawal *models.Withdrawal,
	txn *gorm.DB,
) (bool, error) {
	result := s.conn(txn).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(withdrawal)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetWithdrawalByTxHash returns a withdrawal by transaction hash, or nil if not found
func (s *Store) GetWithdrawalByTxHash(
	txHash string,
	txn *gorm.DB,
) (*models.Withdrawal, error) {
	ret := &models.Withdrawal{}
	result := s.conn(txn).First(ret, "tx_hash = ?", txHash)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetWithdrawals returns the withdrawals of a campaign in the order recorded
func (s *Store) GetWithdrawals(
	campaignID uint64,
	txn *gorm.DB,
) ([]models.Withdrawal, error) {
	var ret []models.Withdrawal
	result := s.conn(txn).
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
