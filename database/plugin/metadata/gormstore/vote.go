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
	"github.com/blinklabs-io/almoner/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddVote records a donation. It returns false if the (campaign, tx) pair
// was already recorded.
func (s *Store) AddVote(
	vote *models.Vote,
	txn *gorm.DB,
) (bool, error) {
	result := s.conn(txn).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(vote)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetVotes returns the votes of a campaign, newest first
func (s *Store) GetVotes(
	campaignID uint64,
	limit int,
	offset int,
	txn *gorm.DB,
) ([]models.Vote, error) {
	var ret []models.Vote
	query := s.conn(txn).
		Where("campaign_id = ?", campaignID).
		Order("id DESC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
