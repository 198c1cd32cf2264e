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
)

func (s *Store) AddProof(proof *models.Proof, txn *gorm.DB) error {
	return s.conn(txn).Create(proof).Error
}

func (s *Store) GetProofs(
	campaignID uint64,
	txn *gorm.DB,
) ([]models.Proof, error) {
	var ret []models.Proof
	result := s.conn(txn).
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) CountProofs(campaignID uint64, txn *gorm.DB) (int64, error) {
	var count int64
	result := s.conn(txn).
		Model(&models.Proof{}).
		Where("campaign_id = ?", campaignID).
		Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}
