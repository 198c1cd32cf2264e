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
)

func (s *Store) AddComment(comment *models.Comment, txn *gorm.DB) error {
	return s.conn(txn).Create(comment).Error
}

// GetComment returns a comment by ID, or nil if not found
func (s *Store) GetComment(id uint, txn *gorm.DB) (*models.Comment, error) {
	ret := &models.Comment{}
	result := s.conn(txn).First(ret, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) GetComments(
	campaignID uint64,
	txn *gorm.DB,
) ([]models.Comment, error) {
	var ret []models.Comment
	result := s.conn(txn).
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
