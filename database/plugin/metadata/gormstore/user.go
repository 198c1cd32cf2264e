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

// EnsureUser creates a user record for the address if one does not exist
func (s *Store) EnsureUser(address string, txn *gorm.DB) error {
	result := s.conn(txn).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.User{Address: address})
	return result.Error
}

// GetUser returns a user by address, or nil if not found
func (s *Store) GetUser(address string, txn *gorm.DB) (*models.User, error) {
	ret := &models.User{}
	result := s.conn(txn).First(ret, "address = ?", address)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) SetUserDisplayName(
	address string,
	displayName string,
	txn *gorm.DB,
) error {
	result := s.conn(txn).
		Model(&models.User{}).
		Where("address = ?", address).
		Update("display_name", displayName)
	return result.Error
}
