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

// GetLedgerCursor returns the cursor for a contract, or nil if none is stored
func (s *Store) GetLedgerCursor(
	contract string,
	txn *gorm.DB,
) (*models.LedgerCursor, error) {
	ret := &models.LedgerCursor{}
	result := s.conn(txn).First(ret, "contract = ?", contract)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return ret, nil
}

// SetLedgerCursor stores the last processed block for a contract
func (s *Store) SetLedgerCursor(
	contract string,
	blockNumber uint64,
	txn *gorm.DB,
) error {
	tmpItem := models.LedgerCursor{
		Contract:    contract,
		BlockNumber: blockNumber,
	}
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "contract"}},
		DoUpdates: clause.AssignmentColumns([]string{"block_number", "updated_at"}),
	}
	result := s.conn(txn).Clauses(onConflict).Create(&tmpItem)
	return result.Error
}
