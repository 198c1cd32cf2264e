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

package database

import (
	"errors"

	"github.com/blinklabs-io/almoner/database/models"
)

var (
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrWithdrawalExists   = errors.New("withdrawal already recorded")
)

// AddWithdrawal records a withdrawal. ErrWithdrawalExists is returned if the
// transaction hash is already recorded.
func (d *Database) AddWithdrawal(
	withdrawal *models.Withdrawal,
	txn *Txn,
) error {
	added, err := d.metadata.AddWithdrawal(withdrawal, txn.Metadata())
	if err != nil {
		return err
	}
	if !added {
		return ErrWithdrawalExists
	}
	return nil
}

func (d *Database) GetWithdrawalByTxHash(
	txHash string,
	txn *Txn,
) (*models.Withdrawal, error) {
	ret, err := d.metadata.GetWithdrawalByTxHash(txHash, txn.Metadata())
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, ErrWithdrawalNotFound
	}
	return ret, nil
}

func (d *Database) GetWithdrawals(
	campaignID uint64,
	txn *Txn,
) ([]models.Withdrawal, error) {
	return d.metadata.GetWithdrawals(campaignID, txn.Metadata())
}
