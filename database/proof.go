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
	"github.com/blinklabs-io/almoner/database/models"
)

func (d *Database) AddProof(proof *models.Proof, txn *Txn) error {
	return d.metadata.AddProof(proof, txn.Metadata())
}

func (d *Database) GetProofs(
	campaignID uint64,
	txn *Txn,
) ([]models.Proof, error) {
	return d.metadata.GetProofs(campaignID, txn.Metadata())
}

// HasProofs reports whether the campaign owner has submitted any proof
func (d *Database) HasProofs(campaignID uint64, txn *Txn) (bool, error) {
	count, err := d.metadata.CountProofs(campaignID, txn.Metadata())
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
