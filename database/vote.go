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

// AddVote records a donation and returns whether a new row was inserted
func (d *Database) AddVote(vote *models.Vote, txn *Txn) (bool, error) {
	return d.metadata.AddVote(vote, txn.Metadata())
}

// GetVotes returns the votes of a campaign, newest first
func (d *Database) GetVotes(
	campaignID uint64,
	limit int,
	offset int,
	txn *Txn,
) ([]models.Vote, error) {
	return d.metadata.GetVotes(campaignID, limit, offset, txn.Metadata())
}
