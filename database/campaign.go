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
	"math/big"
	"time"

	"github.com/blinklabs-io/almoner/campaign"
	"github.com/blinklabs-io/almoner/database/models"
)

var ErrCampaignExists = errors.New("campaign already registered")

// AddCampaign registers campaign metadata
func (d *Database) AddCampaign(
	tmpCampaign *models.Campaign,
	txn *Txn,
) error {
	added, err := d.metadata.AddCampaign(tmpCampaign, txn.Metadata())
	if err != nil {
		return err
	}
	if !added {
		return ErrCampaignExists
	}
	return nil
}

// GetCampaign returns a campaign by ledger ID
func (d *Database) GetCampaign(
	campaignID uint64,
	txn *Txn,
) (*models.Campaign, error) {
	ret, err := d.metadata.GetCampaign(campaignID, txn.Metadata())
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, campaign.ErrCampaignNotFound
	}
	return ret, nil
}

// GetCampaigns returns a page of campaigns. A limit of 0 returns all campaigns
func (d *Database) GetCampaigns(
	limit int,
	offset int,
	txn *Txn,
) ([]models.Campaign, error) {
	return d.metadata.GetCampaigns(limit, offset, txn.Metadata())
}

// SetCampaignBalance updates the cached ledger balance
func (d *Database) SetCampaignBalance(
	campaignID uint64,
	balance *big.Int,
	txn *Txn,
) error {
	return d.metadata.SetCampaignBalance(
		campaignID,
		balance,
		time.Now(),
		txn.Metadata(),
	)
}

// LatchCampaignCompleted flips the completion latch. It returns true only for the caller that flipped it
func (d *Database) LatchCampaignCompleted(
	campaignID uint64,
	finalBalance *big.Int,
	completedAt time.Time,
	txn *Txn,
) (bool, error) {
	return d.metadata.LatchCampaignCompleted(
		campaignID,
		finalBalance,
		completedAt,
		txn.Metadata(),
	)
}

// MarkCampaignClosed records that the ledger no longer tracks the campaign
func (d *Database) MarkCampaignClosed(
	campaignID uint64,
	txn *Txn,
) (bool, error) {
	return d.metadata.MarkCampaignClosed(campaignID, txn.Metadata())
}

func (d *Database) IncrementCampaignVoteCount(
	campaignID uint64,
	txn *Txn,
) error {
	return d.metadata.IncrementCampaignVoteCount(campaignID, txn.Metadata())
}

// AdvanceWithdrawalPhase moves the withdrawal phase forward to idx if it is behind
func (d *Database) AdvanceWithdrawalPhase(
	campaignID uint64,
	idx uint8,
	txn *Txn,
) (bool, error) {
	return d.metadata.AdvanceWithdrawalPhase(campaignID, idx, txn.Metadata())
}
