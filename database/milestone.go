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
	"math/big"
	"time"

	"github.com/blinklabs-io/almoner/campaign"
	"github.com/blinklabs-io/almoner/database/models"
)

// AddMilestones materializes a withdrawal schedule. Existing rows are kept
func (d *Database) AddMilestones(
	campaignID uint64,
	schedule []campaign.MilestoneSpec,
	txn *Txn,
) error {
	tmpItems := make([]models.Milestone, 0, len(schedule))
	for _, item := range schedule {
		tmpItems = append(
			tmpItems,
			models.Milestone{
				CampaignID:  campaignID,
				Idx:         item.Idx,
				Title:       item.Title,
				Description: item.Description,
				Percentage:  item.Percentage,
			},
		)
	}
	return d.metadata.AddMilestones(tmpItems, txn.Metadata())
}

// GetMilestones returns the milestones of a campaign ordered by index
func (d *Database) GetMilestones(
	campaignID uint64,
	txn *Txn,
) ([]models.Milestone, error) {
	return d.metadata.GetMilestones(campaignID, txn.Metadata())
}

// GetMilestone returns a single milestone
func (d *Database) GetMilestone(
	campaignID uint64,
	idx uint8,
	txn *Txn,
) (*models.Milestone, error) {
	ret, err := d.metadata.GetMilestone(campaignID, idx, txn.Metadata())
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, campaign.ErrMilestoneNotFound
	}
	return ret, nil
}

// FixMilestoneAmounts computes each milestone amount from the final balance.
// Amounts that were already fixed are never recomputed.
func (d *Database) FixMilestoneAmounts(
	campaignID uint64,
	finalBalance *big.Int,
	txn *Txn,
) error {
	milestones, err := d.metadata.GetMilestones(campaignID, txn.Metadata())
	if err != nil {
		return err
	}
	for _, m := range milestones {
		if m.Amount.Valid() {
			continue
		}
		amount := campaign.MilestoneAmount(finalBalance, m.Percentage)
		if _, err := d.metadata.SetMilestoneAmount(campaignID, m.Idx, amount, txn.Metadata()); err != nil {
			return err
		}
	}
	return nil
}

// LatchMilestoneReleased flips the release latch. It returns true only for the caller that flipped it
func (d *Database) LatchMilestoneReleased(
	campaignID uint64,
	idx uint8,
	txHash string,
	txn *Txn,
) (bool, error) {
	return d.metadata.LatchMilestoneReleased(
		campaignID,
		idx,
		txHash,
		time.Now(),
		txn.Metadata(),
	)
}

// EnsureMilestones materializes the default schedule when a campaign has no
// milestones and fixes amounts from finalBalance when it is not nil
func (d *Database) EnsureMilestones(
	campaignID uint64,
	finalBalance *big.Int,
	txn *Txn,
) ([]models.Milestone, error) {
	milestones, err := d.metadata.GetMilestones(campaignID, txn.Metadata())
	if err != nil {
		return nil, err
	}
	if len(milestones) == 0 {
		if err := d.AddMilestones(campaignID, campaign.DefaultSchedule(), txn); err != nil {
			return nil, err
		}
	}
	if finalBalance != nil {
		if err := d.FixMilestoneAmounts(campaignID, finalBalance, txn); err != nil {
			return nil, err
		}
	}
	return d.metadata.GetMilestones(campaignID, txn.Metadata())
}
