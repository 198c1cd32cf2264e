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

package metadata

import (
	"fmt"
	"math/big"
	"time"

	"github.com/blinklabs-io/almoner/database/models"
	"github.com/blinklabs-io/almoner/database/plugin"
	_ "github.com/blinklabs-io/almoner/database/plugin/metadata/mysql"
	_ "github.com/blinklabs-io/almoner/database/plugin/metadata/postgres"
	_ "github.com/blinklabs-io/almoner/database/plugin/metadata/sqlite"
	"gorm.io/gorm"
)

type MetadataStore interface {
	// Database
	Close() error
	DB() *gorm.DB

	// Campaigns
	AddCampaign(*models.Campaign, *gorm.DB) (bool, error)
	GetCampaign(uint64, *gorm.DB) (*models.Campaign, error)
	GetCampaigns(int, int, *gorm.DB) ([]models.Campaign, error)
	SetCampaignBalance(uint64, *big.Int, time.Time, *gorm.DB) error
	LatchCampaignCompleted(uint64, *big.Int, time.Time, *gorm.DB) (bool, error)
	MarkCampaignClosed(uint64, *gorm.DB) (bool, error)
	IncrementCampaignVoteCount(uint64, *gorm.DB) error
	AdvanceWithdrawalPhase(uint64, uint8, *gorm.DB) (bool, error)

	// Milestones
	AddMilestones([]models.Milestone, *gorm.DB) error
	GetMilestones(uint64, *gorm.DB) ([]models.Milestone, error)
	GetMilestone(uint64, uint8, *gorm.DB) (*models.Milestone, error)
	SetMilestoneAmount(uint64, uint8, *big.Int, *gorm.DB) (bool, error)
	LatchMilestoneReleased(uint64, uint8, string, time.Time, *gorm.DB) (bool, error)

	// Withdrawals
	AddWithdrawal(*models.Withdrawal, *gorm.DB) (bool, error)
	GetWithdrawalByTxHash(string, *gorm.DB) (*models.Withdrawal, error)
	GetWithdrawals(uint64, *gorm.DB) ([]models.Withdrawal, error)

	// Votes
	AddVote(*models.Vote, *gorm.DB) (bool, error)
	GetVotes(uint64, int, int, *gorm.DB) ([]models.Vote, error)

	// Proofs
	AddProof(*models.Proof, *gorm.DB) error
	GetProofs(uint64, *gorm.DB) ([]models.Proof, error)
	CountProofs(uint64, *gorm.DB) (int64, error)

	// Comments
	AddComment(*models.Comment, *gorm.DB) error
	GetComment(uint, *gorm.DB) (*models.Comment, error)
	GetComments(uint64, *gorm.DB) ([]models.Comment, error)

	// Users
	EnsureUser(string, *gorm.DB) error
	GetUser(string, *gorm.DB) (*models.User, error)
	SetUserDisplayName(string, string, *gorm.DB) error

	// Ledger cursor
	GetLedgerCursor(string, *gorm.DB) (*models.LedgerCursor, error)
	SetLedgerCursor(string, uint64, *gorm.DB) error
}

// New returns the started metadata plugin selected by name
func New(pluginName string, opts plugin.Options) (MetadataStore, error) {
	p, err := plugin.StartPlugin(plugin.PluginTypeMetadata, pluginName, opts)
	if err != nil {
		return nil, err
	}
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}
	return metadataStore, nil
}
