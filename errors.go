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

package almoner

import (
	"errors"

	"github.com/blinklabs-io/almoner/campaign"
	"github.com/blinklabs-io/almoner/database"
	"github.com/blinklabs-io/almoner/ledger"
	"github.com/blinklabs-io/almoner/withdrawal"
)

// Errors returned by the engine API. Gating rejections wrap one of these
// together with the unmet precondition.
var (
	ErrLedgerUnavailable        = ledger.ErrLedgerUnavailable
	ErrTransferNotFound         = ledger.ErrTransferNotFound
	ErrCampaignNotFound         = campaign.ErrCampaignNotFound
	ErrCampaignNotRegistered    = campaign.ErrCampaignNotRegistered
	ErrCampaignNotCompleted     = campaign.ErrCampaignNotCompleted
	ErrCampaignExists           = database.ErrCampaignExists
	ErrNotOwner                 = campaign.ErrNotOwner
	ErrNotAuthorized            = campaign.ErrNotAuthorized
	ErrMilestoneNotFound        = campaign.ErrMilestoneNotFound
	ErrMilestoneAlreadyReleased = campaign.ErrMilestoneAlreadyReleased
	ErrMilestoneNotEligible     = campaign.ErrMilestoneNotEligible
	ErrPreviousPhaseUnreleased  = campaign.ErrPreviousPhaseUnreleased
	ErrProofRequired            = campaign.ErrProofRequired
	ErrInvalidSchedule          = campaign.ErrInvalidSchedule
	ErrAmountExceedsQuote       = withdrawal.ErrAmountExceedsQuote
	ErrTxHashConflict           = withdrawal.ErrTxHashConflict
	ErrRetryConfirm             = withdrawal.ErrRetryConfirm

	ErrEmptyComment = errors.New("comment body is empty")
	ErrEmptyProof   = errors.New("proof title and content are required")
)
