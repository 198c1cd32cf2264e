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
	"context"
	"fmt"
	"strings"

	"github.com/blinklabs-io/almoner/campaign"
	"github.com/blinklabs-io/almoner/database"
	"github.com/blinklabs-io/almoner/database/models"
	"github.com/blinklabs-io/almoner/database/types"
	"github.com/blinklabs-io/almoner/event"
	"github.com/blinklabs-io/almoner/reconcile"
	"github.com/blinklabs-io/almoner/withdrawal"
)

// Registration is the off-chain metadata supplied for a campaign that
// already exists on the ledger. An empty schedule selects the default
// two-phase schedule.
type Registration struct {
	Owner       string
	Title       string
	Description string
	CoverURL    string
	Milestones  []campaign.MilestoneSpec
	CampaignID  uint64
}

// RegisterCampaign stores metadata for a ledger-confirmed campaign. The goal
// is read from the ledger.
func (e *Engine) RegisterCampaign(ctx context.Context, reg Registration) (ret reconcile.State, err error) {
	ctx, span := e.startSpan(ctx, "RegisterCampaign")
	defer func() { endSpan(span, err) }()
	if err := e.ready(); err != nil {
		return reconcile.State{}, err
	}
	owner, err := campaign.NormalizeAddress(reg.Owner)
	if err != nil {
		return reconcile.State{}, err
	}
	if len(reg.Milestones) > 0 {
		if err := campaign.ValidateSchedule(reg.Milestones); err != nil {
			return reconcile.State{}, err
		}
	}
	exists, err := e.ledger.Exists(ctx, reg.CampaignID)
	if err != nil {
		return reconcile.State{}, err
	}
	if !exists {
		return reconcile.State{}, fmt.Errorf(
			"%w: campaign %d does not exist on the ledger",
			ErrCampaignNotFound,
			reg.CampaignID,
		)
	}
	goal, err := e.ledger.Goal(ctx, reg.CampaignID)
	if err != nil {
		return reconcile.State{}, err
	}
	err = e.db.Update(ctx, func(txn *database.Txn) error {
		if err := e.db.AddCampaign(
			&models.Campaign{
				CampaignID:  reg.CampaignID,
				Owner:       owner,
				Goal:        types.NewAmount(goal),
				Title:       reg.Title,
				Description: reg.Description,
				CoverURL:    reg.CoverURL,
				IsExist:     true,
			},
			txn,
		); err != nil {
			return err
		}
		if len(reg.Milestones) > 0 {
			if err := e.db.AddMilestones(reg.CampaignID, reg.Milestones, txn); err != nil {
				return err
			}
		}
		return e.db.EnsureUser(owner, txn)
	})
	if err != nil {
		return reconcile.State{}, err
	}
	e.logger.Info(
		"campaign registered",
		"campaign_id", reg.CampaignID,
		"owner", owner,
		"goal", goal.String(),
		"milestones", len(reg.Milestones),
	)
	return e.reconciler.Refresh(ctx, reg.CampaignID)
}

// Campaign returns the campaign with its lifecycle state refreshed from the ledger
func (e *Engine) Campaign(ctx context.Context, campaignID uint64) (ret reconcile.State, err error) {
	ctx, span := e.startSpan(ctx, "Campaign")
	defer func() { endSpan(span, err) }()
	if err := e.ready(); err != nil {
		return reconcile.State{}, err
	}
	return e.reconciler.Refresh(ctx, campaignID)
}

// ListCampaigns returns stored campaigns without touching the ledger. A
// limit of 0 returns every campaign.
func (e *Engine) ListCampaigns(ctx context.Context, limit int, offset int) ([]models.Campaign, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.db.GetCampaigns(limit, offset, nil)
}

// Milestones returns the withdrawal schedule of a campaign and whether each
// milestone can be withdrawn now
func (e *Engine) Milestones(ctx context.Context, campaignID uint64) (ret []withdrawal.MilestoneStatus, err error) {
	ctx, span := e.startSpan(ctx, "Milestones")
	defer func() { endSpan(span, err) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.coordinator.Milestones(ctx, campaignID)
}

// ReconcileDonation records a ledger-confirmed donation exactly once
func (e *Engine) ReconcileDonation(ctx context.Context, d reconcile.Donation) (ret reconcile.Result, err error) {
	ctx, span := e.startSpan(ctx, "ReconcileDonation")
	defer func() { endSpan(span, err) }()
	if err := e.ready(); err != nil {
		return reconcile.Result{}, err
	}
	return e.reconciler.Reconcile(ctx, d)
}

// InitiateWithdrawal checks that caller may withdraw the milestone now and
// returns the amount to request from the ledger
func (e *Engine) InitiateWithdrawal(
	ctx context.Context,
	campaignID uint64,
	milestoneIdx uint8,
	caller string,
) (ret withdrawal.Quote, err error) {
	ctx, span := e.startSpan(ctx, "InitiateWithdrawal")
	defer func() { endSpan(span, err) }()
	if err := e.ready(); err != nil {
		return withdrawal.Quote{}, err
	}
	return e.coordinator.Initiate(ctx, campaignID, milestoneIdx, caller)
}

// ConfirmWithdrawal records the ledger transaction of a withdrawal. A repeated
// confirmation with the same transaction is a no-op.
func (e *Engine) ConfirmWithdrawal(ctx context.Context, conf withdrawal.Confirmation) (ret withdrawal.Receipt, err error) {
	ctx, span := e.startSpan(ctx, "ConfirmWithdrawal")
	defer func() { endSpan(span, err) }()
	if err := e.ready(); err != nil {
		return withdrawal.Receipt{}, err
	}
	return e.coordinator.Confirm(ctx, conf)
}

// MarkReleased records a withdrawal that happened on the ledger but was never
// confirmed. The transfer is verified against the ledger.
func (e *Engine) MarkReleased(
	ctx context.Context,
	campaignID uint64,
	milestoneIdx uint8,
	txHash string,
	caller string,
) (ret withdrawal.Receipt, err error) {
	ctx, span := e.startSpan(ctx, "MarkReleased")
	defer func() { endSpan(span, err) }()
	if err := e.ready(); err != nil {
		return withdrawal.Receipt{}, err
	}
	return e.coordinator.MarkReleased(ctx, campaignID, milestoneIdx, txHash, caller)
}

// CreateProof stores evidence submitted by the campaign owner
func (e *Engine) CreateProof(
	ctx context.Context,
	campaignID uint64,
	caller string,
	title string,
	content string,
) (ret *models.Proof, err error) {
	ctx, span := e.startSpan(ctx, "CreateProof")
	defer func() { endSpan(span, err) }()
	if err := e.ready(); err != nil {
		return nil, err
	}
	author, err := campaign.NormalizeAddress(caller)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return nil, ErrEmptyProof
	}
	camp, err := e.db.GetCampaign(campaignID, nil)
	if err != nil {
		return nil, err
	}
	if !campaign.SameAddress(camp.Owner, author) {
		return nil, ErrNotOwner
	}
	proof := &models.Proof{
		CampaignID: campaignID,
		Author:     author,
		Title:      title,
		Content:    content,
	}
	err = e.db.Update(ctx, func(txn *database.Txn) error {
		if err := e.db.EnsureUser(author, txn); err != nil {
			return err
		}
		return e.db.AddProof(proof, txn)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info(
		"proof submitted",
		"campaign_id", campaignID,
		"proof_id", proof.ID,
	)
	e.eventBus.PublishAsync(
		event.ProofEventType,
		event.NewEvent(
			event.ProofEventType,
			event.ProofEvent{
				CampaignID: campaignID,
				ProofID:    proof.ID,
				Author:     author,
				Title:      title,
			},
		),
	)
	return proof, nil
}

func (e *Engine) ListProofs(ctx context.Context, campaignID uint64) ([]models.Proof, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.db.GetProofs(campaignID, nil)
}

// ListVotes returns the recorded donations of a campaign, newest first. A
// limit of 0 returns every donation.
func (e *Engine) ListVotes(ctx context.Context, campaignID uint64, limit int, offset int) ([]models.Vote, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.db.GetVotes(campaignID, limit, offset, nil)
}

func (e *Engine) ListWithdrawals(ctx context.Context, campaignID uint64) ([]models.Withdrawal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.db.GetWithdrawals(campaignID, nil)
}

// CreateComment adds a comment to a campaign. Replies may only target a
// top-level comment of the same campaign.
func (e *Engine) CreateComment(
	ctx context.Context,
	campaignID uint64,
	caller string,
	body string,
	parentID *uint,
) (*models.Comment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	author, err := campaign.NormalizeAddress(caller)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyComment
	}
	if _, err := e.db.GetCampaign(campaignID, nil); err != nil {
		return nil, err
	}
	comment := &models.Comment{
		CampaignID: campaignID,
		Author:     author,
		Body:       body,
		ParentID:   parentID,
	}
	err = e.db.Update(ctx, func(txn *database.Txn) error {
		if err := e.db.EnsureUser(author, txn); err != nil {
			return err
		}
		return e.db.AddComment(comment, txn)
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

func (e *Engine) ListComments(ctx context.Context, campaignID uint64) ([]models.Comment, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.db.GetComments(campaignID, nil)
}

// SetDisplayName updates the display name of a user, creating the user if needed
func (e *Engine) SetDisplayName(ctx context.Context, address string, displayName string) error {
	if err := e.ready(); err != nil {
		return err
	}
	addr, err := campaign.NormalizeAddress(address)
	if err != nil {
		return err
	}
	return e.db.Update(ctx, func(txn *database.Txn) error {
		return e.db.SetUserDisplayName(addr, strings.TrimSpace(displayName), txn)
	})
}

func (e *Engine) User(ctx context.Context, address string) (*models.User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	addr, err := campaign.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return e.db.GetUser(addr, nil)
}

// Subscribe delivers events of the given topic to handlerFunc until Unsubscribe is called
func (e *Engine) Subscribe(eventType event.EventType, handlerFunc event.EventHandlerFunc) event.EventSubscriberId {
	return e.eventBus.SubscribeFunc(eventType, handlerFunc)
}

func (e *Engine) Unsubscribe(eventType event.EventType, id event.EventSubscriberId) {
	e.eventBus.Unsubscribe(eventType, id)
}
