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

package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"slices"

	"github.com/blinklabs-io/almoner/campaign"
	"github.com/blinklabs-io/almoner/database"
	"github.com/blinklabs-io/almoner/database/models"
	"github.com/blinklabs-io/almoner/database/types"
	"github.com/blinklabs-io/almoner/event"
	"github.com/blinklabs-io/almoner/internal/keylock"
	"github.com/blinklabs-io/almoner/ledger"
	"github.com/blinklabs-io/almoner/reconcile"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrAmountExceedsQuote = errors.New("withdrawal amount exceeds milestone amount")
	ErrTxHashConflict     = errors.New("transaction already recorded for another milestone")
	ErrTransferMismatch   = errors.New("ledger transfer does not match the milestone")
	// ErrRetryConfirm is returned when the gate passed but the store write
	// failed. The confirmation can be retried with the same transaction.
	ErrRetryConfirm = errors.New("withdrawal not recorded, retry confirmation")
)

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Database     *database.Database
	Ledger       ledger.Reader
	Reconciler   *reconcile.Reconciler
	EventBus     *event.EventBus
	// Locks must be shared with the reconciler
	Locks     *keylock.KeyLock[uint64]
	Operators []string
}

// Coordinator gates milestone withdrawals and records confirmed ones
type Coordinator struct {
	config    Config
	logger    *slog.Logger
	metrics   *withdrawalMetrics
	operators []string
}

// Quote is the amount a milestone withdrawal may move
type Quote struct {
	Amount       *big.Int
	CampaignID   uint64
	MilestoneIdx uint8
	Percentage   uint8
}

// Confirmation reports a withdrawal transaction submitted by the owner
type Confirmation struct {
	Amount       *big.Int
	TxHash       string
	Caller       string
	CampaignID   uint64
	MilestoneIdx uint8
}

// Receipt describes a recorded withdrawal. Idempotent is set when the
// transaction had already been recorded and nothing changed.
type Receipt struct {
	Withdrawal   models.Withdrawal
	CurrentPhase uint8
	Idempotent   bool
}

type release struct {
	amount       *big.Int
	txHash       string
	recipient    string
	recordedBy   string
	owner        string
	campaignID   uint64
	milestoneIdx uint8
	// ledgerVerified relaxes phase-order and proof checks and the quote limit
	ledgerVerified bool
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Database == nil {
		return nil, errors.New("withdrawal: database is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("withdrawal: ledger reader is required")
	}
	if cfg.Reconciler == nil {
		return nil, errors.New("withdrawal: reconciler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Locks == nil {
		cfg.Locks = keylock.New[uint64]()
	}
	c := &Coordinator{
		config: cfg,
		logger: cfg.Logger.With("component", "withdrawal"),
	}
	for _, op := range cfg.Operators {
		addr, err := campaign.NormalizeAddress(op)
		if err != nil {
			return nil, fmt.Errorf("withdrawal: operator: %w", err)
		}
		c.operators = append(c.operators, addr)
	}
	if cfg.PromRegistry != nil {
		c.metrics = &withdrawalMetrics{}
		c.metrics.init(cfg.PromRegistry)
	}
	return c, nil
}

// IsOperator reports whether addr is a configured operator
func (c *Coordinator) IsOperator(addr string) bool {
	return slices.ContainsFunc(c.operators, func(op string) bool {
		return campaign.SameAddress(op, addr)
	})
}

// Initiate checks that the caller may withdraw a milestone now and returns
// the amount to request from the ledger
func (c *Coordinator) Initiate(
	ctx context.Context,
	campaignID uint64,
	milestoneIdx uint8,
	caller string,
) (Quote, error) {
	state, err := c.config.Reconciler.Refresh(ctx, campaignID)
	if err != nil {
		return Quote{}, err
	}
	if !campaign.SameAddress(state.Campaign.Owner, caller) {
		return Quote{}, c.reject(campaign.ErrNotOwner)
	}
	unlock, err := c.config.Locks.Lock(ctx, campaignID)
	if err != nil {
		return Quote{}, err
	}
	defer unlock()
	camp, m, err := c.load(campaignID, milestoneIdx)
	if err != nil {
		return Quote{}, err
	}
	if err := c.gate(camp, m, false); err != nil {
		return Quote{}, c.reject(err)
	}
	return Quote{
		CampaignID:   campaignID,
		MilestoneIdx: milestoneIdx,
		Percentage:   m.Percentage,
		Amount:       m.Amount.Big(),
	}, nil
}

// MilestoneStatus is a milestone together with its current gate decision
type MilestoneStatus struct {
	Milestone models.Milestone
	// Reason names the unmet precondition when the milestone is not available
	Reason    error
	Available bool
}

// Milestones returns the schedule of a campaign with the release decision
// for each milestone. The default schedule is materialized if none exists.
func (c *Coordinator) Milestones(ctx context.Context, campaignID uint64) ([]MilestoneStatus, error) {
	if _, err := c.config.Reconciler.Refresh(ctx, campaignID); err != nil {
		return nil, err
	}
	unlock, err := c.config.Locks.Lock(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	db := c.config.Database
	camp, err := db.GetCampaign(campaignID, nil)
	if err != nil {
		return nil, err
	}
	var finalBalance *big.Int
	if camp.IsCompleted {
		finalBalance = camp.FinalBalance.Big()
	}
	milestones, err := db.EnsureMilestones(campaignID, finalBalance, nil)
	if err != nil {
		return nil, err
	}
	proofs, err := db.HasProofs(campaignID, nil)
	if err != nil {
		return nil, err
	}
	ret := make([]MilestoneStatus, 0, len(milestones))
	for _, m := range milestones {
		decision := campaign.CanRelease(
			campaign.GateState{
				Status:                 storedStatus(camp),
				CurrentWithdrawalPhase: camp.CurrentWithdrawalPhase,
			},
			campaign.MilestoneState{Idx: m.Idx, Released: m.IsReleased},
			proofs,
		)
		ret = append(ret, MilestoneStatus{
			Milestone: m,
			Available: decision.Allowed,
			Reason:    decision.Reason,
		})
	}
	return ret, nil
}

// Confirm records a withdrawal transaction reported by the campaign owner
func (c *Coordinator) Confirm(ctx context.Context, conf Confirmation) (Receipt, error) {
	caller, err := campaign.NormalizeAddress(conf.Caller)
	if err != nil {
		return Receipt{}, err
	}
	txHash, err := campaign.NormalizeTxHash(conf.TxHash)
	if err != nil {
		return Receipt{}, err
	}
	if conf.Amount == nil || conf.Amount.Sign() <= 0 {
		return Receipt{}, fmt.Errorf("%w: withdrawal amount must be positive", campaign.ErrInvalidAmount)
	}
	if _, err := c.config.Reconciler.Refresh(ctx, conf.CampaignID); err != nil {
		return Receipt{}, err
	}
	return c.release(ctx, release{
		campaignID:   conf.CampaignID,
		milestoneIdx: conf.MilestoneIdx,
		amount:       conf.Amount,
		txHash:       txHash,
		recipient:    caller,
		recordedBy:   models.RecordedByOwner,
		owner:        caller,
	})
}

// MarkReleased records a withdrawal whose store write was lost after the
// ledger transfer succeeded. Only the owner or an operator may call it and
// the transfer is verified against the ledger first.
func (c *Coordinator) MarkReleased(
	ctx context.Context,
	campaignID uint64,
	milestoneIdx uint8,
	txHash string,
	caller string,
) (Receipt, error) {
	txHash, err := campaign.NormalizeTxHash(txHash)
	if err != nil {
		return Receipt{}, err
	}
	camp, err := c.config.Database.GetCampaign(campaignID, nil)
	if err != nil {
		return Receipt{}, err
	}
	recordedBy := models.RecordedByOperator
	switch {
	case c.IsOperator(caller):
	case campaign.SameAddress(camp.Owner, caller):
		recordedBy = models.RecordedByOwner
	default:
		return Receipt{}, c.reject(campaign.ErrNotAuthorized)
	}
	transfer, err := c.verifyTransfer(ctx, txHash)
	if err != nil {
		return Receipt{}, err
	}
	if transfer.Kind != ledger.TransferKindWithdrawal ||
		transfer.CampaignID != campaignID ||
		transfer.MilestoneIdx != milestoneIdx {
		return Receipt{}, c.reject(
			fmt.Errorf(
				"%w: %s is a %s of campaign %d milestone %d",
				ErrTransferMismatch,
				txHash,
				transfer.Kind,
				transfer.CampaignID,
				transfer.MilestoneIdx,
			),
		)
	}
	if _, err := c.config.Reconciler.Refresh(ctx, campaignID); err != nil {
		return Receipt{}, err
	}
	return c.release(ctx, release{
		campaignID:     campaignID,
		milestoneIdx:   milestoneIdx,
		amount:         transfer.Amount,
		txHash:         txHash,
		recipient:      transfer.Account,
		recordedBy:     recordedBy,
		ledgerVerified: true,
	})
}

// ReconcileTransfer records a withdrawal observed on the ledger. Transfers
// that cannot be applied are logged for manual reconciliation and skipped.
func (c *Coordinator) ReconcileTransfer(ctx context.Context, transfer ledger.Transfer) error {
	if transfer.Kind != ledger.TransferKindWithdrawal {
		return nil
	}
	txHash, err := campaign.NormalizeTxHash(transfer.TxHash)
	if err != nil {
		return err
	}
	if _, err := c.config.Reconciler.Refresh(ctx, transfer.CampaignID); err != nil {
		if errors.Is(err, campaign.ErrCampaignNotFound) {
			return fmt.Errorf("%w: campaign %d", campaign.ErrCampaignNotRegistered, transfer.CampaignID)
		}
		return err
	}
	_, err = c.release(ctx, release{
		campaignID:     transfer.CampaignID,
		milestoneIdx:   transfer.MilestoneIdx,
		amount:         transfer.Amount,
		txHash:         txHash,
		recipient:      transfer.Account,
		recordedBy:     models.RecordedByWatcher,
		ledgerVerified: true,
	})
	if err == nil || !isLedgerConflict(err) {
		return err
	}
	c.logger.Error(
		"ledger withdrawal not recorded, manual reconciliation required",
		"campaign_id", transfer.CampaignID,
		"milestone_idx", transfer.MilestoneIdx,
		"tx_hash", txHash,
		"error", err,
	)
	return nil
}

// verifyTransfer looks the transaction up in the ledger log archive first
// and falls back to the ledger
func (c *Coordinator) verifyTransfer(ctx context.Context, txHash string) (*ledger.Transfer, error) {
	raws, err := c.config.Database.LedgerLogs(txHash, nil)
	if err != nil && !errors.Is(err, types.ErrBlobStoreUnavailable) {
		c.logger.Debug(
			"ledger log archive read failed",
			"tx_hash", txHash,
			"error", err,
		)
	}
	for _, raw := range raws {
		transfer, err := ledger.DecodeArchivedLog(raw)
		if err != nil || transfer.Kind != ledger.TransferKindWithdrawal {
			continue
		}
		return transfer, nil
	}
	return c.config.Ledger.LookupTransfer(ctx, txHash)
}

func (c *Coordinator) release(ctx context.Context, rel release) (Receipt, error) {
	unlock, err := c.config.Locks.Lock(ctx, rel.campaignID)
	if err != nil {
		return Receipt{}, err
	}
	defer unlock()
	db := c.config.Database

	// Ownership is checked before a replayed transaction is reported
	if rel.owner != "" {
		camp, err := db.GetCampaign(rel.campaignID, nil)
		if err != nil {
			return Receipt{}, c.reject(err)
		}
		if !campaign.SameAddress(camp.Owner, rel.owner) {
			return Receipt{}, c.reject(campaign.ErrNotOwner)
		}
	}
	existing, err := db.GetWithdrawalByTxHash(rel.txHash, nil)
	if err == nil {
		return c.existing(rel, existing)
	}
	if !errors.Is(err, database.ErrWithdrawalNotFound) {
		return Receipt{}, err
	}
	camp, m, err := c.load(rel.campaignID, rel.milestoneIdx)
	if err != nil {
		return Receipt{}, c.reject(err)
	}
	if rel.ledgerVerified && !camp.IsCompleted {
		// The ledger only releases funds of a completed campaign
		if _, err := c.config.Reconciler.CompleteFromWithdrawal(ctx, rel.campaignID, rel.amount); err != nil {
			return Receipt{}, err
		}
		camp, m, err = c.load(rel.campaignID, rel.milestoneIdx)
		if err != nil {
			return Receipt{}, c.reject(err)
		}
	}
	if err := c.gate(camp, m, rel.ledgerVerified); err != nil {
		return Receipt{}, c.reject(err)
	}
	quote := m.Amount.Big()
	if rel.amount.Cmp(quote) > 0 {
		if !rel.ledgerVerified {
			return Receipt{}, c.reject(
				fmt.Errorf("%w: %s > %s", ErrAmountExceedsQuote, rel.amount.String(), quote.String()),
			)
		}
		c.logger.Warn(
			"ledger withdrawal exceeds milestone amount",
			"campaign_id", rel.campaignID,
			"milestone_idx", rel.milestoneIdx,
			"amount", rel.amount.String(),
			"milestone_amount", quote.String(),
		)
	}
	ret := Receipt{
		Withdrawal: models.Withdrawal{
			CampaignID:   rel.campaignID,
			MilestoneIdx: rel.milestoneIdx,
			Amount:       types.NewAmount(rel.amount),
			TxHash:       rel.txHash,
			Recipient:    rel.recipient,
			RecordedBy:   rel.recordedBy,
		},
		CurrentPhase: max(camp.CurrentWithdrawalPhase, rel.milestoneIdx),
	}
	err = db.Update(ctx, func(txn *database.Txn) error {
		if err := db.AddWithdrawal(&ret.Withdrawal, txn); err != nil {
			return err
		}
		latched, err := db.LatchMilestoneReleased(rel.campaignID, rel.milestoneIdx, rel.txHash, txn)
		if err != nil {
			return err
		}
		if !latched {
			return campaign.ErrMilestoneAlreadyReleased
		}
		if _, err := db.AdvanceWithdrawalPhase(rel.campaignID, rel.milestoneIdx, txn); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, campaign.ErrMilestoneAlreadyReleased) {
			return Receipt{}, c.reject(err)
		}
		if errors.Is(err, database.ErrWithdrawalExists) {
			// Recorded by another process between the lookup and the insert
			if existing, lookupErr := db.GetWithdrawalByTxHash(rel.txHash, nil); lookupErr == nil {
				return c.existing(rel, existing)
			}
		}
		c.logger.Error(
			"failed to record withdrawal",
			"campaign_id", rel.campaignID,
			"milestone_idx", rel.milestoneIdx,
			"tx_hash", rel.txHash,
			"error", err,
		)
		return Receipt{}, fmt.Errorf("%w: %w", ErrRetryConfirm, err)
	}
	if c.metrics != nil {
		c.metrics.confirmed.WithLabelValues(rel.recordedBy).Inc()
	}
	c.logger.Info(
		"withdrawal recorded",
		"campaign_id", rel.campaignID,
		"milestone_idx", rel.milestoneIdx,
		"amount", rel.amount.String(),
		"tx_hash", rel.txHash,
		"recorded_by", rel.recordedBy,
	)
	c.publishRelease(ret, m)
	return ret, nil
}

// existing resolves a confirmation for an already recorded transaction
func (c *Coordinator) existing(rel release, w *models.Withdrawal) (Receipt, error) {
	if w.CampaignID != rel.campaignID || w.MilestoneIdx != rel.milestoneIdx {
		return Receipt{}, c.reject(
			fmt.Errorf(
				"%w: %s recorded for campaign %d milestone %d",
				ErrTxHashConflict,
				rel.txHash,
				w.CampaignID,
				w.MilestoneIdx,
			),
		)
	}
	camp, err := c.config.Database.GetCampaign(rel.campaignID, nil)
	if err != nil {
		return Receipt{}, err
	}
	if c.metrics != nil {
		c.metrics.idempotent.Inc()
	}
	return Receipt{
		Withdrawal:   *w,
		CurrentPhase: camp.CurrentWithdrawalPhase,
		Idempotent:   true,
	}, nil
}

// load reads the stored campaign and materializes its milestones. The
// campaign lock must be held.
func (c *Coordinator) load(campaignID uint64, milestoneIdx uint8) (*models.Campaign, *models.Milestone, error) {
	db := c.config.Database
	camp, err := db.GetCampaign(campaignID, nil)
	if err != nil {
		return nil, nil, err
	}
	var finalBalance *big.Int
	if camp.IsCompleted {
		finalBalance = camp.FinalBalance.Big()
	}
	milestones, err := db.EnsureMilestones(campaignID, finalBalance, nil)
	if err != nil {
		return nil, nil, err
	}
	for i := range milestones {
		if milestones[i].Idx == milestoneIdx {
			return camp, &milestones[i], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: campaign %d milestone %d", campaign.ErrMilestoneNotFound, campaignID, milestoneIdx)
}

// gate evaluates the release rules. Ledger-verified releases only enforce
// completion and the release latch.
func (c *Coordinator) gate(camp *models.Campaign, m *models.Milestone, ledgerVerified bool) error {
	proofs, err := c.config.Database.HasProofs(camp.CampaignID, nil)
	if err != nil {
		return err
	}
	decision := campaign.CanRelease(
		campaign.GateState{
			Status:                 storedStatus(camp),
			CurrentWithdrawalPhase: camp.CurrentWithdrawalPhase,
		},
		campaign.MilestoneState{
			Idx:      m.Idx,
			Released: m.IsReleased,
		},
		proofs,
	)
	err = decision.Err()
	if err == nil {
		return nil
	}
	if ledgerVerified && errors.Is(err, campaign.ErrMilestoneNotEligible) {
		c.logger.Warn(
			"recording ledger-verified withdrawal out of order",
			"campaign_id", camp.CampaignID,
			"milestone_idx", m.Idx,
			"reason", err,
		)
		return nil
	}
	return err
}

func (c *Coordinator) publishRelease(r Receipt, m *models.Milestone) {
	if c.config.EventBus == nil {
		return
	}
	w := r.Withdrawal
	c.publish(
		event.WithdrawalEventType,
		event.WithdrawalEvent{
			CampaignID:   w.CampaignID,
			MilestoneIdx: w.MilestoneIdx,
			Amount:       w.Amount.String(),
			TxHash:       w.TxHash,
			RecordedBy:   w.RecordedBy,
			CurrentPhase: r.CurrentPhase,
		},
	)
	c.publish(
		event.MilestoneEventType,
		event.MilestoneEvent{
			CampaignID:   w.CampaignID,
			MilestoneIdx: m.Idx,
			Amount:       m.Amount.String(),
			Released:     true,
		},
	)
	next, err := c.config.Database.GetMilestone(w.CampaignID, m.Idx+1, nil)
	if err != nil {
		return
	}
	proofs, err := c.config.Database.HasProofs(w.CampaignID, nil)
	if err != nil {
		return
	}
	decision := campaign.CanRelease(
		campaign.GateState{
			Status:                 campaign.StatusCompleted,
			CurrentWithdrawalPhase: r.CurrentPhase,
		},
		campaign.MilestoneState{Idx: next.Idx, Released: next.IsReleased},
		proofs,
	)
	c.publish(
		event.MilestoneEventType,
		event.MilestoneEvent{
			CampaignID:   w.CampaignID,
			MilestoneIdx: next.Idx,
			Amount:       next.Amount.String(),
			Released:     next.IsReleased,
			Available:    decision.Allowed,
		},
	)
}

func (c *Coordinator) publish(eventType event.EventType, data any) {
	c.config.EventBus.PublishAsync(eventType, event.NewEvent(eventType, data))
}

func (c *Coordinator) reject(err error) error {
	if c.metrics != nil {
		c.metrics.rejected.WithLabelValues(rejectReason(err)).Inc()
	}
	c.logger.Debug(
		"withdrawal rejected",
		"error", err,
	)
	return err
}

// isLedgerConflict reports whether err means the ledger and the store
// disagree in a way that retrying cannot fix
func isLedgerConflict(err error) bool {
	return errors.Is(err, campaign.ErrMilestoneAlreadyReleased) ||
		errors.Is(err, campaign.ErrMilestoneNotFound) ||
		errors.Is(err, ErrTxHashConflict)
}

func storedStatus(c *models.Campaign) campaign.Status {
	switch {
	case c.IsCompleted:
		return campaign.StatusCompleted
	case !c.IsExist:
		return campaign.StatusClosed
	default:
		return campaign.StatusActive
	}
}
