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

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/blinklabs-io/almoner/campaign"
	"github.com/blinklabs-io/almoner/database"
	"github.com/blinklabs-io/almoner/database/models"
	"github.com/blinklabs-io/almoner/database/types"
	"github.com/blinklabs-io/almoner/event"
	"github.com/blinklabs-io/almoner/internal/keylock"
	"github.com/blinklabs-io/almoner/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Database     *database.Database
	Ledger       ledger.Reader
	EventBus     *event.EventBus
	Locks        *keylock.KeyLock[uint64]
}

// Reconciler applies ledger-confirmed donations to the campaign store and
// keeps the derived lifecycle state in step with the ledger balance
type Reconciler struct {
	config  Config
	logger  *slog.Logger
	metrics *reconcileMetrics
}

// Donation is a ledger-confirmed transfer into a campaign
type Donation struct {
	Amount      *big.Int
	Donor       string
	TxHash      string
	CampaignID  uint64
	BlockNumber uint64
}

// State is the lifecycle view of a campaign after a refresh. Balance is nil
// when the ledger could not be read for a completed campaign.
type State struct {
	Balance             *big.Int
	EffectiveBalance    *big.Int
	Status              campaign.Status
	Campaign            models.Campaign
	Progress            int
	CompletionTriggered bool
}

type Result struct {
	State
	Duplicate bool
}

type ledgerReading struct {
	balance *big.Int
	exists  bool
	known   bool
}

func New(cfg Config) (*Reconciler, error) {
	if cfg.Database == nil {
		return nil, errors.New("reconcile: database is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("reconcile: ledger reader is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Locks == nil {
		cfg.Locks = keylock.New[uint64]()
	}
	r := &Reconciler{
		config: cfg,
		logger: cfg.Logger.With("component", "reconcile"),
	}
	if cfg.PromRegistry != nil {
		r.metrics = &reconcileMetrics{}
		r.metrics.init(cfg.PromRegistry)
	}
	return r, nil
}

// Reconcile records a donation exactly once. Replaying the same transaction
// returns a Result with Duplicate set and no error.
func (r *Reconciler) Reconcile(ctx context.Context, d Donation) (Result, error) {
	donor, err := campaign.NormalizeAddress(d.Donor)
	if err != nil {
		return Result{}, err
	}
	txHash, err := campaign.NormalizeTxHash(d.TxHash)
	if err != nil {
		return Result{}, err
	}
	if d.Amount == nil || d.Amount.Sign() <= 0 {
		return Result{}, fmt.Errorf("%w: donation amount must be positive", campaign.ErrInvalidAmount)
	}
	unlock, err := r.config.Locks.Lock(ctx, d.CampaignID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	db := r.config.Database
	c, err := db.GetCampaign(d.CampaignID, nil)
	if err != nil {
		if errors.Is(err, campaign.ErrCampaignNotFound) {
			return Result{}, fmt.Errorf("%w: campaign %d", campaign.ErrCampaignNotRegistered, d.CampaignID)
		}
		return Result{}, r.fail(err)
	}
	reading, err := r.readLedger(ctx, c)
	if err != nil {
		return Result{}, r.fail(err)
	}
	var ret Result
	var balanceChanged bool
	err = db.Update(ctx, func(txn *database.Txn) error {
		added, err := db.AddVote(
			&models.Vote{
				CampaignID:  d.CampaignID,
				Voter:       donor,
				Amount:      types.NewAmount(d.Amount),
				TxHash:      txHash,
				BlockNumber: d.BlockNumber,
			},
			txn,
		)
		if err != nil {
			return fmt.Errorf("record vote: %w", err)
		}
		ret.Duplicate = !added
		if added {
			if err := db.IncrementCampaignVoteCount(d.CampaignID, txn); err != nil {
				return fmt.Errorf("increment vote count: %w", err)
			}
			c.VoteCount++
			if err := db.EnsureUser(donor, txn); err != nil {
				return fmt.Errorf("create donor: %w", err)
			}
		}
		ret.State, balanceChanged, err = r.apply(c, reading, txn)
		return err
	})
	if err != nil {
		return Result{}, r.fail(err)
	}
	if r.metrics != nil {
		if ret.Duplicate {
			r.metrics.donations.WithLabelValues("duplicate").Inc()
		} else {
			r.metrics.donations.WithLabelValues("applied").Inc()
		}
	}
	if ret.Duplicate {
		r.logger.Debug(
			"duplicate donation ignored",
			"campaign_id", d.CampaignID,
			"tx_hash", txHash,
		)
	} else {
		r.logger.Info(
			"donation reconciled",
			"campaign_id", d.CampaignID,
			"tx_hash", txHash,
			"amount", d.Amount.String(),
		)
		r.publish(
			event.DonationEventType,
			event.DonationEvent{
				CampaignID:  d.CampaignID,
				Donor:       donor,
				Amount:      d.Amount.String(),
				TxHash:      txHash,
				BlockNumber: d.BlockNumber,
				VoteCount:   c.VoteCount,
			},
		)
	}
	r.publishState(ret.State, balanceChanged || !ret.Duplicate)
	return ret, nil
}

// Refresh re-reads the ledger for a campaign and applies completion and
// closure detection without recording a donation
func (r *Reconciler) Refresh(ctx context.Context, campaignID uint64) (State, error) {
	unlock, err := r.config.Locks.Lock(ctx, campaignID)
	if err != nil {
		return State{}, err
	}
	defer unlock()

	db := r.config.Database
	c, err := db.GetCampaign(campaignID, nil)
	if err != nil {
		return State{}, err
	}
	reading, err := r.readLedger(ctx, c)
	if err != nil {
		return State{}, err
	}
	var state State
	var balanceChanged bool
	err = db.Update(ctx, func(txn *database.Txn) error {
		var err error
		state, balanceChanged, err = r.apply(c, reading, txn)
		return err
	})
	if err != nil {
		return State{}, r.fail(err)
	}
	r.publishState(state, balanceChanged)
	return state, nil
}

// readLedger reads the live balance and liveness flag. Completed campaigns
// do not depend on the ledger, so an outage is tolerated for them.
func (r *Reconciler) readLedger(ctx context.Context, c *models.Campaign) (ledgerReading, error) {
	balance, err := r.config.Ledger.Balance(ctx, c.CampaignID)
	if err == nil {
		var exists bool
		exists, err = r.config.Ledger.Exists(ctx, c.CampaignID)
		if err == nil {
			return ledgerReading{balance: balance, exists: exists, known: true}, nil
		}
	}
	if c.IsCompleted && errors.Is(err, ledger.ErrLedgerUnavailable) {
		r.logger.Debug(
			"ledger unavailable, using stored final balance",
			"campaign_id", c.CampaignID,
			"error", err,
		)
		return ledgerReading{}, nil
	}
	return ledgerReading{}, err
}

// apply resolves the lifecycle state and persists the balance cache, the
// completion latch and closure. The campaign lock must be held.
func (r *Reconciler) apply(
	c *models.Campaign,
	reading ledgerReading,
	txn *database.Txn,
) (State, bool, error) {
	db := r.config.Database
	in := campaign.ResolveInput{
		Balance:      c.LedgerBalance.Big(),
		Goal:         c.Goal.Big(),
		Exists:       c.IsExist,
		Completed:    c.IsCompleted,
		FinalBalance: c.FinalBalance.Big(),
	}
	var balanceChanged bool
	if reading.known {
		in.Balance = reading.balance
		in.Exists = reading.exists
		if !c.LedgerBalance.Valid() || c.LedgerBalance.Cmp(reading.balance) != 0 {
			if err := db.SetCampaignBalance(c.CampaignID, reading.balance, txn); err != nil {
				return State{}, false, fmt.Errorf("update balance: %w", err)
			}
			c.LedgerBalance = types.NewAmount(reading.balance)
			balanceChanged = true
		}
		if c.IsCompleted && reading.balance.Cmp(c.FinalBalance.Big()) < 0 && balanceChanged {
			r.logger.Warn(
				"ledger balance below final balance of completed campaign, manual reconciliation required",
				"campaign_id", c.CampaignID,
				"balance", reading.balance.String(),
				"final_balance", c.FinalBalance.String(),
			)
		}
	}
	if !c.IsCompleted && in.Balance.Cmp(in.Goal) < 0 {
		reached, err := r.donationsReached(c, txn)
		if err != nil {
			return State{}, false, err
		}
		in.Reached = reached
	}
	res := campaign.Resolve(in)
	state := State{
		Status:           res.Status,
		EffectiveBalance: res.EffectiveBalance,
	}
	if reading.known {
		state.Balance = new(big.Int).Set(reading.balance)
	}
	if res.CompletionTriggered {
		if err := r.latch(c, res.EffectiveBalance, &state, txn); err != nil {
			return State{}, false, err
		}
	}
	if res.Status == campaign.StatusClosed && c.IsExist {
		closed, err := db.MarkCampaignClosed(c.CampaignID, txn)
		if err != nil {
			return State{}, false, fmt.Errorf("mark closed: %w", err)
		}
		c.IsExist = false
		if closed && r.metrics != nil {
			r.metrics.closures.Inc()
		}
		r.logger.Info(
			"campaign closed on ledger",
			"campaign_id", c.CampaignID,
		)
	}
	state.Campaign = *c
	state.Progress = campaign.Progress(state.EffectiveBalance, c.Goal.Big())
	return state, balanceChanged, nil
}

// latch sets the completion latch with finalBalance and fixes the milestone
// amounts. When another writer latched first, its final balance wins.
func (r *Reconciler) latch(
	c *models.Campaign,
	finalBalance *big.Int,
	state *State,
	txn *database.Txn,
) error {
	db := r.config.Database
	completedAt := time.Now()
	latched, err := db.LatchCampaignCompleted(c.CampaignID, finalBalance, completedAt, txn)
	if err != nil {
		return fmt.Errorf("latch completion: %w", err)
	}
	if latched {
		c.IsCompleted = true
		c.CompletedAt = &completedAt
		c.FinalBalance = types.NewAmount(finalBalance)
		state.CompletionTriggered = true
	} else {
		stored, err := db.GetCampaign(c.CampaignID, txn)
		if err != nil {
			return err
		}
		stored.LedgerBalance = c.LedgerBalance
		*c = *stored
	}
	state.Status = campaign.StatusCompleted
	state.EffectiveBalance = c.FinalBalance.Big()
	if _, err := db.EnsureMilestones(c.CampaignID, c.FinalBalance.Big(), txn); err != nil {
		return fmt.Errorf("materialize milestones: %w", err)
	}
	if state.CompletionTriggered {
		if r.metrics != nil {
			r.metrics.completions.Inc()
		}
		r.logger.Info(
			"campaign completed",
			"campaign_id", c.CampaignID,
			"final_balance", c.FinalBalance.String(),
		)
	}
	return nil
}

// donationsReached returns the recorded donation total at the first
// donation that met the goal. Withdrawals only follow completion, so this
// is the balance the ledger held when the campaign completed.
func (r *Reconciler) donationsReached(c *models.Campaign, txn *database.Txn) (*big.Int, error) {
	if c.Goal.Big().Sign() <= 0 {
		return nil, nil
	}
	// Newest first
	votes, err := r.config.Database.GetVotes(c.CampaignID, 0, 0, txn)
	if err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}
	amounts := make([]*big.Int, 0, len(votes))
	for i := len(votes) - 1; i >= 0; i-- {
		amounts = append(amounts, votes[i].Amount.Big())
	}
	return campaign.GoalReached(c.Goal.Big(), amounts), nil
}

// CompleteFromWithdrawal latches completion for a campaign whose ledger
// withdrawal was seen before the store saw the campaign complete. The final
// balance is the recorded donation total at the goal, or failing that the
// cached ledger balance plus everything withdrawn so far including
// withdrawn. The campaign lock must be held.
func (r *Reconciler) CompleteFromWithdrawal(
	ctx context.Context,
	campaignID uint64,
	withdrawn *big.Int,
) (State, error) {
	db := r.config.Database
	c, err := db.GetCampaign(campaignID, nil)
	if err != nil {
		return State{}, err
	}
	if c.IsCompleted {
		return State{
			Status:           campaign.StatusCompleted,
			EffectiveBalance: c.FinalBalance.Big(),
			Campaign:         *c,
			Progress:         campaign.Progress(c.FinalBalance.Big(), c.Goal.Big()),
		}, nil
	}
	var state State
	err = db.Update(ctx, func(txn *database.Txn) error {
		finalBalance, err := r.donationsReached(c, txn)
		if err != nil {
			return err
		}
		if finalBalance == nil {
			finalBalance = c.LedgerBalance.Big()
			recorded, err := db.GetWithdrawals(campaignID, txn)
			if err != nil {
				return fmt.Errorf("load withdrawals: %w", err)
			}
			for _, w := range recorded {
				finalBalance.Add(finalBalance, w.Amount.Big())
			}
			if withdrawn != nil {
				finalBalance.Add(finalBalance, withdrawn)
			}
		}
		if err := r.latch(c, finalBalance, &state, txn); err != nil {
			return err
		}
		state.Campaign = *c
		state.Progress = campaign.Progress(state.EffectiveBalance, c.Goal.Big())
		return nil
	})
	if err != nil {
		return State{}, r.fail(err)
	}
	r.logger.Warn(
		"campaign completion inferred from ledger withdrawal",
		"campaign_id", campaignID,
		"final_balance", state.EffectiveBalance.String(),
	)
	r.publishState(state, false)
	return state, nil
}

func (r *Reconciler) publishState(state State, balanceChanged bool) {
	c := state.Campaign
	if balanceChanged || state.CompletionTriggered {
		r.publish(
			event.BalanceEventType,
			event.BalanceEvent{
				CampaignID:       c.CampaignID,
				Balance:          c.LedgerBalance.String(),
				EffectiveBalance: state.EffectiveBalance.String(),
				Goal:             c.Goal.String(),
				Progress:         state.Progress,
				Status:           state.Status.String(),
			},
		)
	}
	if !state.CompletionTriggered {
		return
	}
	completedAt := time.Now()
	if c.CompletedAt != nil {
		completedAt = *c.CompletedAt
	}
	r.publish(
		event.CompletedEventType,
		event.CompletedEvent{
			CampaignID:   c.CampaignID,
			FinalBalance: c.FinalBalance.String(),
			CompletedAt:  completedAt,
		},
	)
	// The first milestone becomes available on completion
	m, err := r.config.Database.GetMilestone(c.CampaignID, 1, nil)
	if err != nil {
		r.logger.Warn(
			"failed to load first milestone",
			"campaign_id", c.CampaignID,
			"error", err,
		)
		return
	}
	r.publish(
		event.MilestoneEventType,
		event.MilestoneEvent{
			CampaignID:   c.CampaignID,
			MilestoneIdx: m.Idx,
			Amount:       m.Amount.String(),
			Released:     m.IsReleased,
			Available:    !m.IsReleased,
		},
	)
}

func (r *Reconciler) publish(eventType event.EventType, data any) {
	if r.config.EventBus == nil {
		return
	}
	r.config.EventBus.PublishAsync(eventType, event.NewEvent(eventType, data))
}

func (r *Reconciler) fail(err error) error {
	if r.metrics != nil {
		r.metrics.failures.Inc()
	}
	r.logger.Warn(
		"reconciliation failed",
		"error", err,
	)
	return err
}
