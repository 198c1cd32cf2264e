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

package withdrawal_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/almoner/campaign"
	"github.com/blinklabs-io/almoner/database"
	"github.com/blinklabs-io/almoner/database/models"
	"github.com/blinklabs-io/almoner/database/types"
	"github.com/blinklabs-io/almoner/internal/keylock"
	"github.com/blinklabs-io/almoner/ledger"
	"github.com/blinklabs-io/almoner/reconcile"
	"github.com/blinklabs-io/almoner/withdrawal"
)

const (
	testOwner    = "0x52908400098527886E0F7030069857D2E4169EE7"
	testDonor    = "0x1111111111111111111111111111111111111111"
	testOperator = "0x3333333333333333333333333333333333333333"
	testStranger = "0x4444444444444444444444444444444444444444"
)

type fixture struct {
	db     *database.Database
	ledger *ledger.MemoryLedger
	rec    *reconcile.Reconciler
	coord  *withdrawal.Coordinator
}

func newFixture(t *testing.T, blobPlugin string) *fixture {
	t.Helper()
	db, err := database.New(&database.Config{BlobPlugin: blobPlugin})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mem := ledger.NewMemoryLedger()
	locks := keylock.New[uint64]()
	rec, err := reconcile.New(reconcile.Config{
		Database: db,
		Ledger:   mem,
		Locks:    locks,
	})
	require.NoError(t, err)
	coord, err := withdrawal.New(withdrawal.Config{
		Database:     db,
		Ledger:       mem,
		Reconciler:   rec,
		Locks:        locks,
		Operators:    []string{testOperator},
		PromRegistry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return &fixture{db: db, ledger: mem, rec: rec, coord: coord}
}

func (f *fixture) register(t *testing.T, goal int64) uint64 {
	t.Helper()
	id := f.ledger.CreateCampaign(big.NewInt(goal))
	require.NoError(t, f.db.AddCampaign(
		&models.Campaign{
			CampaignID: id,
			Owner:      testOwner,
			Goal:       types.NewAmount(big.NewInt(goal)),
			IsExist:    true,
		},
		nil,
	))
	return id
}

func (f *fixture) donate(t *testing.T, id uint64, amount int64) {
	t.Helper()
	transfer, err := f.ledger.Donate(id, testDonor, big.NewInt(amount))
	require.NoError(t, err)
	_, err = f.rec.Reconcile(context.Background(), reconcile.Donation{
		CampaignID: id,
		Donor:      transfer.Account,
		Amount:     transfer.Amount,
		TxHash:     transfer.TxHash,
	})
	require.NoError(t, err)
}

func (f *fixture) completed(t *testing.T) uint64 {
	t.Helper()
	id := f.register(t, 1000)
	f.donate(t, id, 1000)
	return id
}

func (f *fixture) addProof(t *testing.T, id uint64) {
	t.Helper()
	require.NoError(t, f.db.AddProof(
		&models.Proof{CampaignID: id, Author: testOwner, Title: "receipts"},
		nil,
	))
}

func txHash(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

func confirm(id uint64, idx uint8, amount int64, hash string) withdrawal.Confirmation {
	return withdrawal.Confirmation{
		CampaignID:   id,
		MilestoneIdx: idx,
		Amount:       big.NewInt(amount),
		TxHash:       hash,
		Caller:       testOwner,
	}
}

func TestGateOnIncompleteCampaign(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	id := f.register(t, 1000)
	f.donate(t, id, 999)

	_, err := f.coord.Initiate(context.Background(), id, 1, testOwner)
	require.ErrorIs(t, err, campaign.ErrCampaignNotCompleted)
	_, err = f.coord.Confirm(context.Background(), confirm(id, 1, 10, txHash(1)))
	require.ErrorIs(t, err, campaign.ErrCampaignNotCompleted)

	// default milestones are materialized on the first gate check
	milestones, err := f.db.GetMilestones(id, nil)
	require.NoError(t, err)
	require.Len(t, milestones, 2)
	assert.False(t, milestones[0].Amount.Valid())
	withdrawals, err := f.db.GetWithdrawals(id, nil)
	require.NoError(t, err)
	assert.Empty(t, withdrawals)
}

func TestInitiateRequiresOwner(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	id := f.completed(t)
	_, err := f.coord.Initiate(context.Background(), id, 1, testStranger)
	require.ErrorIs(t, err, campaign.ErrNotOwner)
	_, err = f.coord.Confirm(context.Background(), withdrawal.Confirmation{
		CampaignID:   id,
		MilestoneIdx: 1,
		Amount:       big.NewInt(1),
		TxHash:       txHash(1),
		Caller:       testStranger,
	})
	require.ErrorIs(t, err, campaign.ErrNotOwner)
}

func TestMilestoneFlow(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	ctx := context.Background()
	id := f.completed(t)

	quote, err := f.coord.Initiate(ctx, id, 1, testOwner)
	require.NoError(t, err)
	assert.Equal(t, "500", quote.Amount.String())
	assert.Equal(t, uint8(50), quote.Percentage)

	_, err = f.coord.Initiate(ctx, id, 2, testOwner)
	require.ErrorIs(t, err, campaign.ErrMilestoneNotEligible)
	require.ErrorIs(t, err, campaign.ErrPreviousPhaseUnreleased)

	_, err = f.coord.Confirm(ctx, confirm(id, 1, 501, txHash(1)))
	require.ErrorIs(t, err, withdrawal.ErrAmountExceedsQuote)

	receipt, err := f.coord.Confirm(ctx, confirm(id, 1, 500, txHash(1)))
	require.NoError(t, err)
	assert.False(t, receipt.Idempotent)
	assert.Equal(t, uint8(1), receipt.CurrentPhase)
	assert.Equal(t, models.RecordedByOwner, receipt.Withdrawal.RecordedBy)

	receipt, err = f.coord.Confirm(ctx, confirm(id, 1, 500, txHash(1)))
	require.NoError(t, err)
	assert.True(t, receipt.Idempotent)

	_, err = f.coord.Confirm(ctx, confirm(id, 2, 500, txHash(1)))
	require.ErrorIs(t, err, withdrawal.ErrTxHashConflict)

	_, err = f.coord.Initiate(ctx, id, 1, testOwner)
	require.ErrorIs(t, err, campaign.ErrMilestoneAlreadyReleased)

	_, err = f.coord.Initiate(ctx, id, 2, testOwner)
	require.ErrorIs(t, err, campaign.ErrProofRequired)

	f.addProof(t, id)
	quote, err = f.coord.Initiate(ctx, id, 2, testOwner)
	require.NoError(t, err)
	assert.Equal(t, "500", quote.Amount.String())

	receipt, err = f.coord.Confirm(ctx, confirm(id, 2, 500, txHash(2)))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), receipt.CurrentPhase)

	c, err := f.db.GetCampaign(id, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), c.CurrentWithdrawalPhase)
	withdrawals, err := f.db.GetWithdrawals(id, nil)
	require.NoError(t, err)
	assert.Len(t, withdrawals, 2)
	m, err := f.db.GetMilestone(id, 2, nil)
	require.NoError(t, err)
	assert.True(t, m.IsReleased)
	assert.Equal(t, txHash(2), m.ReleaseTxHash)
}

func TestRacingConfirms(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	id := f.completed(t)
	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	idempotent := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := f.coord.Confirm(context.Background(), confirm(id, 1, 500, txHash(7)))
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if receipt.Idempotent {
				idempotent++
			} else {
				fresh++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 7, idempotent)
	withdrawals, err := f.db.GetWithdrawals(id, nil)
	require.NoError(t, err)
	assert.Len(t, withdrawals, 1)
}

func TestMarkReleased(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	ctx := context.Background()
	id := f.completed(t)
	transfer, err := f.ledger.Withdraw(id, testOwner, 1, big.NewInt(500))
	require.NoError(t, err)

	_, err = f.coord.MarkReleased(ctx, id, 1, transfer.TxHash, testStranger)
	require.ErrorIs(t, err, campaign.ErrNotAuthorized)

	_, err = f.coord.MarkReleased(ctx, id, 2, transfer.TxHash, testOperator)
	require.ErrorIs(t, err, withdrawal.ErrTransferMismatch)

	_, err = f.coord.MarkReleased(ctx, id, 1, txHash(99), testOperator)
	require.ErrorIs(t, err, ledger.ErrTransferNotFound)

	receipt, err := f.coord.MarkReleased(ctx, id, 1, transfer.TxHash, testOperator)
	require.NoError(t, err)
	assert.Equal(t, models.RecordedByOperator, receipt.Withdrawal.RecordedBy)
	assert.Equal(t, "500", receipt.Withdrawal.Amount.String())
	assert.Equal(t, uint8(1), receipt.CurrentPhase)

	receipt, err = f.coord.MarkReleased(ctx, id, 1, transfer.TxHash, testOwner)
	require.NoError(t, err)
	assert.True(t, receipt.Idempotent)
}

func TestMarkReleasedFromArchive(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	id := f.completed(t)
	transfer, err := f.ledger.Withdraw(id, testOwner, 1, big.NewInt(500))
	require.NoError(t, err)
	logs, err := f.ledger.FilterLogs(ctx, ethereum.FilterQuery{})
	require.NoError(t, err)
	for _, l := range logs {
		raw, err := json.Marshal(l)
		require.NoError(t, err)
		require.NoError(t, f.db.ArchiveLedgerLog(l.TxHash.Hex(), l.Index, raw, nil))
	}

	// the ledger is down but the archive has the transfer
	f.ledger.SetUnavailable(true)
	receipt, err := f.coord.MarkReleased(ctx, id, 1, transfer.TxHash, testOwner)
	require.NoError(t, err)
	assert.Equal(t, models.RecordedByOwner, receipt.Withdrawal.RecordedBy)
}

func TestReconcileTransfer(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	ctx := context.Background()
	id := f.completed(t)
	// milestone 2 out of order, without proof
	transfer, err := f.ledger.Withdraw(id, testOwner, 2, big.NewInt(500))
	require.NoError(t, err)
	require.NoError(t, f.coord.ReconcileTransfer(ctx, transfer))
	require.NoError(t, f.coord.ReconcileTransfer(ctx, transfer))

	w, err := f.db.GetWithdrawalByTxHash(transfer.TxHash, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RecordedByWatcher, w.RecordedBy)
	c, err := f.db.GetCampaign(id, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), c.CurrentWithdrawalPhase)

	// a second release of the same milestone is skipped
	again, err := f.ledger.Withdraw(id, testOwner, 2, big.NewInt(1))
	require.NoError(t, err)
	require.NoError(t, f.coord.ReconcileTransfer(ctx, again))
	withdrawals, err := f.db.GetWithdrawals(id, nil)
	require.NoError(t, err)
	assert.Len(t, withdrawals, 1)

	// unregistered campaigns are reported
	other := f.ledger.CreateCampaign(big.NewInt(5))
	_, err = f.ledger.Donate(other, testDonor, big.NewInt(5))
	require.NoError(t, err)
	stray, err := f.ledger.Withdraw(other, testOwner, 1, big.NewInt(5))
	require.NoError(t, err)
	err = f.coord.ReconcileTransfer(ctx, stray)
	require.ErrorIs(t, err, campaign.ErrCampaignNotRegistered)
}

func TestReplayedConfirmChecksOwner(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	ctx := context.Background()
	id := f.completed(t)
	_, err := f.coord.Confirm(ctx, confirm(id, 1, 500, txHash(0xabab)))
	require.NoError(t, err)

	replay := confirm(id, 1, 500, txHash(0xabab))
	replay.Caller = testStranger
	receipt, err := f.coord.Confirm(ctx, replay)
	require.ErrorIs(t, err, campaign.ErrNotOwner)
	assert.False(t, receipt.Idempotent)
}

func TestReconcileTransferAfterLaggingDonation(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	ctx := context.Background()
	id := f.register(t, 100)
	donation, err := f.ledger.Donate(id, testDonor, big.NewInt(100))
	require.NoError(t, err)
	transfer, err := f.ledger.Withdraw(id, testOwner, 1, big.NewInt(50))
	require.NoError(t, err)

	// both logs land in one poll range, after the withdrawal
	res, err := f.rec.Reconcile(ctx, reconcile.Donation{
		CampaignID: id,
		Donor:      donation.Account,
		Amount:     donation.Amount,
		TxHash:     donation.TxHash,
	})
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCompleted, res.Status)
	require.NoError(t, f.coord.ReconcileTransfer(ctx, transfer))

	c, err := f.db.GetCampaign(id, nil)
	require.NoError(t, err)
	assert.True(t, c.IsCompleted)
	assert.Equal(t, "100", c.FinalBalance.String())
	assert.Equal(t, uint8(1), c.CurrentWithdrawalPhase)
	w, err := f.db.GetWithdrawalByTxHash(transfer.TxHash, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RecordedByWatcher, w.RecordedBy)
	m, err := f.db.GetMilestone(id, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "50", m.Amount.String())
}

func TestReconcileTransferCompletesUnseenCampaign(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	ctx := context.Background()
	id := f.register(t, 100)
	_, err := f.ledger.Donate(id, testDonor, big.NewInt(120))
	require.NoError(t, err)
	transfer, err := f.ledger.Withdraw(id, testOwner, 1, big.NewInt(60))
	require.NoError(t, err)

	// the donation was never recorded, so the withdrawal is the only evidence
	require.NoError(t, f.coord.ReconcileTransfer(ctx, transfer))

	c, err := f.db.GetCampaign(id, nil)
	require.NoError(t, err)
	assert.True(t, c.IsCompleted)
	assert.Equal(t, "120", c.FinalBalance.String())
	withdrawals, err := f.db.GetWithdrawals(id, nil)
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)
	assert.Equal(t, "60", withdrawals[0].Amount.String())

	// replaying the log changes nothing
	require.NoError(t, f.coord.ReconcileTransfer(ctx, transfer))
	c, err = f.db.GetCampaign(id, nil)
	require.NoError(t, err)
	assert.Equal(t, "120", c.FinalBalance.String())
}

func TestNewRejectsBadOperator(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	_, err := withdrawal.New(withdrawal.Config{
		Database:   f.db,
		Ledger:     f.ledger,
		Reconciler: f.rec,
		Operators:  []string{"bogus"},
	})
	require.ErrorIs(t, err, campaign.ErrInvalidAddress)
	assert.True(t, f.coord.IsOperator(testOperator))
	assert.False(t, f.coord.IsOperator(testOwner))
}

func TestMilestonesReportAvailability(t *testing.T) {
	f := newFixture(t, database.BlobPluginNone)
	ctx := context.Background()

	pending := f.register(t, 1000)
	statuses, err := f.coord.Milestones(ctx, pending)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.False(t, s.Available)
		assert.ErrorIs(t, s.Reason, campaign.ErrCampaignNotCompleted)
	}

	id := f.completed(t)
	statuses, err = f.coord.Milestones(ctx, id)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Available)
	assert.Equal(t, "500", statuses[0].Milestone.Amount.String())
	assert.False(t, statuses[1].Available)
	assert.ErrorIs(t, statuses[1].Reason, campaign.ErrPreviousPhaseUnreleased)

	_, err = f.coord.Confirm(ctx, confirm(id, 1, 500, txHash(900)))
	require.NoError(t, err)
	statuses, err = f.coord.Milestones(ctx, id)
	require.NoError(t, err)
	assert.False(t, statuses[0].Available)
	assert.ErrorIs(t, statuses[0].Reason, campaign.ErrMilestoneAlreadyReleased)
	assert.ErrorIs(t, statuses[1].Reason, campaign.ErrProofRequired)

	f.addProof(t, id)
	statuses, err = f.coord.Milestones(ctx, id)
	require.NoError(t, err)
	assert.True(t, statuses[1].Available)
	assert.NoError(t, statuses[1].Reason)
}
