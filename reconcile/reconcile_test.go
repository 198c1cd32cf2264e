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

package reconcile_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/almoner/campaign"
	"github.com/blinklabs-io/almoner/database"
	"github.com/blinklabs-io/almoner/database/models"
	"github.com/blinklabs-io/almoner/database/types"
	"github.com/blinklabs-io/almoner/event"
	"github.com/blinklabs-io/almoner/ledger"
	"github.com/blinklabs-io/almoner/reconcile"
)

const (
	testOwner = "0x52908400098527886E0F7030069857D2E4169EE7"
	testDonor = "0x1111111111111111111111111111111111111111"
)

type fixture struct {
	db     *database.Database
	ledger *ledger.MemoryLedger
	bus    *event.EventBus
	rec    *reconcile.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.New(&database.Config{BlobPlugin: database.BlobPluginNone})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	bus := event.NewEventBus(nil, nil)
	t.Cleanup(bus.Stop)
	mem := ledger.NewMemoryLedger()
	rec, err := reconcile.New(reconcile.Config{
		Database:     db,
		Ledger:       mem,
		EventBus:     bus,
		PromRegistry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return &fixture{db: db, ledger: mem, bus: bus, rec: rec}
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

func (f *fixture) donate(t *testing.T, id uint64, amount int64) reconcile.Donation {
	t.Helper()
	transfer, err := f.ledger.Donate(id, testDonor, big.NewInt(amount))
	require.NoError(t, err)
	return reconcile.Donation{
		CampaignID:  id,
		Donor:       transfer.Account,
		Amount:      transfer.Amount,
		TxHash:      transfer.TxHash,
		BlockNumber: transfer.BlockNumber,
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, 1000)
	d := f.donate(t, id, 250)

	res, err := f.rec.Reconcile(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, campaign.StatusActive, res.Status)
	assert.Equal(t, "250", res.EffectiveBalance.String())
	assert.Equal(t, 25, res.Progress)

	res, err = f.rec.Reconcile(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	votes, err := f.db.GetVotes(id, 0, 0, nil)
	require.NoError(t, err)
	assert.Len(t, votes, 1)
	c, err := f.db.GetCampaign(id, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.VoteCount)
	assert.Equal(t, "250", c.LedgerBalance.String())
	user, err := f.db.GetUser(testDonor, nil)
	require.NoError(t, err)
	assert.Equal(t, testDonor, user.Address)
}

func TestConcurrentReconcileSameTransaction(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, 1000)
	d := f.donate(t, id, 10)
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.rec.Reconcile(context.Background(), d)
			if err != nil {
				return
			}
			if !res.Duplicate {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied)
	c, err := f.db.GetCampaign(id, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.VoteCount)
}

func TestCompletionScenario(t *testing.T) {
	f := newFixture(t)
	_, completedCh := f.bus.Subscribe(event.CompletedEventType)
	id := f.register(t, 1000)

	res, err := f.rec.Reconcile(context.Background(), f.donate(t, id, 400))
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusActive, res.Status)
	assert.False(t, res.CompletionTriggered)

	res, err = f.rec.Reconcile(context.Background(), f.donate(t, id, 700))
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCompleted, res.Status)
	assert.True(t, res.CompletionTriggered)
	assert.Equal(t, "1100", res.EffectiveBalance.String())
	assert.Equal(t, 100, res.Progress)

	milestones, err := f.db.GetMilestones(id, nil)
	require.NoError(t, err)
	require.Len(t, milestones, 2)
	assert.Equal(t, "550", milestones[0].Amount.String())
	assert.Equal(t, "550", milestones[1].Amount.String())

	// later donations never move the final balance
	res, err = f.rec.Reconcile(context.Background(), f.donate(t, id, 100))
	require.NoError(t, err)
	assert.False(t, res.CompletionTriggered)
	assert.Equal(t, campaign.StatusCompleted, res.Status)
	assert.Equal(t, "1100", res.EffectiveBalance.String())
	assert.Equal(t, "1200", res.Balance.String())
	c, err := f.db.GetCampaign(id, nil)
	require.NoError(t, err)
	assert.Equal(t, "1100", c.FinalBalance.String())
	assert.NotNil(t, c.CompletedAt)

	select {
	case evt := <-completedCh:
		data, ok := evt.Data.(event.CompletedEvent)
		require.True(t, ok)
		assert.Equal(t, id, data.CampaignID)
		assert.Equal(t, "1100", data.FinalBalance)
	case <-time.After(2 * time.Second):
		t.Fatal("no completion event")
	}
	select {
	case <-completedCh:
		t.Fatal("completion event emitted twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCustomScheduleKeptOnCompletion(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, 100)
	require.NoError(t, f.db.AddMilestones(
		id,
		[]campaign.MilestoneSpec{
			{Idx: 1, Percentage: 20},
			{Idx: 2, Percentage: 30},
			{Idx: 3, Percentage: 50},
		},
		nil,
	))
	_, err := f.rec.Reconcile(context.Background(), f.donate(t, id, 101))
	require.NoError(t, err)
	milestones, err := f.db.GetMilestones(id, nil)
	require.NoError(t, err)
	require.Len(t, milestones, 3)
	assert.Equal(t, "20", milestones[0].Amount.String())
	assert.Equal(t, "30", milestones[1].Amount.String())
	assert.Equal(t, "50", milestones[2].Amount.String())
}

func TestZeroGoalNeverCompletes(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, 0)
	res, err := f.rec.Reconcile(context.Background(), f.donate(t, id, 5))
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusActive, res.Status)
	assert.Equal(t, 0, res.Progress)
}

func TestUnregisteredCampaign(t *testing.T) {
	f := newFixture(t)
	id := f.ledger.CreateCampaign(big.NewInt(100))
	_, err := f.rec.Reconcile(context.Background(), f.donate(t, id, 5))
	require.ErrorIs(t, err, campaign.ErrCampaignNotRegistered)

	_, err = f.rec.Refresh(context.Background(), id)
	require.ErrorIs(t, err, campaign.ErrCampaignNotFound)
}

func TestInvalidDonation(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, 100)
	d := f.donate(t, id, 5)

	bad := d
	bad.Donor = "nope"
	_, err := f.rec.Reconcile(context.Background(), bad)
	require.ErrorIs(t, err, campaign.ErrInvalidAddress)

	bad = d
	bad.TxHash = "0x1234"
	_, err = f.rec.Reconcile(context.Background(), bad)
	require.ErrorIs(t, err, campaign.ErrInvalidTxHash)

	bad = d
	bad.Amount = big.NewInt(0)
	_, err = f.rec.Reconcile(context.Background(), bad)
	require.ErrorIs(t, err, campaign.ErrInvalidAmount)
}

func TestLedgerOutage(t *testing.T) {
	f := newFixture(t)
	active := f.register(t, 1000)
	done := f.register(t, 10)
	d := f.donate(t, active, 5)
	_, err := f.rec.Reconcile(context.Background(), f.donate(t, done, 10))
	require.NoError(t, err)

	f.ledger.SetUnavailable(true)
	_, err = f.rec.Reconcile(context.Background(), d)
	require.ErrorIs(t, err, ledger.ErrLedgerUnavailable)
	votes, err := f.db.GetVotes(active, 0, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, votes)

	_, err = f.rec.Refresh(context.Background(), active)
	require.ErrorIs(t, err, ledger.ErrLedgerUnavailable)

	// completed campaigns resolve from the stored latch
	state, err := f.rec.Refresh(context.Background(), done)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCompleted, state.Status)
	assert.Equal(t, "10", state.EffectiveBalance.String())
	assert.Nil(t, state.Balance)
}

func TestClosureDetection(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, 1000)
	_, err := f.rec.Reconcile(context.Background(), f.donate(t, id, 5))
	require.NoError(t, err)
	f.ledger.SetExists(id, false)

	state, err := f.rec.Refresh(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusClosed, state.Status)
	c, err := f.db.GetCampaign(id, nil)
	require.NoError(t, err)
	assert.False(t, c.IsExist)
	assert.False(t, c.IsCompleted)
}

func TestBalanceDecreaseAfterCompletionIsIgnored(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, 100)
	_, err := f.rec.Reconcile(context.Background(), f.donate(t, id, 100))
	require.NoError(t, err)
	_, err = f.ledger.Withdraw(id, testOwner, 1, big.NewInt(50))
	require.NoError(t, err)

	state, err := f.rec.Refresh(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCompleted, state.Status)
	assert.Equal(t, "100", state.EffectiveBalance.String())
	assert.Equal(t, "50", state.Balance.String())
}

func TestDonationRecordedAfterWithdrawalCompletes(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, 100)
	first := f.donate(t, id, 30)
	second := f.donate(t, id, 80)
	_, err := f.ledger.Withdraw(id, testOwner, 1, big.NewInt(55))
	require.NoError(t, err)

	res, err := f.rec.Reconcile(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusActive, res.Status)

	res, err = f.rec.Reconcile(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCompleted, res.Status)
	assert.True(t, res.CompletionTriggered)
	assert.Equal(t, "110", res.EffectiveBalance.String())
	assert.Equal(t, "55", res.Balance.String())
	m, err := f.db.GetMilestone(id, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "55", m.Amount.String())
}
