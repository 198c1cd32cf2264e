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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownCampaign     = errors.New("unknown campaign")
	ErrInsufficientBalance = errors.New("insufficient campaign balance")
)

type memoryCampaign struct {
	balance *big.Int
	goal    *big.Int
	exists  bool
}

// MemoryLedger is an in-process ledger used in dev mode and tests. Every
// donation and withdrawal is mined into its own block.
type MemoryLedger struct {
	mu          sync.RWMutex
	campaigns   map[uint64]*memoryCampaign
	logs        []types.Log
	transfers   map[string]Transfer
	contract    common.Address
	nextID      uint64
	blockNumber uint64
	txCount     uint64
	unavailable bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		campaigns: make(map[uint64]*memoryCampaign),
		transfers: make(map[string]Transfer),
		contract:  common.HexToAddress("0x000000000000000000000000000000000000a1e0"),
		nextID:    1,
	}
}

// CreateCampaign opens a campaign with the given goal and returns its ID
func (m *MemoryLedger) CreateCampaign(goal *big.Int) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.campaigns[id] = &memoryCampaign{
		balance: new(big.Int),
		goal:    new(big.Int).Set(goal),
		exists:  true,
	}
	return id
}

// Donate credits a campaign and records a DonationReceived log
func (m *MemoryLedger) Donate(campaignID uint64, donor string, amount *big.Int) (Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok || !c.exists {
		return Transfer{}, fmt.Errorf("%w: %d", ErrUnknownCampaign, campaignID)
	}
	c.balance.Add(c.balance, amount)
	return m.record(Transfer{
		Kind:       TransferKindDonation,
		CampaignID: campaignID,
		Account:    donor,
		Amount:     new(big.Int).Set(amount),
	})
}

// Withdraw debits a campaign and records a FundsWithdrawn log
func (m *MemoryLedger) Withdraw(
	campaignID uint64,
	recipient string,
	milestoneIdx uint8,
	amount *big.Int,
) (Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return Transfer{}, fmt.Errorf("%w: %d", ErrUnknownCampaign, campaignID)
	}
	if c.balance.Cmp(amount) < 0 {
		return Transfer{}, ErrInsufficientBalance
	}
	c.balance.Sub(c.balance, amount)
	return m.record(Transfer{
		Kind:         TransferKindWithdrawal,
		CampaignID:   campaignID,
		Account:      recipient,
		MilestoneIdx: milestoneIdx,
		Amount:       new(big.Int).Set(amount),
	})
}

func (m *MemoryLedger) record(t Transfer) (Transfer, error) {
	m.txCount++
	m.blockNumber++
	t.BlockNumber = m.blockNumber
	t.TxHash = crypto.Keccak256Hash(
		[]byte(fmt.Sprintf("almoner-memory-tx-%d", m.txCount)),
	).Hex()
	log, err := encodeTransferLog(t)
	if err != nil {
		return Transfer{}, err
	}
	log.Address = m.contract
	log.BlockHash = crypto.Keccak256Hash(
		[]byte(fmt.Sprintf("almoner-memory-block-%d", m.blockNumber)),
	)
	m.logs = append(m.logs, log)
	m.transfers[strings.ToLower(t.TxHash)] = t
	return t, nil
}

// Contract returns the address the in-memory contract logs are emitted from
func (m *MemoryLedger) Contract() common.Address {
	return m.contract
}

// SetExists sets the ledger liveness flag of a campaign
func (m *MemoryLedger) SetExists(campaignID uint64, exists bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.campaigns[campaignID]; ok {
		c.exists = exists
	}
}

// SetUnavailable simulates a ledger outage
func (m *MemoryLedger) SetUnavailable(unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = unavailable
}

// AdvanceBlocks mines empty blocks
func (m *MemoryLedger) AdvanceBlocks(count uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockNumber += count
}

func (m *MemoryLedger) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	if m.unavailable {
		return ErrLedgerUnavailable
	}
	return nil
}

func (m *MemoryLedger) Balance(ctx context.Context, campaignID uint64) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	if c, ok := m.campaigns[campaignID]; ok {
		return new(big.Int).Set(c.balance), nil
	}
	return new(big.Int), nil
}

func (m *MemoryLedger) Exists(ctx context.Context, campaignID uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return false, err
	}
	c, ok := m.campaigns[campaignID]
	return ok && c.exists, nil
}

func (m *MemoryLedger) Goal(ctx context.Context, campaignID uint64) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	if c, ok := m.campaigns[campaignID]; ok {
		return new(big.Int).Set(c.goal), nil
	}
	return new(big.Int), nil
}

func (m *MemoryLedger) NextCampaignID(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	return m.nextID, nil
}

func (m *MemoryLedger) LookupTransfer(ctx context.Context, txHash string) (*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	t, ok := m.transfers[strings.ToLower(txHash)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, txHash)
	}
	t.Amount = new(big.Int).Set(t.Amount)
	return &t, nil
}

func (m *MemoryLedger) BlockNumber(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return 0, err
	}
	return m.blockNumber, nil
}

// FilterLogs returns the recorded logs within the query block range
func (m *MemoryLedger) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	var ret []types.Log
	for _, log := range m.logs {
		if q.FromBlock != nil && log.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && log.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		ret = append(ret, log)
	}
	return ret, nil
}
