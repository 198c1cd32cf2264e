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

package event

import "time"

const (
	DonationEventType   = EventType("campaign.donation")
	BalanceEventType    = EventType("campaign.balance")
	WithdrawalEventType = EventType("campaign.withdrawal")
	MilestoneEventType  = EventType("campaign.milestone")
	CompletedEventType  = EventType("campaign.completed")
	ProofEventType      = EventType("campaign.proof")
)

// CampaignEventTypes lists every topic that carries campaign state
var CampaignEventTypes = []EventType{
	DonationEventType,
	BalanceEventType,
	WithdrawalEventType,
	MilestoneEventType,
	CompletedEventType,
	ProofEventType,
}

// CampaignScoped is implemented by event payloads that belong to a single
// campaign. Observers use it to route events to per-campaign rooms.
type CampaignScoped interface {
	EventCampaignID() uint64
}

// Amounts are carried as decimal strings so that observers parsing JSON do
// not lose precision on large ledger values.

// DonationEvent is emitted after a donation is reconciled for the first time
type DonationEvent struct {
	CampaignID  uint64 `json:"campaign_id"`
	Donor       string `json:"donor"`
	Amount      string `json:"amount"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	VoteCount   uint64 `json:"vote_count"`
}

func (e DonationEvent) EventCampaignID() uint64 { return e.CampaignID }

// BalanceEvent is emitted whenever the cached ledger balance is refreshed
type BalanceEvent struct {
	CampaignID       uint64 `json:"campaign_id"`
	Balance          string `json:"balance"`
	EffectiveBalance string `json:"effective_balance"`
	Goal             string `json:"goal"`
	Progress         int    `json:"progress"`
	Status           string `json:"status"`
}

func (e BalanceEvent) EventCampaignID() uint64 { return e.CampaignID }

// WithdrawalEvent is emitted after a withdrawal is recorded
type WithdrawalEvent struct {
	CampaignID   uint64 `json:"campaign_id"`
	MilestoneIdx uint8  `json:"milestone_idx"`
	Amount       string `json:"amount"`
	TxHash       string `json:"tx_hash"`
	RecordedBy   string `json:"recorded_by"`
	CurrentPhase uint8  `json:"current_phase"`
}

func (e WithdrawalEvent) EventCampaignID() uint64 { return e.CampaignID }

// MilestoneEvent is emitted when a milestone changes availability or is released
type MilestoneEvent struct {
	CampaignID   uint64 `json:"campaign_id"`
	MilestoneIdx uint8  `json:"milestone_idx"`
	Amount       string `json:"amount"`
	Released     bool   `json:"released"`
	Available    bool   `json:"available"`
}

func (e MilestoneEvent) EventCampaignID() uint64 { return e.CampaignID }

// CompletedEvent is emitted exactly once per campaign, when the completion latch fires
type CompletedEvent struct {
	CampaignID   uint64    `json:"campaign_id"`
	FinalBalance string    `json:"final_balance"`
	CompletedAt  time.Time `json:"completed_at"`
}

func (e CompletedEvent) EventCampaignID() uint64 { return e.CampaignID }

// ProofEvent is emitted after the owner submits a proof
type ProofEvent struct {
	CampaignID uint64 `json:"campaign_id"`
	ProofID    uint   `json:"proof_id"`
	Author     string `json:"author"`
	Title      string `json:"title"`
}

func (e ProofEvent) EventCampaignID() uint64 { return e.CampaignID }
