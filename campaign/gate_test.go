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

package campaign_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/almoner/campaign"
)

func TestCanRelease(t *testing.T) {
	completed := campaign.GateState{Status: campaign.StatusCompleted}
	testDefs := []struct {
		name        string
		state       campaign.GateState
		milestone   campaign.MilestoneState
		proofs      bool
		wantAllowed bool
		wantErrs    []error
	}{
		{
			name:      "active campaign",
			state:     campaign.GateState{Status: campaign.StatusActive},
			milestone: campaign.MilestoneState{Idx: 1},
			wantErrs:  []error{campaign.ErrCampaignNotCompleted},
		},
		{
			name:      "closed campaign",
			state:     campaign.GateState{Status: campaign.StatusClosed},
			milestone: campaign.MilestoneState{Idx: 1},
			wantErrs:  []error{campaign.ErrCampaignNotCompleted},
		},
		{
			name:        "first milestone needs no proof",
			state:       completed,
			milestone:   campaign.MilestoneState{Idx: 1},
			wantAllowed: true,
		},
		{
			name:      "released milestone",
			state:     campaign.GateState{Status: campaign.StatusCompleted, CurrentWithdrawalPhase: 1},
			milestone: campaign.MilestoneState{Idx: 1, Released: true},
			wantErrs:  []error{campaign.ErrMilestoneAlreadyReleased},
		},
		{
			name:      "second milestone before first",
			state:     completed,
			milestone: campaign.MilestoneState{Idx: 2},
			proofs:    true,
			wantErrs: []error{
				campaign.ErrMilestoneNotEligible,
				campaign.ErrPreviousPhaseUnreleased,
			},
		},
		{
			name:      "second milestone without proof",
			state:     campaign.GateState{Status: campaign.StatusCompleted, CurrentWithdrawalPhase: 1},
			milestone: campaign.MilestoneState{Idx: 2},
			wantErrs: []error{
				campaign.ErrMilestoneNotEligible,
				campaign.ErrProofRequired,
			},
		},
		{
			name:        "second milestone with proof",
			state:       campaign.GateState{Status: campaign.StatusCompleted, CurrentWithdrawalPhase: 1},
			milestone:   campaign.MilestoneState{Idx: 2},
			proofs:      true,
			wantAllowed: true,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			d := campaign.CanRelease(testDef.state, testDef.milestone, testDef.proofs)
			assert.Equal(t, testDef.wantAllowed, d.Allowed)
			if testDef.wantAllowed {
				assert.NoError(t, d.Err())
				return
			}
			require.Error(t, d.Err())
			for _, want := range testDef.wantErrs {
				assert.ErrorIs(t, d.Err(), want)
			}
		})
	}
}

func TestValidateSchedule(t *testing.T) {
	require.NoError(t, campaign.ValidateSchedule(campaign.DefaultSchedule()))
	require.NoError(t, campaign.ValidateSchedule([]campaign.MilestoneSpec{
		{Idx: 1, Percentage: 20},
		{Idx: 2, Percentage: 30},
		{Idx: 3, Percentage: 50},
	}))
	badSchedules := [][]campaign.MilestoneSpec{
		nil,
		{{Idx: 1, Percentage: 60}, {Idx: 2, Percentage: 50}},
		{{Idx: 1, Percentage: 50}, {Idx: 3, Percentage: 50}},
		{{Idx: 1, Percentage: 100}, {Idx: 2, Percentage: 0}},
	}
	for _, schedule := range badSchedules {
		assert.ErrorIs(t, campaign.ValidateSchedule(schedule), campaign.ErrInvalidSchedule)
	}
}

func TestMilestoneAmount(t *testing.T) {
	assert.Equal(t, int64(600), campaign.MilestoneAmount(big.NewInt(1200), 50).Int64())
	assert.Equal(t, int64(330), campaign.MilestoneAmount(big.NewInt(1001), 33).Int64())
	assert.Equal(t, int64(0), campaign.MilestoneAmount(nil, 50).Int64())
	wei, _ := new(big.Int).SetString("1000000000000000000000", 10)
	half, _ := new(big.Int).SetString("500000000000000000000", 10)
	assert.Equal(t, 0, campaign.MilestoneAmount(wei, 50).Cmp(half))
}

func TestNormalizeAddress(t *testing.T) {
	addr, err := campaign.NormalizeAddress("0x52908400098527886e0f7030069857d2e4169ee7")
	require.NoError(t, err)
	assert.Equal(t, "0x52908400098527886E0F7030069857D2E4169EE7", addr)
	_, err = campaign.NormalizeAddress("not-an-address")
	assert.ErrorIs(t, err, campaign.ErrInvalidAddress)
	assert.True(t, campaign.SameAddress(
		"0x52908400098527886E0F7030069857D2E4169EE7",
		"0x52908400098527886e0f7030069857d2e4169ee7",
	))
	assert.False(t, campaign.SameAddress("0x52908400098527886E0F7030069857D2E4169EE7", ""))
}

func TestNormalizeTxHash(t *testing.T) {
	h, err := campaign.NormalizeTxHash("0xAB00000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0xab00000000000000000000000000000000000000000000000000000000000001", h)
	for _, bad := range []string{"", "0x", "ab00", "0x1234", "0xzz00000000000000000000000000000000000000000000000000000000000001"} {
		_, err := campaign.NormalizeTxHash(bad)
		assert.ErrorIs(t, err, campaign.ErrInvalidTxHash, bad)
	}
}
