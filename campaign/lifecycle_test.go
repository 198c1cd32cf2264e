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

	"github.com/blinklabs-io/almoner/campaign"
)

func TestResolve(t *testing.T) {
	testDefs := []struct {
		name          string
		input         campaign.ResolveInput
		wantStatus    campaign.Status
		wantEffective int64
		wantTriggered bool
	}{
		{
			name: "active below goal",
			input: campaign.ResolveInput{
				Balance: big.NewInt(999),
				Goal:    big.NewInt(1000),
				Exists:  true,
			},
			wantStatus:    campaign.StatusActive,
			wantEffective: 999,
		},
		{
			name: "goal reached triggers completion",
			input: campaign.ResolveInput{
				Balance: big.NewInt(1000),
				Goal:    big.NewInt(1000),
				Exists:  true,
			},
			wantStatus:    campaign.StatusCompleted,
			wantEffective: 1000,
			wantTriggered: true,
		},
		{
			name: "stored completion ignores ledger",
			input: campaign.ResolveInput{
				Balance:      big.NewInt(0),
				Goal:         big.NewInt(1000),
				Exists:       false,
				Completed:    true,
				FinalBalance: big.NewInt(1200),
			},
			wantStatus:    campaign.StatusCompleted,
			wantEffective: 1200,
		},
		{
			name: "closed when ledger no longer tracks campaign",
			input: campaign.ResolveInput{
				Balance: big.NewInt(10),
				Goal:    big.NewInt(1000),
				Exists:  false,
			},
			wantStatus:    campaign.StatusClosed,
			wantEffective: 10,
		},
		{
			name: "zero goal never completes",
			input: campaign.ResolveInput{
				Balance: big.NewInt(10),
				Goal:    big.NewInt(0),
				Exists:  true,
			},
			wantStatus:    campaign.StatusActive,
			wantEffective: 10,
		},
		{
			name: "recorded donations reached goal before a withdrawal",
			input: campaign.ResolveInput{
				Balance: big.NewInt(50),
				Goal:    big.NewInt(100),
				Exists:  true,
				Reached: big.NewInt(120),
			},
			wantStatus:    campaign.StatusCompleted,
			wantEffective: 120,
			wantTriggered: true,
		},
		{
			name: "drained campaign completes before it closes",
			input: campaign.ResolveInput{
				Balance: big.NewInt(0),
				Goal:    big.NewInt(100),
				Exists:  false,
				Reached: big.NewInt(100),
			},
			wantStatus:    campaign.StatusCompleted,
			wantEffective: 100,
			wantTriggered: true,
		},
		{
			name: "nil balance treated as zero",
			input: campaign.ResolveInput{
				Goal:   big.NewInt(1000),
				Exists: true,
			},
			wantStatus:    campaign.StatusActive,
			wantEffective: 0,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			res := campaign.Resolve(testDef.input)
			assert.Equal(t, testDef.wantStatus, res.Status)
			assert.Equal(t, testDef.wantEffective, res.EffectiveBalance.Int64())
			assert.Equal(t, testDef.wantTriggered, res.CompletionTriggered)
		})
	}
}

func TestResolveDoesNotAliasInputs(t *testing.T) {
	final := big.NewInt(500)
	res := campaign.Resolve(campaign.ResolveInput{Completed: true, FinalBalance: final})
	res.EffectiveBalance.SetInt64(1)
	assert.Equal(t, int64(500), final.Int64())
}

func TestGoalReached(t *testing.T) {
	donations := []*big.Int{big.NewInt(40), nil, big.NewInt(70), big.NewInt(500)}
	assert.Equal(t, "110", campaign.GoalReached(big.NewInt(100), donations).String())
	assert.Equal(t, "40", campaign.GoalReached(big.NewInt(40), donations).String())
	assert.Nil(t, campaign.GoalReached(big.NewInt(1000), donations))
	assert.Nil(t, campaign.GoalReached(big.NewInt(0), donations))
	assert.Nil(t, campaign.GoalReached(nil, donations))
}

func TestProgress(t *testing.T) {
	assert.Equal(t, 0, campaign.Progress(big.NewInt(10), big.NewInt(0)))
	assert.Equal(t, 0, campaign.Progress(nil, big.NewInt(10)))
	assert.Equal(t, 49, campaign.Progress(big.NewInt(499), big.NewInt(1000)))
	assert.Equal(t, 99, campaign.Progress(big.NewInt(999), big.NewInt(1000)))
	assert.Equal(t, 100, campaign.Progress(big.NewInt(1000), big.NewInt(1000)))
	assert.Equal(t, 100, campaign.Progress(big.NewInt(5000), big.NewInt(1000)))
}
