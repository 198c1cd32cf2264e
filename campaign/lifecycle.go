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

package campaign

import "math/big"

// Status is the derived lifecycle state of a campaign
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusClosed    Status = "closed"
)

func (s Status) String() string {
	return string(s)
}

// ResolveInput carries the ledger reads and stored latch for a campaign
type ResolveInput struct {
	Balance      *big.Int
	Goal         *big.Int
	Exists       bool
	Completed    bool
	FinalBalance *big.Int
	// Reached is the recorded donation total at the point it first met the
	// goal, or nil when it never did
	Reached *big.Int
}

// Resolution is the derived lifecycle state. When CompletionTriggered is
// set, the caller must latch completion with EffectiveBalance as the final
// balance.
type Resolution struct {
	Status              Status
	EffectiveBalance    *big.Int
	CompletionTriggered bool
}

// Resolve derives the lifecycle status. A stored completion always wins
// over the ledger balance. A goal of zero never triggers completion.
func Resolve(in ResolveInput) Resolution {
	if in.Completed {
		return Resolution{
			Status:           StatusCompleted,
			EffectiveBalance: copyOrZero(in.FinalBalance),
		}
	}
	balance := copyOrZero(in.Balance)
	goal := copyOrZero(in.Goal)
	if goal.Sign() > 0 && balance.Cmp(goal) >= 0 {
		return Resolution{
			Status:              StatusCompleted,
			EffectiveBalance:    balance,
			CompletionTriggered: true,
		}
	}
	// The ledger balance may already be reduced by a withdrawal
	if goal.Sign() > 0 && in.Reached != nil && in.Reached.Cmp(goal) >= 0 {
		return Resolution{
			Status:              StatusCompleted,
			EffectiveBalance:    new(big.Int).Set(in.Reached),
			CompletionTriggered: true,
		}
	}
	if !in.Exists {
		return Resolution{
			Status:           StatusClosed,
			EffectiveBalance: balance,
		}
	}
	return Resolution{
		Status:           StatusActive,
		EffectiveBalance: balance,
	}
}

// GoalReached returns the running total of donations, in ledger order, at
// the first donation that brings it to goal. It returns nil when the total
// never reaches goal or goal is zero.
func GoalReached(goal *big.Int, donations []*big.Int) *big.Int {
	if goal == nil || goal.Sign() <= 0 {
		return nil
	}
	total := new(big.Int)
	for _, d := range donations {
		if d == nil {
			continue
		}
		total.Add(total, d)
		if total.Cmp(goal) >= 0 {
			return total
		}
	}
	return nil
}

// Progress returns min(100, floor(effective*100/goal)), or 0 for a zero goal
func Progress(effective, goal *big.Int) int {
	if goal == nil || goal.Sign() <= 0 || effective == nil || effective.Sign() <= 0 {
		return 0
	}
	pct := new(big.Int).Mul(effective, big.NewInt(100))
	pct.Quo(pct, goal)
	if pct.Cmp(big.NewInt(100)) >= 0 {
		return 100
	}
	return int(pct.Int64())
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
