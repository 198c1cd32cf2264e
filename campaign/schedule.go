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

import (
	"fmt"
	"math/big"
)

// MilestoneSpec describes one entry of a withdrawal schedule
type MilestoneSpec struct {
	Idx         uint8  `json:"idx"         yaml:"idx"`
	Title       string `json:"title"       yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Percentage  uint8  `json:"percentage"  yaml:"percentage"`
}

// DefaultSchedule is used when a campaign registers no milestones
func DefaultSchedule() []MilestoneSpec {
	return []MilestoneSpec{
		{Idx: 1, Title: "Phase 1", Percentage: 50},
		{Idx: 2, Title: "Phase 2", Percentage: 50},
	}
}

// ValidateSchedule checks that indexes run 1..n in order and percentages sum to 100
func ValidateSchedule(schedule []MilestoneSpec) error {
	if len(schedule) == 0 {
		return fmt.Errorf("%w: no milestones", ErrInvalidSchedule)
	}
	if len(schedule) > 255 {
		return fmt.Errorf("%w: too many milestones", ErrInvalidSchedule)
	}
	total := 0
	for i, m := range schedule {
		if int(m.Idx) != i+1 {
			return fmt.Errorf(
				"%w: milestone %d has index %d",
				ErrInvalidSchedule,
				i+1,
				m.Idx,
			)
		}
		if m.Percentage == 0 {
			return fmt.Errorf(
				"%w: milestone %d has zero percentage",
				ErrInvalidSchedule,
				m.Idx,
			)
		}
		total += int(m.Percentage)
	}
	if total != 100 {
		return fmt.Errorf(
			"%w: percentages sum to %d",
			ErrInvalidSchedule,
			total,
		)
	}
	return nil
}

// MilestoneAmount returns floor(finalBalance * percentage / 100)
func MilestoneAmount(finalBalance *big.Int, percentage uint8) *big.Int {
	if finalBalance == nil {
		return new(big.Int)
	}
	ret := new(big.Int).Mul(finalBalance, big.NewInt(int64(percentage)))
	return ret.Quo(ret, big.NewInt(100))
}
