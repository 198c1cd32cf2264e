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

import "fmt"

// GateState is the campaign state the milestone gate depends on
type GateState struct {
	Status                 Status
	CurrentWithdrawalPhase uint8
}

// MilestoneState is the milestone state the milestone gate depends on
type MilestoneState struct {
	Idx      uint8
	Released bool
}

// Decision is the result of a gate check. Reason names the unmet
// precondition when Allowed is false.
type Decision struct {
	Allowed bool
	Reason  error
}

// Err returns nil when the release is allowed
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return d.Reason
}

// CanRelease evaluates whether a milestone may be withdrawn now
func CanRelease(state GateState, milestone MilestoneState, proofsExist bool) Decision {
	if state.Status != StatusCompleted {
		return deny(ErrCampaignNotCompleted)
	}
	if milestone.Released {
		return deny(ErrMilestoneAlreadyReleased)
	}
	if milestone.Idx <= 1 {
		return Decision{Allowed: true}
	}
	if state.CurrentWithdrawalPhase < milestone.Idx-1 {
		return deny(
			fmt.Errorf(
				"%w: milestone %d: %w",
				ErrMilestoneNotEligible,
				milestone.Idx-1,
				ErrPreviousPhaseUnreleased,
			),
		)
	}
	if !proofsExist {
		return deny(fmt.Errorf("%w: %w", ErrMilestoneNotEligible, ErrProofRequired))
	}
	return Decision{Allowed: true}
}

func deny(reason error) Decision {
	return Decision{Reason: reason}
}
