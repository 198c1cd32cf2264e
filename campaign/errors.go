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

import "errors"

var (
	ErrCampaignNotFound         = errors.New("campaign not found")
	ErrCampaignNotRegistered    = errors.New("campaign metadata not registered")
	ErrCampaignNotCompleted     = errors.New("campaign not completed")
	ErrNotOwner                 = errors.New("caller is not the campaign owner")
	ErrNotAuthorized            = errors.New("caller is not authorized")
	ErrMilestoneNotFound        = errors.New("milestone not found")
	ErrMilestoneAlreadyReleased = errors.New("milestone already released")
	ErrMilestoneNotEligible     = errors.New("milestone not eligible")
	ErrPreviousPhaseUnreleased  = errors.New("previous milestone not released")
	ErrProofRequired            = errors.New("proof required")
	ErrInvalidSchedule          = errors.New("invalid milestone schedule")
	ErrInvalidAddress           = errors.New("invalid address")
	ErrInvalidTxHash            = errors.New("invalid transaction hash")
	ErrInvalidAmount            = errors.New("invalid amount")
)
