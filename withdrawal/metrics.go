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

package withdrawal

import (
	"errors"

	"github.com/blinklabs-io/almoner/campaign"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type withdrawalMetrics struct {
	confirmed  *prometheus.CounterVec
	idempotent prometheus.Counter
	rejected   *prometheus.CounterVec
}

func (m *withdrawalMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.confirmed = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "almoner_withdrawal_confirmed_total",
			Help: "total number of recorded withdrawals",
		},
		[]string{"recorded_by"},
	)
	m.idempotent = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "almoner_withdrawal_idempotent_total",
		Help: "total number of withdrawal confirmations for an already recorded transaction",
	})
	m.rejected = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "almoner_withdrawal_rejected_total",
			Help: "total number of rejected withdrawal requests",
		},
		[]string{"reason"},
	)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, campaign.ErrCampaignNotCompleted):
		return "not_completed"
	case errors.Is(err, campaign.ErrMilestoneAlreadyReleased):
		return "already_released"
	case errors.Is(err, campaign.ErrPreviousPhaseUnreleased):
		return "previous_phase"
	case errors.Is(err, campaign.ErrProofRequired):
		return "proof_required"
	case errors.Is(err, campaign.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, campaign.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, campaign.ErrMilestoneNotFound):
		return "milestone_not_found"
	case errors.Is(err, ErrAmountExceedsQuote):
		return "amount_exceeds_quote"
	case errors.Is(err, ErrTxHashConflict):
		return "tx_conflict"
	case errors.Is(err, ErrTransferMismatch):
		return "transfer_mismatch"
	default:
		return "other"
	}
}
