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

package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/almoner/event"
)

func TestCampaignEventsAreScoped(t *testing.T) {
	payloads := []event.CampaignScoped{
		event.DonationEvent{CampaignID: 1},
		event.BalanceEvent{CampaignID: 2},
		event.WithdrawalEvent{CampaignID: 3},
		event.MilestoneEvent{CampaignID: 4},
		event.CompletedEvent{CampaignID: 5},
		event.ProofEvent{CampaignID: 6},
	}
	for i, p := range payloads {
		assert.Equal(t, uint64(i+1), p.EventCampaignID())
	}
	assert.Len(t, event.CampaignEventTypes, len(payloads))
}

func TestDonationEventJSON(t *testing.T) {
	evt := event.DonationEvent{
		CampaignID: 7,
		Donor:      "0x00000000000000000000000000000000000000aa",
		Amount:     "1000000000000000000000",
		TxHash:     "0xabc",
	}
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":"1000000000000000000000"`)
	assert.Contains(t, string(data), `"campaign_id":7`)
}

// Stop restarts the async worker pool so the bus stays usable
var ignoreAsyncWorkers = goleak.IgnoreTopFunction(
	"github.com/blinklabs-io/almoner/event.(*EventBus).asyncWorker",
)

func TestPublishAsyncDeliversCampaignEvent(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreAsyncWorkers)
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, ch := eb.Subscribe(event.CompletedEventType)
	ok := eb.PublishAsync(
		event.CompletedEventType,
		event.NewEvent(
			event.CompletedEventType,
			event.CompletedEvent{CampaignID: 9, FinalBalance: "1000"},
		),
	)
	require.True(t, ok)
	select {
	case evt := <-ch:
		data, ok := evt.Data.(event.CompletedEvent)
		require.True(t, ok)
		assert.Equal(t, uint64(9), data.CampaignID)
		assert.Equal(t, "1000", data.FinalBalance)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for async event")
	}
}

func TestEventMetrics(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreAsyncWorkers)
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)
	defer eb.Stop()
	_, _ = eb.Subscribe(event.ProofEventType)
	eb.Publish(event.ProofEventType, event.NewEvent(event.ProofEventType, event.ProofEvent{}))
	count, err := testutil.GatherAndCount(reg, "almoner_event_published_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
