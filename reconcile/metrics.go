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

package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type reconcileMetrics struct {
	donations   *prometheus.CounterVec
	completions prometheus.Counter
	closures    prometheus.Counter
	failures    prometheus.Counter
}

func (m *reconcileMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.donations = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "almoner_reconcile_donations_total",
			Help: "total number of reconciled donations by result",
		},
		[]string{"result"},
	)
	m.completions = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "almoner_reconcile_completions_total",
		Help: "total number of campaigns latched as completed",
	})
	m.closures = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "almoner_reconcile_closures_total",
		Help: "total number of campaigns marked closed",
	})
	m.failures = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "almoner_reconcile_failures_total",
		Help: "total number of failed reconciliations",
	})
}
