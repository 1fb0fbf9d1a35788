/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package timestamper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	metricspkg "github.com/nacrooks/materialize/pkg/metrics"
)

// timestampsMintedCount is used to indicate the number of global timestamps minted
var timestampsMintedCount = promauto.NewCounter(prometheus.CounterOpts{
	Subsystem: "timestamper",
	Name:      "timestamps_minted_total",
	Help:      "Total number of global timestamps minted",
})

// rtUpdatesCount is used to indicate the number of real-time updates persisted and forwarded
var rtUpdatesCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "timestamper",
	Name:      "rt_updates_total",
	Help:      "Total number of real-time timestamp updates",
}, []string{metricspkg.LabelSource, metricspkg.LabelView})

// byoAcceptedCount is used to indicate the number of accepted BYO updates
var byoAcceptedCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "timestamper",
	Name:      "byo_accepted_total",
	Help:      "Total number of accepted BYO timestamp updates",
}, []string{metricspkg.LabelSource, metricspkg.LabelView})

// byoViolationsCount is used to indicate the number of BYO updates dropped for protocol violations
var byoViolationsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "timestamper",
	Name:      "byo_violations_total",
	Help:      "Total number of BYO updates dropped for violating the timestamp assignment rules",
}, []string{metricspkg.LabelSource, metricspkg.LabelView})

// byoMalformedCount is used to indicate the number of unparseable BYO control messages
var byoMalformedCount = promauto.NewCounter(prometheus.CounterOpts{
	Subsystem: "timestamper",
	Name:      "byo_malformed_total",
	Help:      "Total number of malformed BYO control messages discarded",
})

// trackedSourcesGauge is used to indicate the number of tracked sources per consistency model
var trackedSourcesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "timestamper",
	Name:      "tracked_sources",
	Help:      "Number of currently tracked sources",
}, []string{metricspkg.LabelModel})
