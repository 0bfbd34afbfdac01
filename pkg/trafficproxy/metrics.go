/*
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

package trafficproxy

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(LinksHarvested, HarvestDuration, RewriteCount, ProxiedRequests)
}

var (
	LinksHarvested = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trafficproxy",
			Subsystem: "harvester",
			Name:      "links",
			Help:      "Number of link speeds in the current snapshot.",
		})
	HarvestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "trafficproxy",
			Subsystem: "harvester",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of full harvest sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		})
	RewriteCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trafficproxy",
			Subsystem: "rewrite",
			Name:      "total",
			Help:      "Responses rewritten with live speeds, by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"})
	ProxiedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trafficproxy",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Requests forwarded upstream, by endpoint and status code.",
		},
		[]string{"endpoint", "status"})
)
