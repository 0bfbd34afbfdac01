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

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(PlannerRequests, PlannerAlgorithm, IngestedParcels, Completions)
}

var (
	PlannerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "planner",
			Name:      "requests_total",
			Help:      "Next-destination requests by phase and response status.",
		},
		[]string{"phase", "status"})
	PlannerAlgorithm = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "planner",
			Name:      "algorithm_total",
			Help:      "Planner outcomes by routing algorithm.",
		},
		[]string{"algorithm"})
	IngestedParcels = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Subsystem: "ingest",
			Name:      "parcels_total",
			Help:      "Ingested pickup announcements by outcome.",
		},
		[]string{"outcome"})
	Completions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "completions_total",
			Help:      "Completed stops by phase.",
		},
		[]string{"phase"})
)
