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

package lkh

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(SolveDuration, SolveCount)
}

var (
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lkhsolver",
			Subsystem: "solver",
			Name:      "duration_seconds",
			Help:      "Wall time of LKH runs, degenerate instances excluded.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		})
	SolveCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lkhsolver",
			Subsystem: "solver",
			Name:      "total",
			Help:      "Solve calls by outcome.",
		},
		[]string{"outcome"})
)
