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

import "time"

// Tuning holds the LKH parameter set for one problem-size band. Larger
// instances get more runs and trials plus POPMUSIC candidate generation;
// only the biggest band pays for subgradient ascent.
type Tuning struct {
	Runs      int
	MaxTrials int
	TimeLimit time.Duration

	Popmusic             bool
	PopmusicSampleSize   int
	PopmusicSolutions    int
	PopmusicMaxNeighbors int
	Subgradient          bool
	AscentCandidates     int
}

// TuningFor selects the parameter band for an instance of n nodes.
func TuningFor(n int) Tuning {
	switch {
	case n <= 5:
		return Tuning{Runs: 3, MaxTrials: 500, TimeLimit: 5 * time.Second}
	case n <= 10:
		return Tuning{Runs: 5, MaxTrials: 1000, TimeLimit: 8 * time.Second}
	case n <= 20:
		return Tuning{
			Runs: 8, MaxTrials: 3000, TimeLimit: 12 * time.Second,
			Popmusic: true, PopmusicSampleSize: 8, PopmusicSolutions: 30, PopmusicMaxNeighbors: 3,
		}
	case n <= 50:
		return Tuning{
			Runs: 10, MaxTrials: 5000, TimeLimit: 15 * time.Second,
			Popmusic: true, PopmusicSampleSize: 10, PopmusicSolutions: 50, PopmusicMaxNeighbors: 5,
		}
	default:
		return Tuning{
			Runs: 12, MaxTrials: 8000, TimeLimit: 20 * time.Second,
			Popmusic: true, PopmusicSampleSize: 10, PopmusicSolutions: 50, PopmusicMaxNeighbors: 5,
			Subgradient: true, AscentCandidates: 30,
		}
	}
}
