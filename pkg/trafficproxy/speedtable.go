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
	"sync/atomic"
	"time"
)

// Snapshot is one immutable harvest of live speeds keyed by OSM way id.
// Readers see either the previous sweep or this one, never a half-written
// mix.
type Snapshot struct {
	Speeds    map[int64]float64
	FetchedAt time.Time
}

// AverageSpeed returns the mean of all link speeds, or 0 for an empty
// snapshot.
func (s *Snapshot) AverageSpeed() float64 {
	if len(s.Speeds) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.Speeds {
		sum += v
	}
	return sum / float64(len(s.Speeds))
}

// SlowRatio reports the fraction of links below the given speed.
func (s *Snapshot) SlowRatio(threshold float64) float64 {
	if len(s.Speeds) == 0 {
		return 0
	}
	slow := 0
	for _, v := range s.Speeds {
		if v < threshold {
			slow++
		}
	}
	return float64(slow) / float64(len(s.Speeds))
}

// SpeedTable publishes harvest snapshots to the request path.
type SpeedTable struct {
	current atomic.Pointer[Snapshot]
}

func NewSpeedTable() *SpeedTable {
	t := &SpeedTable{}
	t.current.Store(&Snapshot{Speeds: map[int64]float64{}})
	return t
}

// Load returns the latest snapshot. Never nil.
func (t *SpeedTable) Load() *Snapshot {
	return t.current.Load()
}

// Publish replaces the current snapshot atomically.
func (t *SpeedTable) Publish(speeds map[int64]float64, fetchedAt time.Time) {
	t.current.Store(&Snapshot{Speeds: speeds, FetchedAt: fetchedAt})
}
