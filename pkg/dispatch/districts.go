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
	"github.com/samber/lo"

	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
)

// DistrictMaps resolves a district to its owning driver, one mapping per
// phase. Immutable after construction; parcels are never reassigned between
// zones.
type DistrictMaps struct {
	pickup   map[string]int64
	delivery map[string]int64
}

// zoneDrivers pairs each coarse zone with its pickup and delivery driver.
// Zones 1:1 drivers is the deployed fleet shape; a bigger fleet would split
// zones here.
var zoneDrivers = map[string]struct{ Pickup, Delivery int64 }{
	"강북서부": {1, 6},
	"강북동부": {2, 7},
	"강북중부": {3, 8},
	"강남서부": {4, 9},
	"강남동부": {5, 10},
}

// DefaultDistrictMaps derives the per-district driver ownership from the
// zone grouping.
func DefaultDistrictMaps() *DistrictMaps {
	m := &DistrictMaps{
		pickup:   map[string]int64{},
		delivery: map[string]int64{},
	}
	for _, district := range geo.Districts() {
		drivers, ok := zoneDrivers[geo.ZoneForDistrict(district)]
		if !ok {
			continue
		}
		m.pickup[district] = drivers.Pickup
		m.delivery[district] = drivers.Delivery
	}
	return m
}

// DriverFor resolves the district's owning driver for the phase.
func (m *DistrictMaps) DriverFor(phase Phase, district string) (int64, bool) {
	if phase == PhaseDelivery {
		id, ok := m.delivery[district]
		return id, ok
	}
	id, ok := m.pickup[district]
	return id, ok
}

// IsDriver reports whether the id belongs to the phase's driver pool.
func (m *DistrictMaps) IsDriver(phase Phase, driverID int64) bool {
	if phase == PhaseDelivery {
		return lo.Contains(lo.Values(m.delivery), driverID)
	}
	return lo.Contains(lo.Values(m.pickup), driverID)
}

// Drivers returns the distinct driver ids of the phase's pool.
func (m *DistrictMaps) Drivers(phase Phase) []int64 {
	if phase == PhaseDelivery {
		return lo.Uniq(lo.Values(m.delivery))
	}
	return lo.Uniq(lo.Values(m.pickup))
}
