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
	"sync"
)

// HubStatus tracks which drivers have reported back at the hub. Process
// local; a restart resets everyone to on-road, which the planner tolerates
// because position falls back to the hub anyway.
type HubStatus struct {
	mu      sync.Mutex
	arrived map[int64]bool
}

func NewHubStatus() *HubStatus {
	return &HubStatus{arrived: map[int64]bool{}}
}

func (h *HubStatus) Arrived(driverID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.arrived[driverID]
}

func (h *HubStatus) SetArrived(driverID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.arrived[driverID] = true
}

// Clear resets the driver to on-road when a new work cycle starts.
func (h *HubStatus) Clear(driverID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.arrived, driverID)
}
