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
	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/routing"
)

// Planner outcome statuses on the wire.
const (
	StatusWaiting           = "waiting"
	StatusWaitingForOrders  = "waiting_for_orders"
	StatusAtHub             = "at_hub"
	StatusReturnToHub       = "return_to_hub"
	StatusSuccess           = "success"
	StatusScheduledTomorrow = "scheduled_tomorrow"
	StatusAlreadyProcessed  = "already_processed"
)

// Tour algorithms reported in planner responses.
const (
	AlgorithmLKH      = "LKH_TSP"
	AlgorithmNearest  = "nearest"
	AlgorithmFallback = "fallback"
)

// Stop is one planner location: the driver's position, a parcel stop, or
// the hub.
type Stop struct {
	geo.Coordinate
	ParcelID int64  `json:"parcel_id,omitempty"`
	Name     string `json:"name"`
	Address  string `json:"address,omitempty"`
}

// NextResponse is the planner's answer to a next-destination request. The
// field set varies with Status; nil and zero optional fields stay off the
// wire. RemainingPickups and Remaining carry the same count under the key
// each phase's app expects.
type NextResponse struct {
	Status           string                 `json:"status"`
	Message          string                 `json:"message,omitempty"`
	StartTime        string                 `json:"start_time,omitempty"`
	CurrentTime      string                 `json:"current_time,omitempty"`
	CutoffTime       string                 `json:"cutoff_time,omitempty"`
	NextDestination  *Stop                  `json:"next_destination,omitempty"`
	Route            *routing.RouteResponse `json:"route,omitempty"`
	IsLast           *bool                  `json:"is_last,omitempty"`
	RemainingPickups *int                   `json:"remaining_pickups,omitempty"`
	Remaining        *int                   `json:"remaining,omitempty"`
	CurrentLocation  *Stop                  `json:"current_location,omitempty"`
	AlgorithmUsed    string                 `json:"algorithm_used,omitempty"`
	DistanceToHub    float64                `json:"distance_to_hub,omitempty"`
}

func (r *NextResponse) withRemaining(phase Phase, count int) *NextResponse {
	if phase == PhaseDelivery {
		r.Remaining = &count
	} else {
		r.RemainingPickups = &count
	}
	return r
}

// IngestResponse answers a new parcel announcement.
type IngestResponse struct {
	Status        string          `json:"status"`
	Message       string          `json:"message,omitempty"`
	ParcelID      int64           `json:"parcelId,omitempty"`
	District      string          `json:"district,omitempty"`
	DriverID      int64           `json:"driverId,omitempty"`
	Coordinates   *geo.Coordinate `json:"coordinates,omitempty"`
	ScheduledFor  string          `json:"scheduled_for,omitempty"`
	ScheduledDate string          `json:"scheduled_date,omitempty"`
	CutoffTime    string          `json:"cutoff_time,omitempty"`
	CurrentTime   string          `json:"current_time,omitempty"`
}

// CompleteResponse answers a completion call.
type CompleteResponse struct {
	Status           string `json:"status"`
	Message          string `json:"message"`
	AlreadyProcessed bool   `json:"already_processed,omitempty"`
	RemainingPickups *int   `json:"remaining_pickups,omitempty"`
	Remaining        *int   `json:"remaining,omitempty"`
	CompletedAt      string `json:"completed_at"`
}

// HubArrivedResponse confirms a hub arrival.
type HubArrivedResponse struct {
	Status      string       `json:"status"`
	Message     string       `json:"message"`
	Location    geo.Location `json:"location"`
	ArrivalTime string       `json:"arrival_time"`
}

// SweepResponse reports the all-pickups-completed check.
type SweepResponse struct {
	Completed      bool   `json:"completed"`
	Message        string `json:"message,omitempty"`
	Remaining      int    `json:"remaining,omitempty"`
	CompletedCount int    `json:"completed_count,omitempty"`
	DriverStatus   string `json:"driver_status,omitempty"`
	TotalConverted int    `json:"total_converted,omitempty"`
}

// ImportResponse reports the pickup-to-delivery conversion.
type ImportResponse struct {
	Status     string         `json:"status"`
	Converted  int            `json:"converted"`
	ByDistrict map[string]int `json:"by_district"`
}

// AssignResponse reports per-district delivery assignments.
type AssignResponse struct {
	Status      string                        `json:"status"`
	Assignments map[string]DistrictAssignment `json:"assignments"`
}

type DistrictAssignment struct {
	DriverID int64 `json:"driver_id"`
	Count    int   `json:"count"`
}
