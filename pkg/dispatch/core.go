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

// Package dispatch holds the parcel lifecycle state machine and the
// per-driver dynamic re-routing planner. Each planner request recomputes the
// optimal next stop from the driver's current position over their
// outstanding parcels, using live-traffic travel times.
package dispatch

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/geocoder"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/optimizer"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/routing"
	"github.com/kau-subtrack/subtrack-backend/pkg/repository"
)

// ParcelStore is the repository surface the core depends on.
type ParcelStore interface {
	FindParcel(ctx context.Context, id int64) (*repository.Parcel, error)
	PendingPickupsForDriver(ctx context.Context, driverID int64) ([]repository.Parcel, error)
	PendingDeliveriesForDriver(ctx context.Context, driverID int64) ([]repository.Parcel, error)
	LastCompletedPickupLocation(ctx context.Context, driverID int64) (string, bool, error)
	LastCompletedDeliveryLocation(ctx context.Context, driverID int64) (string, bool, error)
	AssignPickup(ctx context.Context, parcelID, driverID int64, scheduled time.Time, markNext bool) error
	ClearNextPickupTargets(ctx context.Context, driverID, keepParcelID int64) error
	AssignDelivery(ctx context.Context, parcelID, driverID int64) error
	CompletePickup(ctx context.Context, parcelID int64) error
	CompleteDelivery(ctx context.Context, parcelID int64) error
	ConvertPickupToDelivery(ctx context.Context, parcelID int64) error
	TodayCompletedPickupsUnclaimedForDelivery(ctx context.Context) ([]repository.Parcel, error)
	TodayUnassignedDeliveries(ctx context.Context) ([]repository.Parcel, error)
	PendingPickupCountsByDriver(ctx context.Context) (map[int64]int, error)
	TodayCompletedPickupCount(ctx context.Context) (int, error)
}

// Geocoder resolves addresses; it degrades instead of failing.
type Geocoder interface {
	Geocode(ctx context.Context, address string) geocoder.Result
	District(ctx context.Context, address string) string
}

// Router computes travel-time matrices and turn-by-turn routes through the
// traffic proxy.
type Router interface {
	TimeDistanceMatrix(ctx context.Context, points []geo.Coordinate) ([][]float64, error)
	TurnByTurnRoute(ctx context.Context, from, to geo.Coordinate) (*routing.RouteResponse, error)
}

// Optimizer solves the tour over a travel-time matrix.
type Optimizer interface {
	Solve(ctx context.Context, matrix [][]float64) (*optimizer.Tour, error)
}

// Publisher emits parcel lifecycle events. Implementations must not fail the
// calling operation.
type Publisher interface {
	Publish(ctx context.Context, eventType string, parcelID, driverID int64)
}

// Core wires the state machine and planner to their collaborators.
type Core struct {
	store     ParcelStore
	geocoder  Geocoder
	router    Router
	optimizer Optimizer
	publisher Publisher
	hubStatus *HubStatus
	districts *DistrictMaps
	clock     clock.Clock
	loc       *time.Location
}

func NewCore(store ParcelStore, gc Geocoder, router Router, opt Optimizer, pub Publisher, loc *time.Location) *Core {
	return &Core{
		store:     store,
		geocoder:  gc,
		router:    router,
		optimizer: opt,
		publisher: pub,
		hubStatus: NewHubStatus(),
		districts: DefaultDistrictMaps(),
		clock:     clock.RealClock{},
		loc:       loc,
	}
}

// WithClock overrides the clock.
func (c *Core) WithClock(clk clock.Clock) *Core {
	c.clock = clk
	return c
}

// WithDistricts overrides the district ownership maps.
func (c *Core) WithDistricts(m *DistrictMaps) *Core {
	c.districts = m
	return c
}

// HubStatus exposes the hub arrival state for debug endpoints.
func (c *Core) HubStatus() *HubStatus {
	return c.hubStatus
}

func (c *Core) now() time.Time {
	return c.clock.Now().In(c.loc)
}

// pending loads the phase's outstanding parcels for the driver.
func (c *Core) pending(ctx context.Context, phase Phase, driverID int64) ([]repository.Parcel, error) {
	if phase == PhaseDelivery {
		return c.store.PendingDeliveriesForDriver(ctx, driverID)
	}
	return c.store.PendingPickupsForDriver(ctx, driverID)
}

// lastCompletedLocation returns the driver's most recent completed stop
// address today for the phase.
func (c *Core) lastCompletedLocation(ctx context.Context, phase Phase, driverID int64) (string, bool, error) {
	if phase == PhaseDelivery {
		return c.store.LastCompletedDeliveryLocation(ctx, driverID)
	}
	return c.store.LastCompletedPickupLocation(ctx, driverID)
}
