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
	"context"
	"fmt"

	"github.com/samber/lo"
	"knative.dev/pkg/logging"

	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/routing"
)

// NextDestination plans the driver's next stop: current position over all
// outstanding parcels, optimal tour from live-traffic travel times. External
// failures degrade through nearest-neighbor down to a routeless fallback;
// the request itself only fails on repository errors.
func (c *Core) NextDestination(ctx context.Context, phase Phase, driverID int64) (*NextResponse, error) {
	if !c.districts.IsDriver(phase, driverID) {
		return nil, apierrors.Forbidden("driver %d is not in the %s pool", driverID, phase)
	}
	now := c.now()
	open := phase.WindowOpen()
	if open.After(now) {
		PlannerRequests.WithLabelValues(string(phase), StatusWaiting).Inc()
		hours, minutes := open.Until(now)
		return &NextResponse{
			Status:      StatusWaiting,
			Message:     fmt.Sprintf("%s %d시간 %d분 남았습니다.", phaseWindowNotice(phase), hours, minutes),
			StartTime:   open.String(),
			CurrentTime: now.Format("15:04"),
		}, nil
	}

	pending, err := c.pending(ctx, phase, driverID)
	if err != nil {
		return nil, err
	}
	current := c.currentLocation(ctx, phase, driverID)

	if len(pending) == 0 {
		return c.planEmpty(ctx, phase, driverID, current)
	}

	// Outstanding work after a hub arrival starts a new cycle.
	if c.hubStatus.Arrived(driverID) {
		c.hubStatus.Clear(driverID)
		logging.FromContext(ctx).Infof("driver %d leaving hub for a new %s cycle", driverID, phase)
	}

	stops := make([]Stop, 0, len(pending))
	for _, parcel := range pending {
		result := c.geocoder.Geocode(ctx, parcel.RecipientAddr)
		stops = append(stops, Stop{
			Coordinate: result.Location.Coordinate,
			ParcelID:   parcel.ID,
			Name:       parcel.ProductName,
			Address:    parcel.RecipientAddr,
		})
	}

	next, route, algorithm := c.chooseNext(ctx, current, stops)
	PlannerRequests.WithLabelValues(string(phase), StatusSuccess).Inc()
	PlannerAlgorithm.WithLabelValues(algorithm).Inc()
	return (&NextResponse{
		Status:          StatusSuccess,
		NextDestination: &next,
		Route:           route,
		IsLast:          lo.ToPtr(false),
		CurrentLocation: &current,
		AlgorithmUsed:   algorithm,
	}).withRemaining(phase, len(pending)), nil
}

// currentLocation infers the driver's position: the hub after a reported
// arrival, else today's last completed stop, else the hub.
func (c *Core) currentLocation(ctx context.Context, phase Phase, driverID int64) Stop {
	if c.hubStatus.Arrived(driverID) {
		return hubStop()
	}
	address, ok, err := c.lastCompletedLocation(ctx, phase, driverID)
	if err != nil {
		logging.FromContext(ctx).Errorf("resolving last stop for driver %d, %s", driverID, err)
		return hubStop()
	}
	if !ok {
		return hubStop()
	}
	result := c.geocoder.Geocode(ctx, address)
	return Stop{Coordinate: result.Location.Coordinate, Name: result.CanonicalAddress, Address: address}
}

// planEmpty answers a planner request with no outstanding stops: done at the
// hub, waiting for orders before cut-off, or returning to the hub.
func (c *Core) planEmpty(ctx context.Context, phase Phase, driverID int64, current Stop) (*NextResponse, error) {
	now := c.now()
	if c.hubStatus.Arrived(driverID) {
		PlannerRequests.WithLabelValues(string(phase), StatusAtHub).Inc()
		return (&NextResponse{
			Status:          StatusAtHub,
			Message:         "허브에 도착했습니다. 수고하셨습니다!",
			CurrentLocation: &current,
			IsLast:          lo.ToPtr(true),
		}).withRemaining(phase, 0), nil
	}
	if phase == PhasePickup && PickupCutoff.After(now) {
		PlannerRequests.WithLabelValues(string(phase), StatusWaitingForOrders).Inc()
		return (&NextResponse{
			Status:          StatusWaitingForOrders,
			Message:         "현재 할당된 수거가 없습니다. 신규 요청을 대기 중입니다.",
			CurrentTime:     now.Format("15:04"),
			CutoffTime:      PickupCutoff.String(),
			CurrentLocation: &current,
			IsLast:          lo.ToPtr(false),
		}).withRemaining(phase, 0), nil
	}

	hub := hubStop()
	route := c.routeBetween(ctx, current, hub)
	var distanceToHub float64
	if route != nil && route.Trip != nil {
		distanceToHub = route.Trip.Summary.Length
	}
	PlannerRequests.WithLabelValues(string(phase), StatusReturnToHub).Inc()
	return (&NextResponse{
		Status:          StatusReturnToHub,
		Message:         "모든 작업이 완료되었습니다. 허브로 복귀해주세요.",
		NextDestination: &hub,
		Route:           route,
		IsLast:          lo.ToPtr(true),
		CurrentLocation: &current,
		DistanceToHub:   distanceToHub,
	}).withRemaining(phase, 0), nil
}

// chooseNext picks the next stop by optimal tour, degrading to
// nearest-neighbor when the matrix or optimizer is unavailable, and to a
// routeless fallback when guidance cannot be fetched either.
func (c *Core) chooseNext(ctx context.Context, current Stop, stops []Stop) (Stop, *routing.RouteResponse, string) {
	locations := append([]Stop{current}, stops...)
	algorithm := AlgorithmLKH
	nextIdx := 0

	points := lo.Map(locations, func(s Stop, _ int) geo.Coordinate { return s.Coordinate })
	matrix, err := c.router.TimeDistanceMatrix(ctx, points)
	if err == nil {
		tour, solveErr := c.optimizer.Solve(ctx, matrix)
		if solveErr == nil {
			nextIdx = nextStopIndex(tour.Order)
		} else {
			err = solveErr
		}
	}
	if err != nil {
		logging.FromContext(ctx).Warnf("tour optimization unavailable, using nearest stop, %s", err)
		algorithm = AlgorithmNearest
		nextIdx = 1
	}
	if nextIdx <= 0 || nextIdx >= len(locations) {
		nextIdx = 1
	}
	next := locations[nextIdx]

	route := c.routeBetween(ctx, current, next)
	if route == nil {
		algorithm = AlgorithmFallback
	}
	return next, route, algorithm
}

// nextStopIndex scans tour[1:] for the first index that is not the origin,
// guarding against degenerate tours; a tour of only origins falls back to 1.
func nextStopIndex(tour []int) int {
	for _, idx := range tour[1:] {
		if idx != 0 {
			return idx
		}
	}
	return 1
}

// routeBetween fetches turn-by-turn guidance and guarantees non-empty
// waypoints, synthesizing a straight two-point path when the engine returns
// no usable shape. Returns nil when the engine is unreachable.
func (c *Core) routeBetween(ctx context.Context, from, to Stop) *routing.RouteResponse {
	route, err := c.router.TurnByTurnRoute(ctx, from.Coordinate, to.Coordinate)
	if err != nil {
		logging.FromContext(ctx).Errorf("fetching route to %s, %s", to.Name, err)
		return nil
	}
	if len(route.Waypoints) == 0 {
		route.Waypoints = []routing.Waypoint{
			{Coordinate: from.Coordinate, Name: "현재위치", Instruction: "이동 시작"},
			{Coordinate: to.Coordinate, Name: to.Name, Instruction: "목적지 도착"},
		}
		route.Coordinates = []geo.Coordinate{from.Coordinate, to.Coordinate}
	}
	return route
}

func hubStop() Stop {
	return Stop{Coordinate: geo.Hub.Coordinate, Name: geo.Hub.Name}
}

func phaseWindowNotice(phase Phase) string {
	if phase == PhaseDelivery {
		return "배달은 오후 3시부터 시작됩니다."
	}
	return "수거는 오전 7시부터 시작됩니다."
}
