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
	"sort"

	"knative.dev/pkg/logging"

	"github.com/kau-subtrack/subtrack-backend/pkg/events"
	"github.com/kau-subtrack/subtrack-backend/pkg/repository"
)

// AllPickupsCompleted checks whether any driver still has outstanding
// pickups; once none do, it converts today's completed pickups into
// deliveries and assigns them by district.
func (c *Core) AllPickupsCompleted(ctx context.Context) (*SweepResponse, error) {
	counts, err := c.store.PendingPickupCountsByDriver(ctx)
	if err != nil {
		return nil, err
	}
	completedCount, err := c.store.TodayCompletedPickupCount(ctx)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total > 0 {
		driverID := lowestPendingDriver(counts)
		return &SweepResponse{
			Completed:      false,
			Remaining:      total,
			CompletedCount: completedCount,
			DriverStatus:   fmt.Sprintf("Driver %d has %d pending", driverID, counts[driverID]),
		}, nil
	}

	if completedCount == 0 {
		return &SweepResponse{Completed: true, Message: "No pickups today"}, nil
	}

	imported, err := c.ImportDeliveries(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.AssignDeliveries(ctx); err != nil {
		return nil, err
	}
	return &SweepResponse{
		Completed:      true,
		Message:        "All pickups completed and converted to delivery",
		TotalConverted: imported.Converted,
	}, nil
}

func lowestPendingDriver(counts map[int64]int) int64 {
	ids := make([]int64, 0, len(counts))
	for id, n := range counts {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}

// ImportDeliveries converts today's completed pickups without a delivery
// driver into pending deliveries, reporting conversions per district.
// Individual conversion failures are logged and skipped.
func (c *Core) ImportDeliveries(ctx context.Context) (*ImportResponse, error) {
	completed, err := c.store.TodayCompletedPickupsUnclaimedForDelivery(ctx)
	if err != nil {
		return nil, err
	}

	converted := 0
	byDistrict := map[string]int{}
	for _, parcel := range completed {
		if err := c.store.ConvertPickupToDelivery(ctx, parcel.ID); err != nil {
			logging.FromContext(ctx).Errorf("converting parcel %d to delivery, %s", parcel.ID, err)
			continue
		}
		converted++
		// Conversion has no driver yet; assignment publishes its own event.
		c.publisher.Publish(ctx, events.TypeParcelConverted, parcel.ID, 0)
		if district := c.geocoder.District(ctx, parcel.RecipientAddr); district != "" {
			byDistrict[district]++
		}
	}
	logging.FromContext(ctx).Infof("converted %d pickups to deliveries across %d districts", converted, len(byDistrict))
	return &ImportResponse{Status: StatusSuccess, Converted: converted, ByDistrict: byDistrict}, nil
}

// AssignDeliveries hands every unassigned converted delivery to the driver
// owning its district. Parcels with no recognizable district stay unassigned
// for the next run.
func (c *Core) AssignDeliveries(ctx context.Context) (*AssignResponse, error) {
	unassigned, err := c.store.TodayUnassignedDeliveries(ctx)
	if err != nil {
		return nil, err
	}

	byDistrict := map[string][]repository.Parcel{}
	for _, parcel := range unassigned {
		district := c.geocoder.District(ctx, parcel.RecipientAddr)
		if district == "" {
			logging.FromContext(ctx).Warnf("no district recognized for parcel %d (%s)", parcel.ID, parcel.RecipientAddr)
			continue
		}
		byDistrict[district] = append(byDistrict[district], parcel)
	}

	assignments := map[string]DistrictAssignment{}
	for district, parcels := range byDistrict {
		driverID, ok := c.districts.DriverFor(PhaseDelivery, district)
		if !ok {
			logging.FromContext(ctx).Warnf("no delivery driver owns district %s", district)
			continue
		}
		count := 0
		for _, parcel := range parcels {
			if err := c.store.AssignDelivery(ctx, parcel.ID, driverID); err != nil {
				logging.FromContext(ctx).Errorf("assigning parcel %d to driver %d, %s", parcel.ID, driverID, err)
				continue
			}
			c.publisher.Publish(ctx, events.TypeDeliveryAssigned, parcel.ID, driverID)
			count++
		}
		assignments[district] = DistrictAssignment{DriverID: driverID, Count: count}
	}
	return &AssignResponse{Status: StatusSuccess, Assignments: assignments}, nil
}
