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

	"knative.dev/pkg/logging"

	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
	"github.com/kau-subtrack/subtrack-backend/pkg/events"
)

// IngestPickup handles a new parcel announcement. Announcements after the
// cut-off roll to tomorrow's schedule; re-announcing an assigned parcel is a
// no-op. Assignment is by district ownership and is final.
func (c *Core) IngestPickup(ctx context.Context, parcelID int64) (*IngestResponse, error) {
	now := c.now()

	parcel, err := c.store.FindParcel(ctx, parcelID)
	if err != nil {
		return nil, err
	}

	if !PickupCutoff.After(now) {
		district := c.geocoder.District(ctx, parcel.RecipientAddr)
		if district == "" {
			return nil, apierrors.Validation("could not determine district for %q", parcel.RecipientAddr)
		}
		driverID, ok := c.districts.DriverFor(PhasePickup, district)
		if !ok {
			return nil, fmt.Errorf("no pickup driver owns district %s", district)
		}
		tomorrow := now.AddDate(0, 0, 1)
		if err := c.store.AssignPickup(ctx, parcelID, driverID, tomorrow, false); err != nil {
			return nil, err
		}
		c.publisher.Publish(ctx, events.TypePickupAssigned, parcelID, driverID)
		IngestedParcels.WithLabelValues(StatusScheduledTomorrow).Inc()
		logging.FromContext(ctx).Infof("parcel %d announced after cutoff, scheduled %s for driver %d",
			parcelID, tomorrow.Format("2006-01-02"), driverID)
		return &IngestResponse{
			Status:        StatusScheduledTomorrow,
			Message:       "정오 12시 이후 요청은 다음날 수거로 처리됩니다.",
			ScheduledDate: tomorrow.Format("2006-01-02"),
			CutoffTime:    PickupCutoff.String(),
			CurrentTime:   now.Format("15:04"),
		}, nil
	}

	if parcel.PickupDriverID != nil {
		IngestedParcels.WithLabelValues(StatusAlreadyProcessed).Inc()
		return &IngestResponse{Status: StatusAlreadyProcessed}, nil
	}

	result := c.geocoder.Geocode(ctx, parcel.RecipientAddr)
	district := result.District
	if district == "" {
		return nil, apierrors.Validation("could not determine district for %q", parcel.RecipientAddr)
	}
	driverID, ok := c.districts.DriverFor(PhasePickup, district)
	if !ok {
		return nil, fmt.Errorf("no pickup driver owns district %s", district)
	}

	if err := c.store.AssignPickup(ctx, parcelID, driverID, now, true); err != nil {
		return nil, err
	}
	if err := c.store.ClearNextPickupTargets(ctx, driverID, parcelID); err != nil {
		logging.FromContext(ctx).Errorf("clearing stale next targets for driver %d, %s", driverID, err)
	}
	c.publisher.Publish(ctx, events.TypePickupAssigned, parcelID, driverID)
	IngestedParcels.WithLabelValues(StatusSuccess).Inc()
	logging.FromContext(ctx).Infof("parcel %d assigned to driver %d (%s)", parcelID, driverID, district)
	return &IngestResponse{
		Status:       StatusSuccess,
		ParcelID:     parcelID,
		District:     district,
		DriverID:     driverID,
		Coordinates:  &result.Location.Coordinate,
		ScheduledFor: "today",
	}, nil
}
