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

	"github.com/samber/lo"
	"knative.dev/pkg/logging"

	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
	"github.com/kau-subtrack/subtrack-backend/pkg/events"
	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
	"github.com/kau-subtrack/subtrack-backend/pkg/repository"
)

// Complete marks the parcel's current phase step done for the calling
// driver. Repeating a completion is answered idempotently instead of
// erroring.
func (c *Core) Complete(ctx context.Context, phase Phase, driverID, parcelID int64) (*CompleteResponse, error) {
	parcel, err := c.store.FindParcel(ctx, parcelID)
	if err != nil {
		return nil, err
	}

	var assignedDriver *int64
	var completedStatus repository.Status
	var eventType string
	if phase == PhaseDelivery {
		assignedDriver = parcel.DeliveryDriverID
		completedStatus = repository.StatusDeliveryCompleted
		eventType = events.TypeDeliveryCompleted
	} else {
		assignedDriver = parcel.PickupDriverID
		completedStatus = repository.StatusPickupCompleted
		eventType = events.TypePickupCompleted
	}
	if assignedDriver == nil || *assignedDriver != driverID {
		return nil, apierrors.Forbidden("parcel %d is not assigned to driver %d", parcelID, driverID)
	}

	if parcel.Status.After(completedStatus) {
		return c.completeResponse(ctx, phase, driverID, &CompleteResponse{
			Status:           StatusSuccess,
			Message:          "이미 처리된 항목입니다.",
			AlreadyProcessed: true,
		})
	}

	if phase == PhaseDelivery {
		err = c.store.CompleteDelivery(ctx, parcelID)
	} else {
		err = c.store.CompletePickup(ctx, parcelID)
	}
	if err != nil {
		return nil, err
	}
	c.publisher.Publish(ctx, eventType, parcelID, driverID)
	Completions.WithLabelValues(string(phase)).Inc()
	logging.FromContext(ctx).Infof("driver %d completed %s of parcel %d", driverID, phase, parcelID)
	return c.completeResponse(ctx, phase, driverID, &CompleteResponse{
		Status:  StatusSuccess,
		Message: "처리가 완료되었습니다.",
	})
}

func (c *Core) completeResponse(ctx context.Context, phase Phase, driverID int64, resp *CompleteResponse) (*CompleteResponse, error) {
	pending, err := c.pending(ctx, phase, driverID)
	if err != nil {
		return nil, err
	}
	if phase == PhaseDelivery {
		resp.Remaining = lo.ToPtr(len(pending))
	} else {
		resp.RemainingPickups = lo.ToPtr(len(pending))
	}
	resp.CompletedAt = c.now().Format("2006-01-02T15:04:05-07:00")
	return resp, nil
}

// HubArrived records the driver back at the hub. Gated on an empty
// outstanding list so a driver cannot close their cycle early.
func (c *Core) HubArrived(ctx context.Context, phase Phase, driverID int64) (*HubArrivedResponse, error) {
	if !c.districts.IsDriver(phase, driverID) {
		return nil, apierrors.Forbidden("driver %d is not in the %s pool", driverID, phase)
	}
	pending, err := c.pending(ctx, phase, driverID)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		key := "remaining_pickups"
		if phase == PhaseDelivery {
			key = "remaining_deliveries"
		}
		return nil, apierrors.Validation("driver %d still has outstanding %s stops", driverID, phase).
			WithDetail(key, len(pending))
	}
	c.hubStatus.SetArrived(driverID)
	logging.FromContext(ctx).Infof("driver %d arrived at hub", driverID)
	return &HubArrivedResponse{
		Status:      StatusSuccess,
		Message:     "허브 도착이 완료되었습니다. 수고하셨습니다!",
		Location:    geo.Hub,
		ArrivalTime: c.now().Format("15:04"),
	}, nil
}
