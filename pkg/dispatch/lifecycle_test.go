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

package dispatch_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	"github.com/kau-subtrack/subtrack-backend/pkg/dispatch"
	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
	"github.com/kau-subtrack/subtrack-backend/pkg/events"
	"github.com/kau-subtrack/subtrack-backend/pkg/repository"
)

var _ = Describe("IngestPickup", func() {
	var ctx context.Context
	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should assign a morning announcement to the district's driver", func() {
		f := newFixture(10, 0)
		f.store.Add(repository.Parcel{
			ID:            777,
			RecipientAddr: "서울시 강남구 테헤란로 123",
			Status:        repository.StatusPickupPending,
			CreatedAt:     f.clock.Now(),
		})
		resp, err := f.core.IngestPickup(ctx, 777)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusSuccess))
		Expect(resp.District).To(Equal("강남구"))
		Expect(resp.DriverID).To(Equal(int64(5)))
		Expect(resp.Coordinates).ToNot(BeNil())
		Expect(resp.ScheduledFor).To(Equal("today"))

		parcel := f.store.Get(777)
		Expect(lo.FromPtr(parcel.PickupDriverID)).To(Equal(int64(5)))
		Expect(parcel.IsNextPickupTarget).To(BeTrue())
		Expect(f.publisher.ByType(events.TypePickupAssigned)).To(HaveLen(1))
	})

	It("should roll an announcement after the cut-off to tomorrow", func() {
		f := newFixture(13, 15)
		f.store.Add(repository.Parcel{
			ID:            777,
			RecipientAddr: "서울시 강남구 테헤란로 123",
			Status:        repository.StatusPickupPending,
			CreatedAt:     f.clock.Now(),
		})
		resp, err := f.core.IngestPickup(ctx, 777)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusScheduledTomorrow))
		Expect(resp.ScheduledDate).To(Equal("2026-08-25"))
		Expect(resp.CutoffTime).To(Equal("12:00"))
		Expect(resp.CurrentTime).To(Equal("13:15"))

		parcel := f.store.Get(777)
		Expect(lo.FromPtr(parcel.PickupDriverID)).To(Equal(int64(5)))
		Expect(parcel.IsNextPickupTarget).To(BeFalse())
		Expect(parcel.PickupScheduledDate.Day()).To(Equal(25))
	})

	It("should answer a re-announcement idempotently", func() {
		f := newFixture(10, 0)
		f.store.Add(repository.Parcel{
			ID:             777,
			RecipientAddr:  "서울시 강남구 테헤란로 123",
			Status:         repository.StatusPickupPending,
			PickupDriverID: lo.ToPtr(int64(5)),
			CreatedAt:      f.clock.Now(),
		})
		resp, err := f.core.IngestPickup(ctx, 777)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusAlreadyProcessed))
		Expect(f.publisher.Events).To(BeEmpty())
	})

	It("should reject addresses with no recognizable district", func() {
		f := newFixture(10, 0)
		f.store.Add(repository.Parcel{
			ID:            777,
			RecipientAddr: "세종특별자치시 한누리대로 2130",
			Status:        repository.StatusPickupPending,
			CreatedAt:     f.clock.Now(),
		})
		_, err := f.core.IngestPickup(ctx, 777)
		Expect(apierrors.IsValidation(err)).To(BeTrue())
	})

	It("should surface an unknown parcel as not found", func() {
		f := newFixture(10, 0)
		_, err := f.core.IngestPickup(ctx, 1)
		Expect(apierrors.IsNotFound(err)).To(BeTrue())
	})
})

var _ = Describe("Complete", func() {
	var ctx context.Context
	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should complete a pickup and report the remaining count", func() {
		f := newFixture(10, 0)
		pending := f.addPendingPickups(1, 3)

		resp, err := f.core.Complete(ctx, dispatch.PhasePickup, 1, pending[0].ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusSuccess))
		Expect(resp.AlreadyProcessed).To(BeFalse())
		Expect(lo.FromPtr(resp.RemainingPickups)).To(Equal(2))
		Expect(resp.CompletedAt).To(Equal("2026-08-24T10:00:00+09:00"))

		Expect(f.store.Get(pending[0].ID).Status).To(Equal(repository.StatusPickupCompleted))
		Expect(f.publisher.ByType(events.TypePickupCompleted)).To(HaveLen(1))
	})

	It("should answer a repeated completion idempotently", func() {
		f := newFixture(10, 0)
		pending := f.addPendingPickups(1, 1)
		_, err := f.core.Complete(ctx, dispatch.PhasePickup, 1, pending[0].ID)
		Expect(err).ToNot(HaveOccurred())

		resp, err := f.core.Complete(ctx, dispatch.PhasePickup, 1, pending[0].ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.AlreadyProcessed).To(BeTrue())
		Expect(f.publisher.ByType(events.TypePickupCompleted)).To(HaveLen(1))
	})

	It("should refuse a completion by the wrong driver", func() {
		f := newFixture(10, 0)
		pending := f.addPendingPickups(1, 1)
		_, err := f.core.Complete(ctx, dispatch.PhasePickup, 2, pending[0].ID)
		Expect(apierrors.IsForbidden(err)).To(BeTrue())
	})

	It("should complete a delivery under its own remaining key", func() {
		f := newFixture(16, 0)
		f.store.Add(repository.Parcel{
			ID:               300,
			RecipientAddr:    "서울시 송파구 올림픽로 300",
			Status:           repository.StatusDeliveryPending,
			DeliveryDriverID: lo.ToPtr(int64(10)),
			CreatedAt:        f.clock.Now(),
		})
		resp, err := f.core.Complete(ctx, dispatch.PhaseDelivery, 10, 300)
		Expect(err).ToNot(HaveOccurred())
		Expect(lo.FromPtr(resp.Remaining)).To(Equal(0))
		Expect(resp.RemainingPickups).To(BeNil())
		Expect(f.store.Get(300).Status).To(Equal(repository.StatusDeliveryCompleted))
		Expect(f.publisher.ByType(events.TypeDeliveryCompleted)).To(HaveLen(1))
	})
})

var _ = Describe("HubArrived", func() {
	var ctx context.Context
	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should gate arrival on an empty outstanding list", func() {
		f := newFixture(11, 0)
		f.addPendingPickups(1, 1)

		_, err := f.core.HubArrived(ctx, dispatch.PhasePickup, 1)
		Expect(apierrors.IsValidation(err)).To(BeTrue())
		var reqErr *apierrors.RequestError
		Expect(errors.As(err, &reqErr)).To(BeTrue())
		Expect(reqErr.Details).To(HaveKeyWithValue("remaining_pickups", 1))
		Expect(f.core.HubStatus().Arrived(1)).To(BeFalse())
	})

	It("should name the delivery detail key in the delivery phase", func() {
		f := newFixture(16, 0)
		f.store.Add(repository.Parcel{
			ID:               300,
			RecipientAddr:    "서울시 송파구 올림픽로 300",
			Status:           repository.StatusDeliveryPending,
			DeliveryDriverID: lo.ToPtr(int64(10)),
			CreatedAt:        f.clock.Now(),
		})
		_, err := f.core.HubArrived(ctx, dispatch.PhaseDelivery, 10)
		var reqErr *apierrors.RequestError
		Expect(errors.As(err, &reqErr)).To(BeTrue())
		Expect(reqErr.Details).To(HaveKeyWithValue("remaining_deliveries", 1))
	})

	It("should record the arrival when the driver is done", func() {
		f := newFixture(14, 30)
		resp, err := f.core.HubArrived(ctx, dispatch.PhasePickup, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusSuccess))
		Expect(resp.Location.Name).To(Equal("용산역"))
		Expect(resp.ArrivalTime).To(Equal("14:30"))
		Expect(f.core.HubStatus().Arrived(1)).To(BeTrue())
	})

	It("should refuse drivers outside the phase pool", func() {
		f := newFixture(14, 30)
		_, err := f.core.HubArrived(ctx, dispatch.PhasePickup, 10)
		Expect(apierrors.IsForbidden(err)).To(BeTrue())
	})
})

var _ = Describe("AllPickupsCompleted", func() {
	var ctx context.Context
	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should report the lowest driver still out", func() {
		f := newFixture(13, 0)
		f.addPendingPickups(3, 2)
		f.store.Add(repository.Parcel{
			ID:             500,
			RecipientAddr:  "서울시 마포구 월드컵로 10",
			Status:         repository.StatusPickupPending,
			PickupDriverID: lo.ToPtr(int64(1)),
			CreatedAt:      f.clock.Now(),
		})
		resp, err := f.core.AllPickupsCompleted(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Completed).To(BeFalse())
		Expect(resp.Remaining).To(Equal(3))
		Expect(resp.DriverStatus).To(Equal("Driver 1 has 1 pending"))
	})

	It("should report an empty day", func() {
		f := newFixture(13, 0)
		resp, err := f.core.AllPickupsCompleted(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Completed).To(BeTrue())
		Expect(resp.Message).To(Equal("No pickups today"))
	})

	It("should convert and assign once every pickup is done", func() {
		f := newFixture(13, 0)
		f.store.Add(repository.Parcel{
			ID:             600,
			RecipientAddr:  "서울시 강남구 테헤란로 1",
			Status:         repository.StatusPickupCompleted,
			PickupDriverID: lo.ToPtr(int64(5)),
			CreatedAt:      f.clock.Now(),
		})
		f.store.Add(repository.Parcel{
			ID:             601,
			RecipientAddr:  "서울시 마포구 월드컵로 10",
			Status:         repository.StatusPickupCompleted,
			PickupDriverID: lo.ToPtr(int64(1)),
			CreatedAt:      f.clock.Now(),
		})
		resp, err := f.core.AllPickupsCompleted(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Completed).To(BeTrue())
		Expect(resp.TotalConverted).To(Equal(2))

		// Each parcel is now a pending delivery owned by its district's
		// delivery driver.
		Expect(f.store.Get(600).Status).To(Equal(repository.StatusDeliveryPending))
		Expect(lo.FromPtr(f.store.Get(600).DeliveryDriverID)).To(Equal(int64(10)))
		Expect(lo.FromPtr(f.store.Get(601).DeliveryDriverID)).To(Equal(int64(6)))
		Expect(f.publisher.ByType(events.TypeParcelConverted)).To(HaveLen(2))
		Expect(f.publisher.ByType(events.TypeDeliveryAssigned)).To(HaveLen(2))
	})
})

var _ = Describe("AssignDeliveries", func() {
	It("should leave parcels without a district for the next run", func() {
		f := newFixture(13, 0)
		f.store.Add(repository.Parcel{
			ID:            700,
			RecipientAddr: "세종특별자치시 한누리대로 2130",
			Status:        repository.StatusDeliveryPending,
			CreatedAt:     f.clock.Now(),
		})
		resp, err := f.core.AssignDeliveries(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Assignments).To(BeEmpty())
		Expect(f.store.Get(700).DeliveryDriverID).To(BeNil())
	})

	It("should group assignments per district", func() {
		f := newFixture(13, 0)
		f.store.Add(repository.Parcel{
			ID:            701,
			RecipientAddr: "서울시 송파구 올림픽로 1",
			Status:        repository.StatusDeliveryPending,
			CreatedAt:     f.clock.Now(),
		})
		f.store.Add(repository.Parcel{
			ID:            702,
			RecipientAddr: "서울시 송파구 올림픽로 2",
			Status:        repository.StatusDeliveryPending,
			CreatedAt:     f.clock.Now(),
		})
		resp, err := f.core.AssignDeliveries(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Assignments).To(HaveKeyWithValue("송파구",
			dispatch.DistrictAssignment{DriverID: 10, Count: 2}))
	})
})
