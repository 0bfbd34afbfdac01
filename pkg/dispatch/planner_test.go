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
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/kau-subtrack/subtrack-backend/pkg/dispatch"
	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
	"github.com/kau-subtrack/subtrack-backend/pkg/fake"
	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
	"github.com/kau-subtrack/subtrack-backend/pkg/providers/routing"
	"github.com/kau-subtrack/subtrack-backend/pkg/repository"
)

var kst = time.FixedZone("KST", 9*3600)

type fixture struct {
	store     *fake.Store
	geocoder  *fake.Geocoder
	router    *fake.Router
	optimizer *fake.Optimizer
	publisher *fake.Publisher
	clock     *clocktesting.FakeClock
	core      *dispatch.Core
}

// newFixture wires a core around fakes with the clock frozen at the given
// local time today.
func newFixture(hour, minute int) *fixture {
	f := &fixture{
		store:     fake.NewStore(),
		geocoder:  fake.NewGeocoder(),
		router:    fake.NewRouter(),
		optimizer: fake.NewOptimizer(),
		publisher: fake.NewPublisher(),
		clock:     clocktesting.NewFakeClock(time.Date(2026, 8, 24, hour, minute, 0, 0, kst)),
	}
	f.core = dispatch.NewCore(f.store, f.geocoder, f.router, f.optimizer, f.publisher, kst).WithClock(f.clock)
	return f
}

// addPendingPickups seeds n pending pickups for the driver, ten minutes
// apart, and returns them in planner order (newest first).
func (f *fixture) addPendingPickups(driverID int64, n int) []repository.Parcel {
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, kst)
	for i := 0; i < n; i++ {
		f.store.Add(repository.Parcel{
			ID:             int64(100 + i),
			RecipientAddr:  fmt.Sprintf("서울시 강남구 테헤란로 %d", i+1),
			ProductName:    fmt.Sprintf("상품%d", i+1),
			Status:         repository.StatusPickupPending,
			PickupDriverID: lo.ToPtr(driverID),
			CreatedAt:      base.Add(time.Duration(i) * 10 * time.Minute),
		})
	}
	parcels := make([]repository.Parcel, 0, n)
	for i := n - 1; i >= 0; i-- {
		parcels = append(parcels, *f.store.Get(int64(100 + i)))
	}
	return parcels
}

var _ = Describe("NextDestination", func() {
	var ctx context.Context
	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should refuse drivers outside the phase pool", func() {
		f := newFixture(10, 0)
		_, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 99)
		Expect(apierrors.IsForbidden(err)).To(BeTrue())
	})

	It("should hold drivers before the window opens", func() {
		f := newFixture(6, 30)
		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusWaiting))
		Expect(resp.StartTime).To(Equal("07:00"))
		Expect(resp.CurrentTime).To(Equal("06:30"))
		Expect(resp.Message).To(ContainSubstring("0시간 30분 남았습니다"))
	})

	It("should hold delivery drivers until the afternoon", func() {
		f := newFixture(14, 0)
		resp, err := f.core.NextDestination(ctx, dispatch.PhaseDelivery, 6)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusWaiting))
		Expect(resp.StartTime).To(Equal("15:00"))
		Expect(resp.Message).To(ContainSubstring("1시간 0분 남았습니다"))
	})

	It("should route to the tour's first non-origin stop", func() {
		f := newFixture(10, 0)
		pending := f.addPendingPickups(1, 3)
		f.optimizer.Tour = []int{0, 2, 1, 3}

		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusSuccess))
		Expect(resp.AlgorithmUsed).To(Equal(dispatch.AlgorithmLKH))
		// Tour index 2 is the second outstanding stop.
		Expect(resp.NextDestination.ParcelID).To(Equal(pending[1].ID))
		Expect(resp.NextDestination.Address).To(Equal(pending[1].RecipientAddr))
		Expect(resp.Route).ToNot(BeNil())
		Expect(lo.FromPtr(resp.IsLast)).To(BeFalse())
		Expect(lo.FromPtr(resp.RemainingPickups)).To(Equal(3))
		Expect(resp.Remaining).To(BeNil())
	})

	It("should answer the delivery phase under its own remaining key", func() {
		f := newFixture(16, 0)
		f.store.Add(repository.Parcel{
			ID:               200,
			RecipientAddr:    "서울시 송파구 올림픽로 300",
			Status:           repository.StatusDeliveryPending,
			DeliveryDriverID: lo.ToPtr(int64(10)),
			CreatedAt:        time.Date(2026, 8, 24, 13, 0, 0, 0, kst),
		})
		resp, err := f.core.NextDestination(ctx, dispatch.PhaseDelivery, 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusSuccess))
		Expect(lo.FromPtr(resp.Remaining)).To(Equal(1))
		Expect(resp.RemainingPickups).To(BeNil())
	})

	It("should guard against a degenerate tour", func() {
		f := newFixture(10, 0)
		pending := f.addPendingPickups(1, 3)
		f.optimizer.Tour = []int{0, 0, 0, 0}

		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.NextDestination.ParcelID).To(Equal(pending[0].ID))
	})

	It("should degrade to the nearest stop when the optimizer fails", func() {
		f := newFixture(10, 0)
		pending := f.addPendingPickups(1, 3)
		f.optimizer.Err = apierrors.External(nil, "solver down")

		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusSuccess))
		Expect(resp.AlgorithmUsed).To(Equal(dispatch.AlgorithmNearest))
		Expect(resp.NextDestination.ParcelID).To(Equal(pending[0].ID))
	})

	It("should degrade to the nearest stop when the matrix fails", func() {
		f := newFixture(10, 0)
		f.addPendingPickups(1, 2)
		f.router.MatrixFunc = func([]geo.Coordinate) ([][]float64, error) {
			return nil, apierrors.External(nil, "matrix down")
		}
		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.AlgorithmUsed).To(Equal(dispatch.AlgorithmNearest))
		Expect(f.optimizer.Calls).To(Equal(0))
	})

	It("should answer routeless when guidance cannot be fetched", func() {
		f := newFixture(10, 0)
		f.addPendingPickups(1, 2)
		f.router.RouteFunc = func(_, _ geo.Coordinate) (*routing.RouteResponse, error) {
			return nil, apierrors.External(nil, "engine down")
		}
		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusSuccess))
		Expect(resp.AlgorithmUsed).To(Equal(dispatch.AlgorithmFallback))
		Expect(resp.Route).To(BeNil())
	})

	It("should synthesize waypoints when the route carries none", func() {
		f := newFixture(10, 0)
		f.addPendingPickups(1, 1)
		f.router.RouteFunc = func(_, _ geo.Coordinate) (*routing.RouteResponse, error) {
			return &routing.RouteResponse{Trip: &routing.Trip{Legs: []routing.Leg{{}}}}, nil
		}
		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Route.Waypoints).To(HaveLen(2))
		Expect(resp.Route.Waypoints[0].Name).To(Equal("현재위치"))
		Expect(resp.Route.Waypoints[1].Instruction).To(Equal("목적지 도착"))
		Expect(resp.Route.Coordinates).To(HaveLen(2))
	})

	It("should wait for orders before the cut-off with nothing outstanding", func() {
		f := newFixture(10, 0)
		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusWaitingForOrders))
		Expect(resp.CutoffTime).To(Equal("12:00"))
		Expect(lo.FromPtr(resp.IsLast)).To(BeFalse())
		Expect(lo.FromPtr(resp.RemainingPickups)).To(Equal(0))
	})

	It("should send an idle driver back to the hub after the cut-off", func() {
		f := newFixture(14, 0)
		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusReturnToHub))
		Expect(resp.NextDestination.Coordinate).To(Equal(geo.Hub.Coordinate))
		Expect(lo.FromPtr(resp.IsLast)).To(BeTrue())
		Expect(resp.Route.Waypoints).ToNot(BeEmpty())
		Expect(resp.DistanceToHub).To(Equal(1.5))
	})

	It("should rest an arrived driver at the hub", func() {
		f := newFixture(14, 0)
		f.core.HubStatus().SetArrived(2)
		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusAtHub))
		Expect(lo.FromPtr(resp.IsLast)).To(BeTrue())
	})

	It("should start a new cycle when work arrives after a hub arrival", func() {
		f := newFixture(10, 0)
		f.core.HubStatus().SetArrived(1)
		f.addPendingPickups(1, 1)
		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.Status).To(Equal(dispatch.StatusSuccess))
		Expect(f.core.HubStatus().Arrived(1)).To(BeFalse())
		// The cycle starts from the hub.
		Expect(resp.CurrentLocation.Coordinate).To(Equal(geo.Hub.Coordinate))
	})

	It("should plan from today's last completed stop", func() {
		f := newFixture(10, 0)
		completed := time.Date(2026, 8, 24, 9, 30, 0, 0, kst)
		f.store.Add(repository.Parcel{
			ID:                101,
			RecipientAddr:     "서울시 서초구 서초대로 100",
			Status:            repository.StatusPickupCompleted,
			PickupDriverID:    lo.ToPtr(int64(5)),
			PickupCompletedAt: &completed,
			CreatedAt:         completed.Add(-time.Hour),
		})
		f.store.Add(repository.Parcel{
			ID:             102,
			RecipientAddr:  "서울시 강남구 테헤란로 2",
			Status:         repository.StatusPickupPending,
			PickupDriverID: lo.ToPtr(int64(5)),
			CreatedAt:      completed,
		})
		resp, err := f.core.NextDestination(ctx, dispatch.PhasePickup, 5)
		Expect(err).ToNot(HaveOccurred())
		Expect(resp.CurrentLocation.Address).To(Equal("서울시 서초구 서초대로 100"))
	})
})
