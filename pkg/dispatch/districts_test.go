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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kau-subtrack/subtrack-backend/pkg/dispatch"
	"github.com/kau-subtrack/subtrack-backend/pkg/geo"
)

var _ = Describe("DistrictMaps", func() {
	maps := dispatch.DefaultDistrictMaps()

	It("should pair each zone's pickup and delivery drivers", func() {
		for district, want := range map[string]struct{ pickup, delivery int64 }{
			"마포구": {1, 6},
			"노원구": {2, 7},
			"용산구": {3, 8},
			"관악구": {4, 9},
			"강남구": {5, 10},
		} {
			pickupID, ok := maps.DriverFor(dispatch.PhasePickup, district)
			Expect(ok).To(BeTrue(), district)
			Expect(pickupID).To(Equal(want.pickup), district)
			deliveryID, ok := maps.DriverFor(dispatch.PhaseDelivery, district)
			Expect(ok).To(BeTrue(), district)
			Expect(deliveryID).To(Equal(want.delivery), district)
		}
	})

	It("should cover every district in both phases", func() {
		for _, district := range geo.Districts() {
			_, ok := maps.DriverFor(dispatch.PhasePickup, district)
			Expect(ok).To(BeTrue(), district)
			_, ok = maps.DriverFor(dispatch.PhaseDelivery, district)
			Expect(ok).To(BeTrue(), district)
		}
	})

	It("should not recognize unmapped districts or drivers", func() {
		_, ok := maps.DriverFor(dispatch.PhasePickup, "수정구")
		Expect(ok).To(BeFalse())
		Expect(maps.IsDriver(dispatch.PhasePickup, 6)).To(BeFalse())
		Expect(maps.IsDriver(dispatch.PhaseDelivery, 6)).To(BeTrue())
	})

	It("should keep the pools disjoint", func() {
		pickup := maps.Drivers(dispatch.PhasePickup)
		delivery := maps.Drivers(dispatch.PhaseDelivery)
		Expect(pickup).To(ConsistOf(int64(1), int64(2), int64(3), int64(4), int64(5)))
		Expect(delivery).To(ConsistOf(int64(6), int64(7), int64(8), int64(9), int64(10)))
	})
})
