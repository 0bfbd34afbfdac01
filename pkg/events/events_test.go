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

package events_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kau-subtrack/subtrack-backend/pkg/events"
)

var _ = Describe("Producer", func() {
	It("should be nil without brokers", func() {
		Expect(events.NewProducer(nil)).To(BeNil())
	})

	It("should drop events and close cleanly as nil", func() {
		var producer *events.Producer
		Expect(func() {
			producer.Publish(context.Background(), events.TypePickupAssigned, 1, 1)
		}).ToNot(Panic())
		Expect(producer.Close()).To(Succeed())
	})
})
