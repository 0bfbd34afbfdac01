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
	"time"
)

// Phase is the half of the working day a driver operates in. Drivers are
// single-phase; pickup drivers hand their parcels to delivery drivers at the
// hub.
type Phase string

const (
	PhasePickup   Phase = "pickup"
	PhaseDelivery Phase = "delivery"
)

// Daily schedule in local time: pickups run from 07:00, new pickup requests
// after the 12:00 cut-off roll to tomorrow, deliveries start at 15:00.
var (
	PickupWindowOpen   = dayTime{7, 0}
	PickupCutoff       = dayTime{12, 0}
	DeliveryWindowOpen = dayTime{15, 0}
)

type dayTime struct {
	Hour   int
	Minute int
}

func (d dayTime) String() string {
	return time.Date(0, 1, 1, d.Hour, d.Minute, 0, 0, time.UTC).Format("15:04")
}

// After reports whether d is later in the day than t's clock time.
func (d dayTime) After(t time.Time) bool {
	return t.Hour() < d.Hour || (t.Hour() == d.Hour && t.Minute() < d.Minute)
}

// Until returns the hours and minutes left on the clock before d, assuming d
// is still ahead of t today.
func (d dayTime) Until(t time.Time) (int, int) {
	hours := d.Hour - t.Hour()
	minutes := d.Minute - t.Minute()
	if minutes < 0 {
		hours--
		minutes += 60
	}
	return hours, minutes
}

// WindowOpen returns the phase's daily start time.
func (p Phase) WindowOpen() dayTime {
	if p == PhaseDelivery {
		return DeliveryWindowOpen
	}
	return PickupWindowOpen
}
