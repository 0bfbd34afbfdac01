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

package repository

import (
	"time"
)

// Status is the canonical parcel lifecycle state. Transitions are strictly
// forward in the declared order; soft deletion is a terminal sideline.
type Status string

const (
	StatusPickupPending     Status = "PICKUP_PENDING"
	StatusPickupCompleted   Status = "PICKUP_COMPLETED"
	StatusDeliveryPending   Status = "DELIVERY_PENDING"
	StatusDeliveryCompleted Status = "DELIVERY_COMPLETED"
)

var statusOrder = map[Status]int{
	StatusPickupPending:     0,
	StatusPickupCompleted:   1,
	StatusDeliveryPending:   2,
	StatusDeliveryCompleted: 3,
}

// After reports whether s comes at or after other in the lifecycle order.
func (s Status) After(other Status) bool {
	return statusOrder[s] >= statusOrder[other]
}

// LegacyAlias translates the canonical status to the vocabulary the driver
// app consumes on the wire. It is applied only at the response boundary.
func (s Status) LegacyAlias() string {
	switch s {
	case StatusPickupPending:
		return "PENDING"
	case StatusPickupCompleted:
		return "COMPLETED"
	case StatusDeliveryPending:
		return "IN_PROGRESS"
	default:
		return string(s)
	}
}

// Parcel mirrors a row of the Parcel table with owner and driver names
// joined in where the query provides them.
type Parcel struct {
	ID                   int64
	OwnerID              int64
	OwnerName            string
	Size                 string
	RecipientAddr        string
	RecipientName        string
	RecipientPhone       string
	ProductName          string
	Status               Status
	PickupDriverID       *int64
	PickupDriverName     string
	DeliveryDriverID     *int64
	DeliveryDriverName   string
	PickupScheduledDate  *time.Time
	PickupCompletedAt    *time.Time
	DeliveryCompletedAt  *time.Time
	IsNextPickupTarget   bool
	IsNextDeliveryTarget bool
	CreatedAt            time.Time
}

// StatusCounts aggregates parcel state for monitoring.
type StatusCounts struct {
	ByStatus               map[Status]int `json:"status_counts"`
	TodayPickupCompleted   int            `json:"pickup_completed"`
	TodayDeliveryCompleted int            `json:"delivery_completed"`
}
