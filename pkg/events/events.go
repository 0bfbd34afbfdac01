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

// Package events publishes parcel lifecycle events to Kafka. Publishing is
// fire-and-forget: a dispatch operation never fails because the broker is
// down.
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"knative.dev/pkg/logging"
)

const Topic = "parcel-events"

const (
	TypePickupAssigned    = "pickup.assigned"
	TypePickupCompleted   = "pickup.completed"
	TypeParcelConverted   = "parcel.converted"
	TypeDeliveryAssigned  = "delivery.assigned"
	TypeDeliveryCompleted = "delivery.completed"
)

type Event struct {
	EventID    string    `json:"eventId"`
	Type       string    `json:"type"`
	ParcelID   int64     `json:"parcelId"`
	DriverID   int64     `json:"driverId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Producer writes parcel events keyed by parcel id so per-parcel ordering is
// preserved within a partition. A nil Producer drops all events, which lets
// deployments without a broker run unchanged.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 100 * time.Millisecond,
			Async:        true,
		},
	}
}

// Publish emits one event. Errors are logged, never returned.
func (p *Producer) Publish(ctx context.Context, eventType string, parcelID, driverID int64) {
	if p == nil {
		return
	}
	event := Event{
		EventID:    uuid.NewString(),
		Type:       eventType,
		ParcelID:   parcelID,
		DriverID:   driverID,
		OccurredAt: time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		logging.FromContext(ctx).Errorf("encoding %s event for parcel %d, %s", eventType, parcelID, err)
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(parcelID, 10)),
		Value: value,
	}); err != nil {
		logging.FromContext(ctx).Errorf("publishing %s event for parcel %d, %s", eventType, parcelID, err)
	}
}

// Close flushes buffered messages.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
