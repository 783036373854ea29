// Package events mirrors bridge activity to Kafka for downstream analytics.
// Mirroring is best-effort: publish failures are logged and never affect
// event processing.
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current mirror event schema version
const SchemaVersion = "1.0"

// InboundMirror is the record published for each dispatched inbound event.
type InboundMirror struct {
	SchemaVersion string    `json:"schema_version"`
	Kind          string    `json:"kind"`
	AccountID     string    `json:"account_id"`
	EventID       string    `json:"event_id,omitempty"`
	EventType     string    `json:"event_type"`
	PodID         string    `json:"pod_id"`
	Body          string    `json:"body"`
	Timestamp     time.Time `json:"timestamp"`
}

// DeliveryMirror is the record published for each delivered reply block.
type DeliveryMirror struct {
	SchemaVersion string    `json:"schema_version"`
	Kind          string    `json:"kind"`
	AccountID     string    `json:"account_id"`
	EventID       string    `json:"event_id,omitempty"`
	PodID         string    `json:"pod_id"`
	DeliveryKind  string    `json:"delivery_kind"`
	MessageID     string    `json:"message_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Emitter publishes mirror records for the Fern bridge
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new mirror emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitInbound mirrors one dispatched inbound event.
func (e *Emitter) EmitInbound(ctx context.Context, accountID string, event models.Event, body string) {
	record := &InboundMirror{
		SchemaVersion: SchemaVersion,
		Kind:          "message.inbound",
		AccountID:     accountID,
		EventID:       event.ID,
		EventType:     event.Type,
		PodID:         event.PodID,
		Body:          body,
		Timestamp:     time.Now().UTC(),
	}

	headers := map[string]string{
		"account_id": accountID,
		"kind":       record.Kind,
	}

	if err := e.producer.Publish(ctx, accountID+":"+event.ID, record, headers); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to mirror inbound event")
	}
}

// EmitDelivery mirrors one delivered reply block.
func (e *Emitter) EmitDelivery(ctx context.Context, accountID string, event models.Event, deliveryKind string, messageID string) {
	record := &DeliveryMirror{
		SchemaVersion: SchemaVersion,
		Kind:          "message.outbound",
		AccountID:     accountID,
		EventID:       event.ID,
		PodID:         event.PodID,
		DeliveryKind:  deliveryKind,
		MessageID:     messageID,
		Timestamp:     time.Now().UTC(),
	}

	headers := map[string]string{
		"account_id": accountID,
		"kind":       record.Kind,
	}

	if err := e.producer.Publish(ctx, accountID+":"+event.ID, record, headers); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to mirror delivery")
	}
}
