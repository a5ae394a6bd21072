// Package events publishes ledger events to NATS JetStream. Publishing is
// best-effort: the write path logs and continues when NATS is unavailable.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/FacetBaths/stock-man-sub005/internal/models"
)

const (
	streamName = "STOCKMAN"

	SubjectTagAllocated  = "stockman.tag.allocated"
	SubjectTagFulfilled  = "stockman.tag.fulfilled"
	SubjectTagCancelled  = "stockman.tag.cancelled"
	SubjectStockReceived = "stockman.inventory.received"
	SubjectLowStock      = "stockman.inventory.low_stock"
)

// Event is the wire shape of every ledger event.
type Event struct {
	Type       string     `json:"type"`
	OccurredAt time.Time  `json:"occurred_at"`
	TagID      *uuid.UUID `json:"tag_id,omitempty"`
	SKUID      *uuid.UUID `json:"sku_id,omitempty"`
	SKUCode    string     `json:"sku_code,omitempty"`
	TagType    string     `json:"tag_type,omitempty"`
	Quantity   int        `json:"quantity,omitempty"`
	Reason     string     `json:"reason,omitempty"`

	InstancesRemoved []uuid.UUID               `json:"instances_removed,omitempty"`
	Snapshot         *models.InventorySnapshot `json:"snapshot,omitempty"`
}

// Publisher handles publishing ledger events to NATS JetStream.
type Publisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Entry
}

// NewPublisher connects to NATS and ensures the ledger stream exists.
func NewPublisher(natsURL string, logger *logrus.Logger) (*Publisher, error) {
	if natsURL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}

	log := logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("stock-man-publisher"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.StreamInfo(streamName); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     streamName,
			Subjects: []string{"stockman.>"},
			Storage:  nats.FileStorage,
		}); err != nil {
			log.WithError(err).Warn("Failed to ensure ledger stream exists")
		}
	}

	return &Publisher{
		nc:     nc,
		js:     js,
		logger: log.WithField("component", "ledger-events"),
	}, nil
}

// TagAllocated publishes a stockman.tag.allocated event.
func (p *Publisher) TagAllocated(ctx context.Context, tag *models.Tag, skuID uuid.UUID, quantity int) error {
	return p.publish(ctx, SubjectTagAllocated, Event{
		Type:       SubjectTagAllocated,
		OccurredAt: time.Now(),
		TagID:      &tag.ID,
		SKUID:      &skuID,
		TagType:    string(tag.TagType),
		Quantity:   quantity,
	})
}

// TagFulfilled publishes a stockman.tag.fulfilled event.
func (p *Publisher) TagFulfilled(ctx context.Context, tagID uuid.UUID, result *models.FulfillmentResult) error {
	return p.publish(ctx, SubjectTagFulfilled, Event{
		Type:             SubjectTagFulfilled,
		OccurredAt:       time.Now(),
		TagID:            &tagID,
		Quantity:         len(result.InstancesRemoved),
		InstancesRemoved: result.InstancesRemoved,
	})
}

// TagCancelled publishes a stockman.tag.cancelled event.
func (p *Publisher) TagCancelled(ctx context.Context, tag *models.Tag, reason string) error {
	return p.publish(ctx, SubjectTagCancelled, Event{
		Type:       SubjectTagCancelled,
		OccurredAt: time.Now(),
		TagID:      &tag.ID,
		TagType:    string(tag.TagType),
		Reason:     reason,
	})
}

// StockReceived publishes a stockman.inventory.received event.
func (p *Publisher) StockReceived(ctx context.Context, skuID uuid.UUID, skuCode string, quantity int) error {
	return p.publish(ctx, SubjectStockReceived, Event{
		Type:       SubjectStockReceived,
		OccurredAt: time.Now(),
		SKUID:      &skuID,
		SKUCode:    skuCode,
		Quantity:   quantity,
	})
}

// LowStock publishes a stockman.inventory.low_stock event.
func (p *Publisher) LowStock(ctx context.Context, snap *models.InventorySnapshot) error {
	return p.publish(ctx, SubjectLowStock, Event{
		Type:       SubjectLowStock,
		OccurredAt: time.Now(),
		SKUID:      &snap.SKUID,
		SKUCode:    snap.SKUCode,
		Quantity:   snap.AvailableQuantity,
		Snapshot:   snap,
	})
}

func (p *Publisher) publish(ctx context.Context, subject string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		p.logger.WithField("subject", subject).WithError(err).Error("Failed to publish event")
		return err
	}
	p.logger.WithField("subject", subject).Debug("Published event")
	return nil
}

// IsConnected returns true if connected to NATS.
func (p *Publisher) IsConnected() bool {
	return p != nil && p.nc != nil && p.nc.IsConnected()
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
