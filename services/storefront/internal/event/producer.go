package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	pkgkafka "github.com/rajkumarkushi/sartree-ecommerce/pkg/kafka"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/domain"
)

// Kafka topic constants for storefront cart events.
const (
	TopicCartMerged = "storefront.cart.merged"
	TopicCartSynced = "storefront.cart.synced"
)

// AggregateTypeCart is the aggregate type of cart events.
const AggregateTypeCart = "cart"

// SourceStorefront identifies events originating from the storefront service.
const SourceStorefront = "storefront-service"

// CartMergedData is the payload of a cart.merged event.
type CartMergedData struct {
	UserID string `json:"user_id"`
	Merged int    `json:"merged"`
	Failed int    `json:"failed"`
}

// CartSyncedData is the payload of a cart.synced event.
type CartSyncedData struct {
	UserID    string          `json:"user_id"`
	Source    string          `json:"source"`
	ItemCount int             `json:"item_count"`
	Total     decimal.Decimal `json:"total"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes storefront cart events.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the storefront service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartMerged publishes a cart.merged event.
func (p *Producer) PublishCartMerged(ctx context.Context, userID string, merged, failed int) error {
	data := CartMergedData{UserID: userID, Merged: merged, Failed: failed}
	if err := p.publish(ctx, TopicCartMerged, userID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.merged event",
		slog.String("user_id", userID),
		slog.Int("merged", merged),
		slog.Int("failed", failed),
	)
	return nil
}

// PublishCartSynced publishes a cart.synced event.
func (p *Producer) PublishCartSynced(ctx context.Context, userID, source string, summary domain.Summary) error {
	data := CartSyncedData{
		UserID:    userID,
		Source:    source,
		ItemCount: summary.ItemCount,
		Total:     summary.Total,
	}
	if err := p.publish(ctx, TopicCartSynced, userID, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.synced event",
		slog.String("user_id", userID),
		slog.String("source", source),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, userID, AggregateTypeCart, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if device := logger.DeviceIDFromContext(ctx); device != "" {
		event.WithMetadata("device_id", device)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
