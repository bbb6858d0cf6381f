// Package event publishes promotion lifecycle events. Publishing is
// best-effort and always happens after the database commit; a lost event
// never rolls back a committed application.
package event

import (
	"context"
	"log/slog"
	"time"

	"github.com/clearcart/promotion-engine/internal/domain"
	"github.com/clearcart/promotion-engine/pkg/kafka"
)

// Topics for promotion events.
const (
	TopicCampaignCreated = "promotion.campaign.created"
	TopicCampaignUpdated = "promotion.campaign.updated"
	TopicDiscountApplied = "promotion.discount.applied"
)

const source = "promotion-engine"

// Publisher is the narrow producer surface the service needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Producer emits promotion domain events to Kafka.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates an event producer.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{publisher: publisher, logger: logger}
}

// CampaignCreated publishes a campaign.created event.
func (p *Producer) CampaignCreated(ctx context.Context, campaign *domain.Campaign) {
	p.publish(ctx, TopicCampaignCreated, "campaign.created", campaign.ID, campaign)
}

// CampaignUpdated publishes a campaign.updated event.
func (p *Producer) CampaignUpdated(ctx context.Context, campaign *domain.Campaign) {
	p.publish(ctx, TopicCampaignUpdated, "campaign.updated", campaign.ID, campaign)
}

// DiscountAppliedEvent is the payload for discount.applied events.
type DiscountAppliedEvent struct {
	CampaignID      string    `json:"campaign_id"`
	CampaignName    string    `json:"campaign_name"`
	UserID          string    `json:"user_id"`
	OrderID         string    `json:"order_id"`
	DiscountApplied int64     `json:"discount_applied"`
	OrderAmount     int64     `json:"order_amount"`
	FreeShipping    bool      `json:"free_shipping"`
	AppliedAt       time.Time `json:"applied_at"`
}

// DiscountApplied publishes a discount.applied event.
func (p *Producer) DiscountApplied(ctx context.Context, payload DiscountAppliedEvent) {
	p.publish(ctx, TopicDiscountApplied, "discount.applied", payload.CampaignID, payload)
}

func (p *Producer) publish(ctx context.Context, topic, eventType, aggregateID string, data any) {
	evt, err := kafka.NewEvent(eventType, aggregateID, "campaign", source, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build event",
			slog.String("event_type", eventType), slog.String("error", err.Error()))
		return
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		// Best-effort only; the state change has already committed.
		p.logger.WarnContext(ctx, "failed to publish event",
			slog.String("topic", topic),
			slog.String("event_type", eventType),
			slog.String("aggregate_id", aggregateID),
			slog.String("error", err.Error()),
		)
	}
}
