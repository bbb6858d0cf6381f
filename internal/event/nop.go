package event

import (
	"context"

	"github.com/clearcart/promotion-engine/internal/domain"
)

// NopEmitter discards all events. Used when Kafka is disabled.
type NopEmitter struct{}

func (NopEmitter) CampaignCreated(context.Context, *domain.Campaign)  {}
func (NopEmitter) CampaignUpdated(context.Context, *domain.Campaign)  {}
func (NopEmitter) DiscountApplied(context.Context, DiscountAppliedEvent) {}
