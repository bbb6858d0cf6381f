package repository

import (
	"context"
	"time"

	"github.com/clearcart/promotion-engine/internal/domain"
)

// CampaignFilter defines filter criteria for listing campaigns.
type CampaignFilter struct {
	Status     *string
	Type       *string
	TargetType *string
	Page       int
	PerPage    int
}

// CampaignRepository is the durable store of campaign definitions.
type CampaignRepository interface {
	// Create inserts a new campaign.
	Create(ctx context.Context, campaign *domain.Campaign) error

	// GetByID retrieves a campaign by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Campaign, error)

	// GetByCode retrieves a campaign by its (normalized) coupon code.
	GetByCode(ctx context.Context, code string) (*domain.Campaign, error)

	// List returns campaigns matching the filter with the total count.
	List(ctx context.Context, filter CampaignFilter) ([]domain.Campaign, int, error)

	// Update modifies an existing campaign.
	Update(ctx context.Context, campaign *domain.Campaign) error

	// FindActiveCandidates returns campaigns that are operationally active
	// at the given instant. Target matching happens in the evaluator; this
	// narrows by status, date window, and global usage headroom only.
	FindActiveCandidates(ctx context.Context, now time.Time) ([]domain.Campaign, error)
}

// UsageLedger is the append-only, transactional record of successful
// applications and the source of truth for usage counts. Counts are never
// served from a cache.
type UsageLedger interface {
	// CountForUser returns how many times the user has used the campaign.
	CountForUser(ctx context.Context, campaignID, userID string) (int, error)

	// RecordAtomic re-checks the campaign's global and per-user usage
	// headroom and, in the same atomic unit, appends the usage record and
	// increments the campaign's usage counter. It returns
	// errors.ErrUsageLimitReached when headroom is gone,
	// errors.ErrAlreadyExists on an idempotency-key replay, and
	// errors.ErrConflict for retryable write conflicts.
	RecordAtomic(ctx context.Context, record *domain.UsageRecord) error

	// FindByIdempotencyKey returns the usage record previously committed
	// under the given caller-supplied key, if any.
	FindByIdempotencyKey(ctx context.Context, campaignID, key string) (*domain.UsageRecord, error)
}
