// Package rediscache decorates the campaign repository with a Redis
// read-through cache for code and ID lookups. Usage counts are excluded on
// purpose; the ledger is always the source of truth for counts, so cached
// campaigns carry a possibly stale CurrentUsageCount and the commit path
// re-checks limits transactionally.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearcart/promotion-engine/internal/domain"
	"github.com/clearcart/promotion-engine/internal/repository"
)

const (
	idKeyPrefix   = "promotion:campaign:id:"
	codeKeyPrefix = "promotion:campaign:code:"
)

// CampaignCache wraps a CampaignRepository, serving GetByID and GetByCode
// from Redis when possible. Cache failures degrade to the inner repository;
// they are logged, never surfaced.
type CampaignCache struct {
	inner  repository.CampaignRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCampaignCache creates a caching decorator with the given entry TTL.
func NewCampaignCache(inner repository.CampaignRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CampaignCache {
	return &CampaignCache{inner: inner, client: client, ttl: ttl, logger: logger}
}

// Create passes through and primes nothing; entries are cached on first read.
func (c *CampaignCache) Create(ctx context.Context, campaign *domain.Campaign) error {
	return c.inner.Create(ctx, campaign)
}

// GetByID serves from cache, falling back to the inner repository.
func (c *CampaignCache) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	if cached := c.get(ctx, idKeyPrefix+id); cached != nil {
		return cached, nil
	}

	campaign, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, idKeyPrefix+id, campaign)
	return campaign, nil
}

// GetByCode serves from cache, falling back to the inner repository. Keys
// use the normalized code so lookups stay case-insensitive.
func (c *CampaignCache) GetByCode(ctx context.Context, code string) (*domain.Campaign, error) {
	key := codeKeyPrefix + domain.NormalizeCode(code)
	if cached := c.get(ctx, key); cached != nil {
		return cached, nil
	}

	campaign, err := c.inner.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, campaign)
	return campaign, nil
}

// List always goes to the inner repository; listings are not cached.
func (c *CampaignCache) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	return c.inner.List(ctx, filter)
}

// Update writes through and invalidates both cache keys for the campaign.
func (c *CampaignCache) Update(ctx context.Context, campaign *domain.Campaign) error {
	if err := c.inner.Update(ctx, campaign); err != nil {
		return err
	}
	c.invalidate(ctx, campaign)
	return nil
}

// FindActiveCandidates always goes to the inner repository; the automatic
// evaluation path needs fresh usage counters.
func (c *CampaignCache) FindActiveCandidates(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	return c.inner.FindActiveCandidates(ctx, now)
}

func (c *CampaignCache) get(ctx context.Context, key string) *domain.Campaign {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "campaign cache read failed", "key", key, "error", err)
		}
		return nil
	}

	var campaign domain.Campaign
	if err := json.Unmarshal(raw, &campaign); err != nil {
		c.logger.WarnContext(ctx, "campaign cache entry corrupt, dropping", "key", key, "error", err)
		c.client.Del(ctx, key)
		return nil
	}
	return &campaign
}

func (c *CampaignCache) set(ctx context.Context, key string, campaign *domain.Campaign) {
	raw, err := json.Marshal(campaign)
	if err != nil {
		c.logger.WarnContext(ctx, "campaign cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "campaign cache write failed", "key", key, "error", err)
	}
}

func (c *CampaignCache) invalidate(ctx context.Context, campaign *domain.Campaign) {
	keys := []string{idKeyPrefix + campaign.ID}
	if campaign.Code != "" {
		keys = append(keys, codeKeyPrefix+domain.NormalizeCode(campaign.Code))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WarnContext(ctx, "campaign cache invalidation failed", "campaign_id", campaign.ID, "error", err)
	}
}

var _ repository.CampaignRepository = (*CampaignCache)(nil)
