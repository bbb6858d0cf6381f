// Package memory provides mutex-guarded in-memory implementations of the
// campaign repository and usage ledger. They back local development mode
// and concurrency tests; semantics mirror the PostgreSQL implementations,
// including the atomic limit re-check on commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clearcart/promotion-engine/internal/domain"
	"github.com/clearcart/promotion-engine/internal/repository"
	apperrors "github.com/clearcart/promotion-engine/pkg/errors"
)

// Store holds campaigns and usage records behind a single mutex. One lock
// keeps RecordAtomic's check-then-append genuinely atomic.
type Store struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	usages    []domain.UsageRecord
	byIdemKey map[string]int
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		campaigns: make(map[string]*domain.Campaign),
		byIdemKey: make(map[string]int),
	}
}

func clone(c *domain.Campaign) *domain.Campaign {
	cp := *c
	cp.TargetMarketIDs = append([]string(nil), c.TargetMarketIDs...)
	cp.TargetProductIDs = append([]string(nil), c.TargetProductIDs...)
	cp.TargetUserIDs = append([]string(nil), c.TargetUserIDs...)
	cp.TargetCategories = append([]string(nil), c.TargetCategories...)
	if c.BuyXGetY != nil {
		bc := *c.BuyXGetY
		bc.BuyProductIDs = append([]string(nil), c.BuyXGetY.BuyProductIDs...)
		bc.GetProductIDs = append([]string(nil), c.BuyXGetY.GetProductIDs...)
		cp.BuyXGetY = &bc
	}
	return &cp
}

// Create inserts a new campaign. The campaign ID and, when present, the
// normalized code must be unique.
func (s *Store) Create(_ context.Context, campaign *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[campaign.ID]; ok {
		return apperrors.AlreadyExists("campaign", "id", campaign.ID)
	}
	if campaign.Code != "" {
		code := domain.NormalizeCode(campaign.Code)
		for _, existing := range s.campaigns {
			if existing.Code != "" && domain.NormalizeCode(existing.Code) == code {
				return apperrors.AlreadyExists("campaign", "code", campaign.Code)
			}
		}
	}

	s.campaigns[campaign.ID] = clone(campaign)
	return nil
}

// GetByID retrieves a campaign by ID.
func (s *Store) GetByID(_ context.Context, id string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, apperrors.NotFound("campaign", id)
	}
	return clone(c), nil
}

// GetByCode retrieves a campaign by its normalized coupon code.
func (s *Store) GetByCode(_ context.Context, code string) (*domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := domain.NormalizeCode(code)
	for _, c := range s.campaigns {
		if c.Code != "" && domain.NormalizeCode(c.Code) == normalized {
			return clone(c), nil
		}
	}
	return nil, apperrors.NotFound("campaign", code)
}

// List returns campaigns matching the filter, newest first, with the total
// match count before pagination.
func (s *Store) List(_ context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*domain.Campaign
	for _, c := range s.campaigns {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && c.Type != *filter.Type {
			continue
		}
		if filter.TargetType != nil && c.TargetType != *filter.TargetType {
			continue
		}
		matched = append(matched, c)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	start := (page - 1) * perPage
	if start >= total {
		return []domain.Campaign{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}

	out := make([]domain.Campaign, 0, end-start)
	for _, c := range matched[start:end] {
		out = append(out, *clone(c))
	}
	return out, total, nil
}

// Update replaces an existing campaign.
func (s *Store) Update(_ context.Context, campaign *domain.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.campaigns[campaign.ID]
	if !ok {
		return apperrors.NotFound("campaign", campaign.ID)
	}
	if campaign.Code != "" {
		code := domain.NormalizeCode(campaign.Code)
		for id, existing := range s.campaigns {
			if id != campaign.ID && existing.Code != "" && domain.NormalizeCode(existing.Code) == code {
				return apperrors.AlreadyExists("campaign", "code", campaign.Code)
			}
		}
	}

	next := clone(campaign)
	next.CurrentUsageCount = current.CurrentUsageCount
	s.campaigns[campaign.ID] = next
	return nil
}

// FindActiveCandidates returns campaigns operationally active at the given
// instant, ordered by priority descending then ID for determinism.
func (s *Store) FindActiveCandidates(_ context.Context, now time.Time) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.IsOperationallyActive(now) {
			out = append(out, *clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountForUser returns how many times the user has used the campaign.
func (s *Store) CountForUser(_ context.Context, campaignID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countForUserLocked(campaignID, userID), nil
}

func (s *Store) countForUserLocked(campaignID, userID string) int {
	n := 0
	for i := range s.usages {
		if s.usages[i].CampaignID == campaignID && s.usages[i].UserID == userID {
			n++
		}
	}
	return n
}

// RecordAtomic re-checks usage headroom and appends the record while
// incrementing the campaign counter under a single lock acquisition.
func (s *Store) RecordAtomic(_ context.Context, rec *domain.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[rec.CampaignID]
	if !ok {
		return apperrors.NotFound("campaign", rec.CampaignID)
	}

	if rec.IdempotencyKey != "" {
		if _, ok := s.byIdemKey[idemKey(rec.CampaignID, rec.IdempotencyKey)]; ok {
			return apperrors.AlreadyExists("usage record", "idempotency_key", rec.IdempotencyKey)
		}
	}

	if c.MaxUsageCount > 0 && c.CurrentUsageCount >= c.MaxUsageCount {
		return apperrors.UsageLimitExceeded("campaign usage limit reached")
	}
	if c.MaxUsagePerUser > 0 && s.countForUserLocked(rec.CampaignID, rec.UserID) >= c.MaxUsagePerUser {
		return apperrors.UsageLimitExceeded("user has reached the usage limit for this campaign")
	}

	stored := *rec
	if stored.Metadata != nil {
		md := make(map[string]string, len(stored.Metadata))
		for k, v := range stored.Metadata {
			md[k] = v
		}
		stored.Metadata = md
	}
	s.usages = append(s.usages, stored)
	if rec.IdempotencyKey != "" {
		s.byIdemKey[idemKey(rec.CampaignID, rec.IdempotencyKey)] = len(s.usages) - 1
	}
	c.CurrentUsageCount++
	return nil
}

// FindByIdempotencyKey returns the usage record committed under the key.
func (s *Store) FindByIdempotencyKey(_ context.Context, campaignID, key string) (*domain.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byIdemKey[idemKey(campaignID, key)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	rec := s.usages[idx]
	return &rec, nil
}

func idemKey(campaignID, key string) string {
	return strings.Join([]string{campaignID, key}, "\x00")
}

var (
	_ repository.CampaignRepository = (*Store)(nil)
	_ repository.UsageLedger        = (*Store)(nil)
)
