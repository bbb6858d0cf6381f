// Package service implements the promotion use cases: campaign lifecycle
// management, discount evaluation, and the apply coordinator that turns an
// evaluation into a committed usage record.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearcart/promotion-engine/internal/domain"
	"github.com/clearcart/promotion-engine/internal/engine"
	"github.com/clearcart/promotion-engine/internal/event"
	"github.com/clearcart/promotion-engine/internal/repository"
	"github.com/clearcart/promotion-engine/internal/settings"
	apperrors "github.com/clearcart/promotion-engine/pkg/errors"
)

// commitRetries bounds how often a retryable write conflict is retried
// before the request degrades to a usage-limit rejection.
const commitRetries = 3

// EventEmitter is the outbound event surface. Emissions are best-effort;
// implementations must not fail the calling operation.
type EventEmitter interface {
	CampaignCreated(ctx context.Context, campaign *domain.Campaign)
	CampaignUpdated(ctx context.Context, campaign *domain.Campaign)
	DiscountApplied(ctx context.Context, payload event.DiscountAppliedEvent)
}

// PromotionService coordinates campaign storage, the evaluation engine, the
// usage ledger, and the settings provider.
type PromotionService struct {
	campaigns repository.CampaignRepository
	ledger    repository.UsageLedger
	settings  settings.Provider
	events    EventEmitter
	logger    *slog.Logger
	now       func() time.Time
}

// NewPromotionService creates the service. now is injectable for tests;
// pass time.Now in production.
func NewPromotionService(
	campaigns repository.CampaignRepository,
	ledger repository.UsageLedger,
	settingsProvider settings.Provider,
	events EventEmitter,
	logger *slog.Logger,
	now func() time.Time,
) *PromotionService {
	return &PromotionService{
		campaigns: campaigns,
		ledger:    ledger,
		settings:  settingsProvider,
		events:    events,
		logger:    logger,
		now:       now,
	}
}

// CreateCampaign validates and persists a new campaign. Non-automatic
// campaigns without a code get one generated from the name.
func (s *PromotionService) CreateCampaign(ctx context.Context, campaign *domain.Campaign) (*domain.Campaign, error) {
	campaign.ID = uuid.New().String()
	if campaign.Status == "" {
		campaign.Status = domain.CampaignStatusDraft
	}
	if campaign.Code != "" {
		campaign.Code = domain.NormalizeCode(campaign.Code)
	} else if !campaign.IsAutomatic {
		campaign.Code = generateCampaignCode(campaign.Name)
	}

	now := s.now().UTC()
	campaign.CreatedAt = now
	campaign.UpdatedAt = now
	campaign.CurrentUsageCount = 0

	if err := campaign.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	if err := s.campaigns.Create(ctx, campaign); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "campaign created",
		slog.String("campaign_id", campaign.ID),
		slog.String("type", campaign.Type),
		slog.String("code", campaign.Code),
	)
	s.events.CampaignCreated(ctx, campaign)
	return campaign, nil
}

// GetCampaign retrieves a campaign by ID.
func (s *PromotionService) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

// GetCampaignByCode retrieves a campaign by coupon code, case-insensitively.
func (s *PromotionService) GetCampaignByCode(ctx context.Context, code string) (*domain.Campaign, error) {
	return s.campaigns.GetByCode(ctx, code)
}

// ListCampaigns returns campaigns matching the filter with the total count.
func (s *PromotionService) ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	return s.campaigns.List(ctx, filter)
}

// statusTransitions maps each status to the statuses it may move to.
// Expired and cancelled are terminal.
var statusTransitions = map[string][]string{
	domain.CampaignStatusDraft:  {domain.CampaignStatusActive, domain.CampaignStatusCancelled},
	domain.CampaignStatusActive: {domain.CampaignStatusPaused, domain.CampaignStatusExpired, domain.CampaignStatusCancelled},
	domain.CampaignStatusPaused: {domain.CampaignStatusActive, domain.CampaignStatusCancelled},
}

// UpdateCampaign applies field changes to an existing campaign. The usage
// counter and creation metadata are never writable; status changes must
// follow the allowed transitions.
func (s *PromotionService) UpdateCampaign(ctx context.Context, updated *domain.Campaign) (*domain.Campaign, error) {
	current, err := s.campaigns.GetByID(ctx, updated.ID)
	if err != nil {
		return nil, err
	}

	if updated.Status != current.Status {
		if !transitionAllowed(current.Status, updated.Status) {
			return nil, apperrors.InvalidInput(
				fmt.Sprintf("cannot change status from %s to %s", current.Status, updated.Status))
		}
	}

	if updated.Code != "" {
		updated.Code = domain.NormalizeCode(updated.Code)
	}
	updated.CurrentUsageCount = current.CurrentUsageCount
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = s.now().UTC()

	if err := updated.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	if err := s.campaigns.Update(ctx, updated); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "campaign updated", slog.String("campaign_id", updated.ID))
	s.events.CampaignUpdated(ctx, updated)
	return updated, nil
}

// UpdateStatus moves a campaign to a new status following the transition
// rules.
func (s *PromotionService) UpdateStatus(ctx context.Context, id, status string) (*domain.Campaign, error) {
	if !domain.IsValidStatus(status) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid status %q", status))
	}

	campaign, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == status {
		return campaign, nil
	}
	if !transitionAllowed(campaign.Status, status) {
		return nil, apperrors.InvalidInput(
			fmt.Sprintf("cannot change status from %s to %s", campaign.Status, status))
	}

	campaign.Status = status
	campaign.UpdatedAt = s.now().UTC()
	if err := s.campaigns.Update(ctx, campaign); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "campaign status changed",
		slog.String("campaign_id", id), slog.String("status", status))
	s.events.CampaignUpdated(ctx, campaign)
	return campaign, nil
}

// DeactivateCampaign cancels a campaign so it can no longer be applied.
func (s *PromotionService) DeactivateCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.UpdateStatus(ctx, id, domain.CampaignStatusCancelled)
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// EligibleCampaign pairs a campaign with the discount it would currently
// produce for the order.
type EligibleCampaign struct {
	Campaign       domain.Campaign `json:"campaign"`
	DiscountAmount int64           `json:"discount_amount"`
	FreeShipping   bool            `json:"free_shipping"`
}

// ListEligible evaluates all operationally active campaigns against the
// order context and returns the eligible ones with their prospective
// discounts. No stacking or constraint clamping is applied; this is the
// storefront "available promotions" view.
func (s *PromotionService) ListEligible(ctx context.Context, octx *domain.OrderContext) ([]EligibleCampaign, error) {
	now := s.now()
	candidates, err := s.campaigns.FindActiveCandidates(ctx, now)
	if err != nil {
		return nil, err
	}

	out := make([]EligibleCampaign, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]

		usage, err := s.userUsage(ctx, c, octx.UserID)
		if err != nil {
			return nil, err
		}
		if ok, _ := engine.Evaluate(c, octx, now, usage); !ok {
			continue
		}

		result := engine.Calculate(c, octx)
		out = append(out, EligibleCampaign{
			Campaign:       *c,
			DiscountAmount: result.Amount,
			FreeShipping:   result.FreeShipping,
		})
	}
	return out, nil
}

// AppliedCampaign is one campaign's share of a quote or application.
type AppliedCampaign struct {
	CampaignID     string `json:"campaign_id"`
	CampaignName   string `json:"campaign_name"`
	Code           string `json:"code,omitempty"`
	DiscountAmount int64  `json:"discount_amount"`
	FreeShipping   bool   `json:"free_shipping"`
}

// Quote is the outcome of one evaluation: the selected campaigns, the
// combined discount after constraint clamping, and any clamp warnings.
type Quote struct {
	Campaigns     []AppliedCampaign `json:"campaigns"`
	TotalDiscount int64             `json:"total_discount"`
	FinalAmount   int64             `json:"final_amount"`
	FreeShipping  bool              `json:"free_shipping"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// PreviewDiscount computes the discount that ApplyDiscount would commit for
// the same inputs, without recording anything. A successful preview and a
// subsequent apply at the same instant produce the same amounts.
func (s *PromotionService) PreviewDiscount(ctx context.Context, campaignID, code string, octx *domain.OrderContext) (*Quote, error) {
	quote, _, err := s.evaluate(ctx, campaignID, code, octx)
	return quote, err
}

// ValidateCode checks a single coupon code against the order context and
// returns the discount it alone would produce. Automatic campaigns are not
// considered, matching what an apply with the same code commits.
func (s *PromotionService) ValidateCode(ctx context.Context, code string, octx *domain.OrderContext) (*Quote, error) {
	quote, _, err := s.evaluate(ctx, "", code, octx)
	return quote, err
}

// ApplyInput is one application request. The campaign is addressed by ID or
// code; with neither, the eligible automatic campaigns are applied. OrderID
// ties the usage record to the caller's order; IdempotencyKey makes retries
// of the same request safe.
type ApplyInput struct {
	CampaignID     string
	Code           string
	OrderID        string
	IdempotencyKey string
	Order          domain.OrderContext
}

// ApplyResult is a committed application.
type ApplyResult struct {
	Quote
	UsageRecordIDs []string  `json:"usage_record_ids"`
	AppliedAt      time.Time `json:"applied_at"`
	Replayed       bool      `json:"replayed,omitempty"`
}

// ApplyDiscount evaluates and commits in one call. The evaluation answer is
// advisory; the ledger re-checks usage headroom transactionally at commit,
// so concurrent applies against the last usage slot resolve to exactly one
// success. Retryable write conflicts are retried a bounded number of times
// and then degrade to a usage-limit rejection. A repeated idempotency key
// replays the original outcome without a second commit.
func (s *PromotionService) ApplyDiscount(ctx context.Context, in ApplyInput) (*ApplyResult, error) {
	octx := in.Order

	quote, selected, err := s.evaluate(ctx, in.CampaignID, in.Code, &octx)
	if err != nil {
		return nil, err
	}

	appliedAt := s.now().UTC()
	result := &ApplyResult{Quote: *quote, AppliedAt: appliedAt}

	// Commit order follows selection order: the primary (highest-ranked)
	// campaign first. A primary failure fails the request; a stacked
	// secondary losing its last slot to a concurrent request is dropped
	// from the result with a warning rather than failing the whole apply.
	committed := make([]AppliedCampaign, 0, len(selected))
	var total int64
	freeShipping := false

	for i, pc := range selected {
		rec := &domain.UsageRecord{
			ID:              uuid.New().String(),
			CampaignID:      pc.Campaign.ID,
			UserID:          octx.UserID,
			OrderID:         in.OrderID,
			DiscountApplied: pc.Amount,
			OrderAmount:     octx.OrderAmount,
			IdempotencyKey:  in.IdempotencyKey,
			CreatedAt:       appliedAt,
		}

		replayed, err := s.commit(ctx, pc.Campaign, rec)
		if err != nil {
			if i > 0 && errors.Is(err, apperrors.ErrUsageLimitReached) {
				s.logger.InfoContext(ctx, "stacked campaign lost usage race, dropping",
					slog.String("campaign_id", pc.Campaign.ID))
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("campaign %s is no longer available and was not applied", pc.Campaign.Name))
				continue
			}
			return nil, err
		}
		if replayed {
			result.Replayed = true
		}

		committed = append(committed, AppliedCampaign{
			CampaignID:     pc.Campaign.ID,
			CampaignName:   pc.Campaign.Name,
			Code:           pc.Campaign.Code,
			DiscountAmount: rec.DiscountApplied,
			FreeShipping:   pc.FreeShipping,
		})
		total += rec.DiscountApplied
		freeShipping = freeShipping || pc.FreeShipping
		result.UsageRecordIDs = append(result.UsageRecordIDs, rec.ID)

		// A replay recorded nothing new; re-emitting would double-count
		// the application downstream.
		if !replayed {
			s.events.DiscountApplied(ctx, event.DiscountAppliedEvent{
				CampaignID:      pc.Campaign.ID,
				CampaignName:    pc.Campaign.Name,
				UserID:          octx.UserID,
				OrderID:         in.OrderID,
				DiscountApplied: rec.DiscountApplied,
				OrderAmount:     octx.OrderAmount,
				FreeShipping:    pc.FreeShipping,
				AppliedAt:       appliedAt,
			})
		}
	}

	// A secondary drop changes the committed set; the constraint-clamped
	// total cannot exceed the quoted one, so re-clamping is unnecessary.
	if total > result.TotalDiscount {
		total = result.TotalDiscount
	}
	result.Campaigns = committed
	result.TotalDiscount = total
	result.FinalAmount = octx.OrderAmount - total
	result.FreeShipping = freeShipping

	s.logger.InfoContext(ctx, "discount applied",
		slog.String("order_id", in.OrderID),
		slog.String("user_id", octx.UserID),
		slog.Int64("total_discount", total),
		slog.Int("campaigns", len(committed)),
	)
	return result, nil
}

// commit writes one usage record with bounded retry on write conflicts.
// Returns replayed=true when the idempotency key had already been committed;
// the record's DiscountApplied is then rewritten from the original commit.
func (s *PromotionService) commit(ctx context.Context, campaign *domain.Campaign, rec *domain.UsageRecord) (bool, error) {
	var lastErr error
	for attempt := 0; attempt < commitRetries; attempt++ {
		err := s.ledger.RecordAtomic(ctx, rec)
		switch {
		case err == nil:
			return false, nil

		case errors.Is(err, apperrors.ErrAlreadyExists) && rec.IdempotencyKey != "":
			prior, findErr := s.ledger.FindByIdempotencyKey(ctx, rec.CampaignID, rec.IdempotencyKey)
			if findErr != nil {
				return false, fmt.Errorf("load replayed usage record: %w", findErr)
			}
			rec.ID = prior.ID
			rec.DiscountApplied = prior.DiscountApplied
			return true, nil

		case errors.Is(err, apperrors.ErrConflict):
			lastErr = err
			s.logger.WarnContext(ctx, "usage commit conflict, retrying",
				slog.String("campaign_id", campaign.ID),
				slog.Int("attempt", attempt+1),
			)
			select {
			case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
			case <-ctx.Done():
				return false, ctx.Err()
			}

		default:
			return false, err
		}
	}

	// Retries exhausted under contention: the safe answer is that the slot
	// is gone.
	s.logger.WarnContext(ctx, "usage commit retries exhausted",
		slog.String("campaign_id", campaign.ID), slog.String("error", lastErr.Error()))
	return false, apperrors.UsageLimitExceeded("campaign usage limit reached")
}

// evaluate builds the quote for a request. A supplied campaign identifier
// (ID wins over code) selects exactly that campaign, so a validation of the
// same identifier quotes the same amount an apply commits. Without an
// identifier, all eligible automatic campaigns are stacked.
func (s *PromotionService) evaluate(ctx context.Context, campaignID, code string, octx *domain.OrderContext) (*Quote, []engine.PricedCampaign, error) {
	cons, err := s.settings.Constraints(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		selected []engine.PricedCampaign
		total    int64
	)

	if campaignID != "" || code != "" {
		campaign, err := s.resolveCampaign(ctx, campaignID, code)
		if err != nil {
			return nil, nil, err
		}
		pc, err := s.priceIfEligible(ctx, campaign, octx)
		if err != nil {
			return nil, nil, err
		}
		selected = []engine.PricedCampaign{*pc}
		total = pc.Amount
	} else {
		now := s.now()
		candidates, err := s.campaigns.FindActiveCandidates(ctx, now)
		if err != nil {
			return nil, nil, err
		}

		var priced []engine.PricedCampaign
		for i := range candidates {
			c := &candidates[i]
			if !c.IsAutomatic {
				continue
			}
			usage, err := s.userUsage(ctx, c, octx.UserID)
			if err != nil {
				return nil, nil, err
			}
			if ok, _ := engine.Evaluate(c, octx, now, usage); !ok {
				continue
			}
			result := engine.Calculate(c, octx)
			priced = append(priced, engine.PricedCampaign{
				Campaign:     c,
				Amount:       result.Amount,
				FreeShipping: result.FreeShipping,
			})
		}

		if len(priced) == 0 {
			return nil, nil, apperrors.NotEligible("no applicable campaigns for this order")
		}
		selected, total = engine.Resolve(priced)
	}

	accepted, warnings, err := engine.ApplyConstraints(octx.OrderAmount, total, cons)
	if err != nil {
		return nil, nil, err
	}

	quote := &Quote{
		Campaigns:     make([]AppliedCampaign, 0, len(selected)),
		TotalDiscount: accepted,
		FinalAmount:   octx.OrderAmount - accepted,
		Warnings:      warnings,
	}
	for _, pc := range selected {
		quote.Campaigns = append(quote.Campaigns, AppliedCampaign{
			CampaignID:     pc.Campaign.ID,
			CampaignName:   pc.Campaign.Name,
			Code:           pc.Campaign.Code,
			DiscountAmount: pc.Amount,
			FreeShipping:   pc.FreeShipping,
		})
		quote.FreeShipping = quote.FreeShipping || pc.FreeShipping
	}
	return quote, selected, nil
}

// resolveCampaign loads the requested campaign, preferring the ID when both
// identifiers are present.
func (s *PromotionService) resolveCampaign(ctx context.Context, campaignID, code string) (*domain.Campaign, error) {
	if campaignID != "" {
		return s.campaigns.GetByID(ctx, campaignID)
	}
	return s.campaigns.GetByCode(ctx, code)
}

// priceIfEligible evaluates one campaign and prices it, returning a
// NotEligible error carrying the specific reason on failure.
func (s *PromotionService) priceIfEligible(ctx context.Context, campaign *domain.Campaign, octx *domain.OrderContext) (*engine.PricedCampaign, error) {
	usage, err := s.userUsage(ctx, campaign, octx.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if ok, reason := engine.Evaluate(campaign, octx, now, usage); !ok {
		return nil, apperrors.NotEligible(reason)
	}

	result := engine.Calculate(campaign, octx)
	return &engine.PricedCampaign{
		Campaign:     campaign,
		Amount:       result.Amount,
		FreeShipping: result.FreeShipping,
	}, nil
}

// userUsage reads the user's usage count for a campaign, skipping the
// ledger read when the campaign has no per-user limit.
func (s *PromotionService) userUsage(ctx context.Context, campaign *domain.Campaign, userID string) (int, error) {
	if campaign.MaxUsagePerUser <= 0 || userID == "" {
		return 0, nil
	}
	count, err := s.ledger.CountForUser(ctx, campaign.ID, userID)
	if err != nil {
		return 0, fmt.Errorf("count campaign usage: %w", err)
	}
	return count, nil
}

// generateCampaignCode derives a readable coupon code from the campaign
// name: an uppercased slug prefix plus a random hex suffix.
func generateCampaignCode(name string) string {
	slug := strings.Builder{}
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			slug.WriteRune(r)
			if slug.Len() >= 8 {
				break
			}
		}
	}
	if slug.Len() == 0 {
		slug.WriteString("PROMO")
	}

	suffix := make([]byte, 3)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s-%s", slug.String(), strings.ToUpper(hex.EncodeToString(suffix)))
}
