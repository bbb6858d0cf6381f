// Package http exposes the promotion engine over REST. Requests and
// responses use a standard envelope; money travels as minor-unit integers.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clearcart/promotion-engine/internal/domain"
	"github.com/clearcart/promotion-engine/internal/repository"
	"github.com/clearcart/promotion-engine/internal/service"
	"github.com/clearcart/promotion-engine/pkg/pagination"
	"github.com/clearcart/promotion-engine/pkg/validator"
)

// CampaignService is the campaign-lifecycle surface the handlers need.
type CampaignService interface {
	CreateCampaign(ctx context.Context, campaign *domain.Campaign) (*domain.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	GetCampaignByCode(ctx context.Context, code string) (*domain.Campaign, error)
	ListCampaigns(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error)
	UpdateCampaign(ctx context.Context, campaign *domain.Campaign) (*domain.Campaign, error)
	UpdateStatus(ctx context.Context, id, status string) (*domain.Campaign, error)
	DeactivateCampaign(ctx context.Context, id string) (*domain.Campaign, error)
}

// DiscountService is the evaluation and application surface.
type DiscountService interface {
	ListEligible(ctx context.Context, octx *domain.OrderContext) ([]service.EligibleCampaign, error)
	PreviewDiscount(ctx context.Context, campaignID, code string, octx *domain.OrderContext) (*service.Quote, error)
	ValidateCode(ctx context.Context, code string, octx *domain.OrderContext) (*service.Quote, error)
	ApplyDiscount(ctx context.Context, in service.ApplyInput) (*service.ApplyResult, error)
}

// Handler serves the promotion HTTP API.
type Handler struct {
	campaigns CampaignService
	discounts DiscountService
	logger    *slog.Logger
}

// NewHandler creates the HTTP handler.
func NewHandler(campaigns CampaignService, discounts DiscountService, logger *slog.Logger) *Handler {
	return &Handler{campaigns: campaigns, discounts: discounts, logger: logger}
}

type createCampaignRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Type        string `json:"type" validate:"required,oneof=percentage fixed_amount buy_x_get_y free_shipping"`
	TargetType  string `json:"target_type" validate:"required,oneof=global market product category user referral first_order"`
	Code        string `json:"code" validate:"omitempty,min=3,max=64"`

	DiscountValue     int64 `json:"discount_value" validate:"gte=0"`
	MinOrderAmount    int64 `json:"min_order_amount" validate:"gte=0"`
	MaxDiscountAmount int64 `json:"max_discount_amount" validate:"gte=0"`

	MaxUsageCount   int `json:"max_usage_count" validate:"gte=0"`
	MaxUsagePerUser int `json:"max_usage_per_user" validate:"gte=0"`

	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`

	TargetMarketIDs  []string `json:"target_market_ids"`
	TargetProductIDs []string `json:"target_product_ids"`
	TargetUserIDs    []string `json:"target_user_ids"`
	TargetCategories []string `json:"target_categories"`

	BuyXGetY   *domain.BuyXGetYConfig `json:"buy_x_get_y"`
	Conditions domain.Conditions      `json:"conditions"`

	IsAutomatic bool `json:"is_automatic"`
	IsStackable bool `json:"is_stackable"`
	Priority    int  `json:"priority"`
}

func (req *createCampaignRequest) toDomain() *domain.Campaign {
	return &domain.Campaign{
		Name:              req.Name,
		Description:       req.Description,
		Type:              req.Type,
		TargetType:        req.TargetType,
		Code:              req.Code,
		DiscountValue:     req.DiscountValue,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		MaxUsageCount:     req.MaxUsageCount,
		MaxUsagePerUser:   req.MaxUsagePerUser,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		TargetMarketIDs:   req.TargetMarketIDs,
		TargetProductIDs:  req.TargetProductIDs,
		TargetUserIDs:     req.TargetUserIDs,
		TargetCategories:  req.TargetCategories,
		BuyXGetY:          req.BuyXGetY,
		Conditions:        req.Conditions,
		IsAutomatic:       req.IsAutomatic,
		IsStackable:       req.IsStackable,
		Priority:          req.Priority,
	}
}

// CreateCampaign handles POST /api/v1/campaigns.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := validator.Validate(&req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	campaign, err := h.campaigns.CreateCampaign(r.Context(), req.toDomain())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

// GetCampaign handles GET /api/v1/campaigns/{id}.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := h.campaigns.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// GetCampaignByCode handles GET /api/v1/campaigns/code/{code}.
func (h *Handler) GetCampaignByCode(w http.ResponseWriter, r *http.Request) {
	campaign, err := h.campaigns.GetCampaignByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// ListCampaigns handles GET /api/v1/campaigns with optional status, type,
// and target_type filters.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.CampaignFilter{
		Page:    params.Page,
		PerPage: params.PerPage,
	}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	if v := q.Get("type"); v != "" {
		filter.Type = &v
	}
	if v := q.Get("target_type"); v != "" {
		filter.TargetType = &v
	}

	campaigns, total, err := h.campaigns.ListCampaigns(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pagination.NewResult(campaigns, total, params))
}

type updateCampaignRequest struct {
	createCampaignRequest
	Status string `json:"status" validate:"omitempty,oneof=draft active paused expired cancelled"`
}

// UpdateCampaign handles PUT /api/v1/campaigns/{id}.
func (h *Handler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req updateCampaignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := validator.Validate(&req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	campaign := req.toDomain()
	campaign.ID = chi.URLParam(r, "id")
	if req.Status != "" {
		campaign.Status = req.Status
	} else if current, err := h.campaigns.GetCampaign(r.Context(), campaign.ID); err == nil {
		campaign.Status = current.Status
	}

	updated, err := h.campaigns.UpdateCampaign(r.Context(), campaign)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active paused expired cancelled"`
}

// UpdateStatus handles PATCH /api/v1/campaigns/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := validator.Validate(&req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	campaign, err := h.campaigns.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// DeactivateCampaign handles DELETE /api/v1/campaigns/{id}. Campaigns are
// cancelled, never removed; the usage ledger must stay referentially intact.
func (h *Handler) DeactivateCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := h.campaigns.DeactivateCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}
