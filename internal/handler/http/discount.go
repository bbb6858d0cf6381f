package http

import (
	"net/http"

	"github.com/clearcart/promotion-engine/internal/domain"
	"github.com/clearcart/promotion-engine/internal/service"
	"github.com/clearcart/promotion-engine/pkg/validator"
)

type orderContextRequest struct {
	UserID      string   `json:"user_id" validate:"required"`
	OrderAmount int64    `json:"order_amount" validate:"required,gt=0"`
	MarketID    string   `json:"market_id"`
	ProductIDs  []string `json:"product_ids"`
	Categories  []string `json:"categories"`

	LineItems []lineItemRequest `json:"line_items" validate:"omitempty,dive"`

	UserType           string `json:"user_type"`
	OrderCount         int    `json:"order_count" validate:"gte=0"`
	DaysSinceLastOrder *int   `json:"days_since_last_order"`
	IsFirstOrder       bool   `json:"is_first_order"`
	IsReferral         bool   `json:"is_referral"`
}

type lineItemRequest struct {
	ProductID         string `json:"product_id" validate:"required"`
	Quantity          int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice         int64  `json:"unit_price" validate:"gte=0"`
	AlreadyDiscounted bool   `json:"already_discounted"`
}

func (req *orderContextRequest) toDomain() *domain.OrderContext {
	items := make([]domain.LineItem, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		items = append(items, domain.LineItem{
			ProductID:         li.ProductID,
			Quantity:          li.Quantity,
			UnitPrice:         li.UnitPrice,
			AlreadyDiscounted: li.AlreadyDiscounted,
		})
	}
	return &domain.OrderContext{
		UserID:             req.UserID,
		OrderAmount:        req.OrderAmount,
		MarketID:           req.MarketID,
		ProductIDs:         req.ProductIDs,
		Categories:         req.Categories,
		LineItems:          items,
		UserType:           req.UserType,
		OrderCount:         req.OrderCount,
		DaysSinceLastOrder: req.DaysSinceLastOrder,
		IsFirstOrder:       req.IsFirstOrder,
		IsReferral:         req.IsReferral,
	}
}

type eligibleRequest struct {
	Order orderContextRequest `json:"order" validate:"required"`
}

// ListEligible handles POST /api/v1/discounts/eligible: all campaigns the
// order currently qualifies for, with prospective amounts.
func (h *Handler) ListEligible(w http.ResponseWriter, r *http.Request) {
	var req eligibleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := validator.Validate(&req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	eligible, err := h.discounts.ListEligible(r.Context(), req.Order.toDomain())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, eligible)
}

type previewRequest struct {
	CampaignID string              `json:"campaign_id"`
	Code       string              `json:"code"`
	Order      orderContextRequest `json:"order" validate:"required"`
}

// PreviewDiscount handles POST /api/v1/discounts/preview: the exact quote
// an apply with the same inputs would commit, without recording anything.
func (h *Handler) PreviewDiscount(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := validator.Validate(&req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	quote, err := h.discounts.PreviewDiscount(r.Context(), req.CampaignID, req.Code, req.Order.toDomain())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type validateCodeRequest struct {
	Code  string              `json:"code" validate:"required"`
	Order orderContextRequest `json:"order" validate:"required"`
}

// ValidateCode handles POST /api/v1/discounts/validate: checks one coupon
// code against the order.
func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req validateCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := validator.Validate(&req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	quote, err := h.discounts.ValidateCode(r.Context(), req.Code, req.Order.toDomain())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type applyRequest struct {
	CampaignID     string              `json:"campaign_id"`
	Code           string              `json:"code"`
	OrderID        string              `json:"order_id" validate:"required"`
	IdempotencyKey string              `json:"idempotency_key" validate:"omitempty,max=128"`
	Order          orderContextRequest `json:"order" validate:"required"`
}

// ApplyDiscount handles POST /api/v1/discounts/apply: commits the discount
// and records usage. Safe to retry with the same idempotency key.
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := validator.Validate(&req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.discounts.ApplyDiscount(r.Context(), service.ApplyInput{
		CampaignID:     req.CampaignID,
		Code:           req.Code,
		OrderID:        req.OrderID,
		IdempotencyKey: req.IdempotencyKey,
		Order:          *req.Order.toDomain(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}
