package domain

import "time"

// LineItem is one order line. Quantity and UnitPrice are required only for
// buy-X-get-Y evaluation; other discount types work from the order total.
type LineItem struct {
	ProductID         string `json:"product_id"`
	Quantity          int    `json:"quantity"`
	UnitPrice         int64  `json:"unit_price"`
	AlreadyDiscounted bool   `json:"already_discounted,omitempty"`
}

// OrderContext is the ephemeral input to one evaluation or application
// call. It is owned by the caller and never persisted. OrderAmount is the
// pre-discount total in minor units; when a campaign condition includes
// shipping in the minimum, the caller passes a shipping-inclusive total.
type OrderContext struct {
	UserID      string     `json:"user_id"`
	OrderAmount int64      `json:"order_amount"`
	MarketID    string     `json:"market_id,omitempty"`
	ProductIDs  []string   `json:"product_ids,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	LineItems   []LineItem `json:"line_items,omitempty"`

	// Caller-supplied user history. The engine does not itself know order
	// history; first-order and referral targeting read these flags.
	UserType           string `json:"user_type,omitempty"`
	OrderCount         int    `json:"order_count"`
	DaysSinceLastOrder *int   `json:"days_since_last_order,omitempty"`
	IsFirstOrder       bool   `json:"is_first_order"`
	IsReferral         bool   `json:"is_referral"`
}

// UsageRecord is the immutable audit of one successful application.
// Created exactly once per application, never mutated or deleted.
type UsageRecord struct {
	ID              string            `json:"id"`
	CampaignID      string            `json:"campaign_id"`
	UserID          string            `json:"user_id"`
	OrderID         string            `json:"order_id"`
	DiscountApplied int64             `json:"discount_applied"`
	OrderAmount     int64             `json:"order_amount"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// DiscountConstraints is the system-wide safety-cap snapshot supplied by
// the settings provider. A zero MaxDiscountPercent or MaxDiscountAmount
// means the corresponding cap is not enforced.
type DiscountConstraints struct {
	MinOrderAmount     int64 `json:"min_order_amount"`
	MaxDiscountPercent int64 `json:"max_discount_percent"`
	MaxDiscountAmount  int64 `json:"max_discount_amount"`
}
