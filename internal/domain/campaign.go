package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Campaign type constants.
const (
	CampaignTypePercentage   = "percentage"
	CampaignTypeFixedAmount  = "fixed_amount"
	CampaignTypeBuyXGetY     = "buy_x_get_y"
	CampaignTypeFreeShipping = "free_shipping"
)

// Campaign status constants.
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusExpired   = "expired"
	CampaignStatusCancelled = "cancelled"
)

// Campaign target type constants.
const (
	TargetTypeGlobal     = "global"
	TargetTypeMarket     = "market"
	TargetTypeProduct    = "product"
	TargetTypeCategory   = "category"
	TargetTypeUser       = "user"
	TargetTypeReferral   = "referral"
	TargetTypeFirstOrder = "first_order"
)

// BuyXGetYConfig configures a buy-X-get-Y campaign. When ApplyToSameProduct
// is set the free items must be the same product as the purchased ones;
// otherwise BuyProductIDs/GetProductIDs define the qualifying pools (empty
// pools fall back to the campaign's target products).
type BuyXGetYConfig struct {
	BuyQuantity        int      `json:"buy_quantity"`
	GetQuantity        int      `json:"get_quantity"`
	BuyProductIDs      []string `json:"buy_product_ids,omitempty"`
	GetProductIDs      []string `json:"get_product_ids,omitempty"`
	ApplyToSameProduct bool     `json:"apply_to_same_product"`
}

// Conditions is the set of optional predicates a campaign may attach. Each
// field is a separate, clearly named condition; unset fields do not
// constrain. All set conditions must hold (AND semantics).
type Conditions struct {
	// UserType restricts to a caller-classified user segment ("new",
	// "returning", "vip"). Empty means any.
	UserType string `json:"user_type,omitempty"`

	// AllowedDaysOfWeek holds lowercase English day names. Empty means all days.
	AllowedDaysOfWeek []string `json:"allowed_days_of_week,omitempty"`

	// TimeWindowStart/TimeWindowEnd bound the local time of day as "HH:MM",
	// half-open [start, end). Both empty means no window.
	TimeWindowStart string `json:"time_window_start,omitempty"`
	TimeWindowEnd   string `json:"time_window_end,omitempty"`

	// MinOrderCount/MaxOrderCount bound the caller-supplied historical order
	// count of the user.
	MinOrderCount *int `json:"min_order_count,omitempty"`
	MaxOrderCount *int `json:"max_order_count,omitempty"`

	// MaxDaysSinceLastOrder requires the user's last order to be at most
	// this many days old (win-back campaigns).
	MaxDaysSinceLastOrder *int `json:"max_days_since_last_order,omitempty"`

	// IncludeShippingInMinimum tells the caller to pass a shipping-inclusive
	// order total for minimum-order checks. The engine treats the total as
	// opaque either way.
	IncludeShippingInMinimum bool `json:"include_shipping_in_minimum,omitempty"`

	// ExcludeDiscountedItems removes already-discounted line items from the
	// discountable base.
	ExcludeDiscountedItems bool `json:"exclude_discounted_items,omitempty"`
}

// IsZero reports whether no condition is set.
func (c Conditions) IsZero() bool {
	return c.UserType == "" &&
		len(c.AllowedDaysOfWeek) == 0 &&
		c.TimeWindowStart == "" && c.TimeWindowEnd == "" &&
		c.MinOrderCount == nil && c.MaxOrderCount == nil &&
		c.MaxDaysSinceLastOrder == nil &&
		!c.IncludeShippingInMinimum && !c.ExcludeDiscountedItems
}

// Campaign represents a promotional rule. Amounts are in minor currency
// units; DiscountValue is a whole percent (0-100) for percentage and
// buy_x_get_y campaigns and a minor-unit amount for fixed_amount.
type Campaign struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	TargetType  string `json:"target_type"`
	Status      string `json:"status"`
	Code        string `json:"code,omitempty"`

	DiscountValue     int64 `json:"discount_value"`
	MinOrderAmount    int64 `json:"min_order_amount"`
	MaxDiscountAmount int64 `json:"max_discount_amount"`

	MaxUsageCount     int `json:"max_usage_count"`
	MaxUsagePerUser   int `json:"max_usage_per_user"`
	CurrentUsageCount int `json:"current_usage_count"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	TargetMarketIDs  []string `json:"target_market_ids"`
	TargetProductIDs []string `json:"target_product_ids"`
	TargetUserIDs    []string `json:"target_user_ids"`
	TargetCategories []string `json:"target_categories"`

	BuyXGetY   *BuyXGetYConfig `json:"buy_x_get_y,omitempty"`
	Conditions Conditions      `json:"conditions"`

	IsAutomatic bool `json:"is_automatic"`
	IsStackable bool `json:"is_stackable"`
	Priority    int  `json:"priority"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOperationallyActive reports whether the campaign can currently be
// applied: active status, inside its date window, and global usage headroom.
func (c *Campaign) IsOperationallyActive(now time.Time) bool {
	if c.Status != CampaignStatusActive {
		return false
	}
	if now.Before(c.StartDate) || now.After(c.EndDate) {
		return false
	}
	if c.MaxUsageCount > 0 && c.CurrentUsageCount >= c.MaxUsageCount {
		return false
	}
	return true
}

// NormalizeCode uppercases and trims a coupon code so lookups are
// case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidTypes returns the set of valid campaign types.
func ValidTypes() []string {
	return []string{
		CampaignTypePercentage,
		CampaignTypeFixedAmount,
		CampaignTypeBuyXGetY,
		CampaignTypeFreeShipping,
	}
}

// IsValidType checks whether t is a valid campaign type.
func IsValidType(t string) bool {
	for _, v := range ValidTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ValidStatuses returns the set of valid campaign statuses.
func ValidStatuses() []string {
	return []string{
		CampaignStatusDraft,
		CampaignStatusActive,
		CampaignStatusPaused,
		CampaignStatusExpired,
		CampaignStatusCancelled,
	}
}

// IsValidStatus checks whether status is a valid campaign status.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// ValidTargetTypes returns the set of valid target types.
func ValidTargetTypes() []string {
	return []string{
		TargetTypeGlobal,
		TargetTypeMarket,
		TargetTypeProduct,
		TargetTypeCategory,
		TargetTypeUser,
		TargetTypeReferral,
		TargetTypeFirstOrder,
	}
}

// IsValidTargetType checks whether t is a valid target type.
func IsValidTargetType(t string) bool {
	for _, v := range ValidTargetTypes() {
		if v == t {
			return true
		}
	}
	return false
}

var dayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseDayOfWeek maps a lowercase English day name to time.Weekday.
func ParseDayOfWeek(name string) (time.Weekday, bool) {
	d, ok := dayNames[strings.ToLower(name)]
	return d, ok
}

// ParseTimeOfDay parses an "HH:MM" string into minutes since midnight.
func ParseTimeOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Validate checks the campaign's structural invariants. It is invoked
// explicitly before any persistence call; there are no save-time hooks.
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return errors.New("campaign name is required")
	}
	if !IsValidType(c.Type) {
		return fmt.Errorf("invalid campaign type %q, must be one of: %s", c.Type, strings.Join(ValidTypes(), ", "))
	}
	if !IsValidTargetType(c.TargetType) {
		return fmt.Errorf("invalid target type %q, must be one of: %s", c.TargetType, strings.Join(ValidTargetTypes(), ", "))
	}
	if !IsValidStatus(c.Status) {
		return fmt.Errorf("invalid status %q, must be one of: %s", c.Status, strings.Join(ValidStatuses(), ", "))
	}

	switch c.Type {
	case CampaignTypePercentage, CampaignTypeBuyXGetY:
		if c.DiscountValue < 0 || c.DiscountValue > 100 {
			return fmt.Errorf("discount value for %s campaigns must be between 0 and 100, got %d", c.Type, c.DiscountValue)
		}
	case CampaignTypeFixedAmount:
		if c.DiscountValue < 0 {
			return errors.New("discount value must not be negative")
		}
	}

	if c.MinOrderAmount < 0 {
		return errors.New("min order amount must not be negative")
	}
	if c.MaxDiscountAmount < 0 {
		return errors.New("max discount amount must not be negative")
	}
	if c.MaxUsageCount < 0 || c.MaxUsagePerUser < 0 {
		return errors.New("usage limits must not be negative")
	}
	if !c.EndDate.After(c.StartDate) {
		return errors.New("end date must be after start date")
	}

	if c.Type == CampaignTypeBuyXGetY {
		if c.BuyXGetY == nil {
			return errors.New("buy_x_get_y campaigns require a buy_x_get_y config")
		}
		if c.BuyXGetY.BuyQuantity <= 0 || c.BuyXGetY.GetQuantity <= 0 {
			return errors.New("buy and get quantities must be positive")
		}
	}

	if err := c.Conditions.validate(); err != nil {
		return err
	}

	return nil
}

func (c Conditions) validate() error {
	for _, d := range c.AllowedDaysOfWeek {
		if _, ok := ParseDayOfWeek(d); !ok {
			return fmt.Errorf("unknown day of week %q", d)
		}
	}

	if (c.TimeWindowStart == "") != (c.TimeWindowEnd == "") {
		return errors.New("time window requires both start and end")
	}
	if c.TimeWindowStart != "" {
		if _, err := ParseTimeOfDay(c.TimeWindowStart); err != nil {
			return err
		}
		if _, err := ParseTimeOfDay(c.TimeWindowEnd); err != nil {
			return err
		}
	}

	if c.MinOrderCount != nil && *c.MinOrderCount < 0 {
		return errors.New("min order count must not be negative")
	}
	if c.MaxOrderCount != nil && *c.MaxOrderCount < 0 {
		return errors.New("max order count must not be negative")
	}
	if c.MinOrderCount != nil && c.MaxOrderCount != nil && *c.MinOrderCount > *c.MaxOrderCount {
		return errors.New("min order count must not exceed max order count")
	}
	if c.MaxDaysSinceLastOrder != nil && *c.MaxDaysSinceLastOrder < 0 {
		return errors.New("max days since last order must not be negative")
	}

	return nil
}
