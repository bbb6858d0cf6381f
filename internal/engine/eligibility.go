package engine

import (
	"fmt"
	"time"

	"github.com/clearcart/promotion-engine/internal/domain"
)

// Eligibility failure reasons. These are stable, user-presentable strings;
// clients key UX messaging off them.
const (
	ReasonNotActive         = "campaign is not active"
	ReasonNotStarted        = "campaign has not started yet"
	ReasonExpired           = "campaign has expired"
	ReasonUsageLimitReached = "campaign usage limit reached"
	ReasonUserLimitReached  = "user has reached the usage limit for this campaign"
	ReasonTargetMismatch    = "campaign does not apply to this order"
	ReasonDayNotAllowed     = "campaign is not valid on this day"
	ReasonTimeNotAllowed    = "campaign is not valid at this time"
	ReasonUserTypeMismatch  = "campaign is not valid for this user type"
	ReasonOrderCountOutside = "order history does not qualify for this campaign"
	ReasonLastOrderTooOld   = "last order is too long ago for this campaign"
)

// Evaluate decides whether a campaign is eligible for the given order
// context at the given instant. userUsageCount is the user's historical
// usage of this campaign as reported by the ledger.
//
// Checks run in a fixed order so failure reasons are reproducible:
// operational activity, target match, per-user usage, conditions, campaign
// minimum order. The first failing check's reason is returned.
func Evaluate(c *domain.Campaign, octx *domain.OrderContext, now time.Time, userUsageCount int) (bool, string) {
	// 1. Operational activity (status, date window, global usage headroom).
	if c.Status != domain.CampaignStatusActive {
		return false, ReasonNotActive
	}
	if now.Before(c.StartDate) {
		return false, ReasonNotStarted
	}
	if now.After(c.EndDate) {
		return false, ReasonExpired
	}
	if c.MaxUsageCount > 0 && c.CurrentUsageCount >= c.MaxUsageCount {
		return false, ReasonUsageLimitReached
	}

	// 2. Target-type match.
	if !targetMatches(c, octx) {
		return false, ReasonTargetMismatch
	}

	// 3. Per-user usage.
	if c.MaxUsagePerUser > 0 && userUsageCount >= c.MaxUsagePerUser {
		return false, ReasonUserLimitReached
	}

	// 4. Conditions block (AND semantics).
	if ok, reason := conditionsHold(c.Conditions, octx, now); !ok {
		return false, reason
	}

	// 5. Campaign-level minimum order amount. When the campaign's
	// IncludeShippingInMinimum condition is set the caller has already
	// passed a shipping-inclusive total; the total is opaque here.
	if c.MinOrderAmount > 0 && octx.OrderAmount < c.MinOrderAmount {
		return false, fmt.Sprintf("minimum order amount is %d", c.MinOrderAmount)
	}

	return true, ""
}

func targetMatches(c *domain.Campaign, octx *domain.OrderContext) bool {
	switch c.TargetType {
	case domain.TargetTypeGlobal:
		return true
	case domain.TargetTypeMarket:
		return octx.MarketID != "" && contains(c.TargetMarketIDs, octx.MarketID)
	case domain.TargetTypeProduct:
		return intersects(c.TargetProductIDs, octx.ProductIDs)
	case domain.TargetTypeCategory:
		return intersects(c.TargetCategories, octx.Categories)
	case domain.TargetTypeUser:
		return octx.UserID != "" && contains(c.TargetUserIDs, octx.UserID)
	case domain.TargetTypeReferral:
		// Order history is the caller's knowledge; the flag is pre-computed.
		return octx.IsReferral
	case domain.TargetTypeFirstOrder:
		return octx.IsFirstOrder
	default:
		return false
	}
}

func conditionsHold(cond domain.Conditions, octx *domain.OrderContext, now time.Time) (bool, string) {
	if len(cond.AllowedDaysOfWeek) > 0 {
		allowed := false
		for _, name := range cond.AllowedDaysOfWeek {
			if d, ok := domain.ParseDayOfWeek(name); ok && d == now.Weekday() {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, ReasonDayNotAllowed
		}
	}

	if cond.TimeWindowStart != "" && cond.TimeWindowEnd != "" {
		start, err1 := domain.ParseTimeOfDay(cond.TimeWindowStart)
		end, err2 := domain.ParseTimeOfDay(cond.TimeWindowEnd)
		if err1 == nil && err2 == nil {
			minute := now.Hour()*60 + now.Minute()
			if !inWindow(minute, start, end) {
				return false, ReasonTimeNotAllowed
			}
		}
	}

	if cond.UserType != "" && cond.UserType != octx.UserType {
		return false, ReasonUserTypeMismatch
	}

	if cond.MinOrderCount != nil && octx.OrderCount < *cond.MinOrderCount {
		return false, ReasonOrderCountOutside
	}
	if cond.MaxOrderCount != nil && octx.OrderCount > *cond.MaxOrderCount {
		return false, ReasonOrderCountOutside
	}

	if cond.MaxDaysSinceLastOrder != nil {
		if octx.DaysSinceLastOrder == nil || *octx.DaysSinceLastOrder > *cond.MaxDaysSinceLastOrder {
			return false, ReasonLastOrderTooOld
		}
	}

	return true, ""
}

// inWindow checks minute membership in the half-open window [start, end),
// handling windows that wrap past midnight.
func inWindow(minute, start, end int) bool {
	if start <= end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
