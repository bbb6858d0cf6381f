package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clearcart/promotion-engine/internal/domain"
)

func intPtr(i int) *int { return &i }

// A Tuesday at 14:30 UTC.
var evalNow = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func activeCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:         "camp-1",
		Type:       domain.CampaignTypePercentage,
		TargetType: domain.TargetTypeGlobal,
		Status:     domain.CampaignStatusActive,
		StartDate:  evalNow.Add(-24 * time.Hour),
		EndDate:    evalNow.Add(24 * time.Hour),
	}
}

func baseOrder() *domain.OrderContext {
	return &domain.OrderContext{UserID: "user-1", OrderAmount: 10000}
}

func TestEvaluate_ActiveGlobalCampaign(t *testing.T) {
	ok, reason := Evaluate(activeCampaign(), baseOrder(), evalNow, 0)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestEvaluate_OperationalChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Campaign)
		reason string
	}{
		{
			name:   "draft status",
			mutate: func(c *domain.Campaign) { c.Status = domain.CampaignStatusDraft },
			reason: ReasonNotActive,
		},
		{
			name:   "paused status",
			mutate: func(c *domain.Campaign) { c.Status = domain.CampaignStatusPaused },
			reason: ReasonNotActive,
		},
		{
			name:   "not started",
			mutate: func(c *domain.Campaign) { c.StartDate = evalNow.Add(time.Hour) },
			reason: ReasonNotStarted,
		},
		{
			name:   "expired",
			mutate: func(c *domain.Campaign) { c.EndDate = evalNow.Add(-time.Hour) },
			reason: ReasonExpired,
		},
		{
			name: "global usage exhausted",
			mutate: func(c *domain.Campaign) {
				c.MaxUsageCount = 5
				c.CurrentUsageCount = 5
			},
			reason: ReasonUsageLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCampaign()
			tt.mutate(c)
			ok, reason := Evaluate(c, baseOrder(), evalNow, 0)
			assert.False(t, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestEvaluate_PerUserLimit(t *testing.T) {
	c := activeCampaign()
	c.MaxUsagePerUser = 2

	ok, _ := Evaluate(c, baseOrder(), evalNow, 1)
	assert.True(t, ok)

	ok, reason := Evaluate(c, baseOrder(), evalNow, 2)
	assert.False(t, ok)
	assert.Equal(t, ReasonUserLimitReached, reason)
}

func TestEvaluate_TargetMatching(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Campaign)
		order  func(*domain.OrderContext)
		want   bool
	}{
		{
			name: "market match",
			mutate: func(c *domain.Campaign) {
				c.TargetType = domain.TargetTypeMarket
				c.TargetMarketIDs = []string{"us", "de"}
			},
			order: func(o *domain.OrderContext) { o.MarketID = "de" },
			want:  true,
		},
		{
			name: "market mismatch",
			mutate: func(c *domain.Campaign) {
				c.TargetType = domain.TargetTypeMarket
				c.TargetMarketIDs = []string{"us"}
			},
			order: func(o *domain.OrderContext) { o.MarketID = "fr" },
			want:  false,
		},
		{
			name: "product intersection",
			mutate: func(c *domain.Campaign) {
				c.TargetType = domain.TargetTypeProduct
				c.TargetProductIDs = []string{"p1", "p2"}
			},
			order: func(o *domain.OrderContext) { o.ProductIDs = []string{"p9", "p2"} },
			want:  true,
		},
		{
			name: "product no intersection",
			mutate: func(c *domain.Campaign) {
				c.TargetType = domain.TargetTypeProduct
				c.TargetProductIDs = []string{"p1"}
			},
			order: func(o *domain.OrderContext) { o.ProductIDs = []string{"p2"} },
			want:  false,
		},
		{
			name: "category intersection",
			mutate: func(c *domain.Campaign) {
				c.TargetType = domain.TargetTypeCategory
				c.TargetCategories = []string{"shoes"}
			},
			order: func(o *domain.OrderContext) { o.Categories = []string{"shoes", "hats"} },
			want:  true,
		},
		{
			name: "user targeting",
			mutate: func(c *domain.Campaign) {
				c.TargetType = domain.TargetTypeUser
				c.TargetUserIDs = []string{"user-1"}
			},
			order: func(o *domain.OrderContext) {},
			want:  true,
		},
		{
			name: "user not targeted",
			mutate: func(c *domain.Campaign) {
				c.TargetType = domain.TargetTypeUser
				c.TargetUserIDs = []string{"someone-else"}
			},
			order: func(o *domain.OrderContext) {},
			want:  false,
		},
		{
			name:   "referral flag",
			mutate: func(c *domain.Campaign) { c.TargetType = domain.TargetTypeReferral },
			order:  func(o *domain.OrderContext) { o.IsReferral = true },
			want:   true,
		},
		{
			name:   "first order flag unset",
			mutate: func(c *domain.Campaign) { c.TargetType = domain.TargetTypeFirstOrder },
			order:  func(o *domain.OrderContext) {},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCampaign()
			tt.mutate(c)
			o := baseOrder()
			tt.order(o)

			ok, reason := Evaluate(c, o, evalNow, 0)
			assert.Equal(t, tt.want, ok)
			if !tt.want {
				assert.Equal(t, ReasonTargetMismatch, reason)
			}
		})
	}
}

func TestEvaluate_DayOfWeekCondition(t *testing.T) {
	c := activeCampaign()
	c.Conditions.AllowedDaysOfWeek = []string{"tuesday", "wednesday"}

	ok, _ := Evaluate(c, baseOrder(), evalNow, 0)
	assert.True(t, ok)

	c.Conditions.AllowedDaysOfWeek = []string{"saturday", "sunday"}
	ok, reason := Evaluate(c, baseOrder(), evalNow, 0)
	assert.False(t, ok)
	assert.Equal(t, ReasonDayNotAllowed, reason)
}

func TestEvaluate_TimeWindowCondition(t *testing.T) {
	c := activeCampaign()
	c.Conditions.TimeWindowStart = "12:00"
	c.Conditions.TimeWindowEnd = "18:00"

	ok, _ := Evaluate(c, baseOrder(), evalNow, 0)
	assert.True(t, ok)

	c.Conditions.TimeWindowStart = "18:00"
	c.Conditions.TimeWindowEnd = "20:00"
	ok, reason := Evaluate(c, baseOrder(), evalNow, 0)
	assert.False(t, ok)
	assert.Equal(t, ReasonTimeNotAllowed, reason)
}

func TestEvaluate_TimeWindowAcrossMidnight(t *testing.T) {
	c := activeCampaign()
	c.Conditions.TimeWindowStart = "22:00"
	c.Conditions.TimeWindowEnd = "02:00"

	lateNight := time.Date(2026, 3, 10, 23, 15, 0, 0, time.UTC)
	ok, _ := Evaluate(c, baseOrder(), lateNight, 0)
	assert.True(t, ok)

	earlyMorning := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)
	ok, _ = Evaluate(c, baseOrder(), earlyMorning, 0)
	assert.True(t, ok)

	afternoon := evalNow
	ok, reason := Evaluate(c, baseOrder(), afternoon, 0)
	assert.False(t, ok)
	assert.Equal(t, ReasonTimeNotAllowed, reason)
}

func TestEvaluate_UserTypeCondition(t *testing.T) {
	c := activeCampaign()
	c.Conditions.UserType = "vip"

	o := baseOrder()
	o.UserType = "vip"
	ok, _ := Evaluate(c, o, evalNow, 0)
	assert.True(t, ok)

	o.UserType = "returning"
	ok, reason := Evaluate(c, o, evalNow, 0)
	assert.False(t, ok)
	assert.Equal(t, ReasonUserTypeMismatch, reason)
}

func TestEvaluate_OrderCountConditions(t *testing.T) {
	c := activeCampaign()
	c.Conditions.MinOrderCount = intPtr(3)
	c.Conditions.MaxOrderCount = intPtr(10)

	o := baseOrder()
	o.OrderCount = 5
	ok, _ := Evaluate(c, o, evalNow, 0)
	assert.True(t, ok)

	o.OrderCount = 2
	ok, reason := Evaluate(c, o, evalNow, 0)
	assert.False(t, ok)
	assert.Equal(t, ReasonOrderCountOutside, reason)

	o.OrderCount = 11
	ok, reason = Evaluate(c, o, evalNow, 0)
	assert.False(t, ok)
	assert.Equal(t, ReasonOrderCountOutside, reason)
}

func TestEvaluate_MaxDaysSinceLastOrder(t *testing.T) {
	c := activeCampaign()
	c.Conditions.MaxDaysSinceLastOrder = intPtr(30)

	o := baseOrder()
	o.DaysSinceLastOrder = intPtr(14)
	ok, _ := Evaluate(c, o, evalNow, 0)
	assert.True(t, ok)

	o.DaysSinceLastOrder = intPtr(45)
	ok, reason := Evaluate(c, o, evalNow, 0)
	assert.False(t, ok)
	assert.Equal(t, ReasonLastOrderTooOld, reason)

	// Unknown history cannot satisfy the condition.
	o.DaysSinceLastOrder = nil
	ok, _ = Evaluate(c, o, evalNow, 0)
	assert.False(t, ok)
}

func TestEvaluate_CampaignMinimumOrder(t *testing.T) {
	c := activeCampaign()
	c.MinOrderAmount = 5000

	o := baseOrder()
	o.OrderAmount = 4999
	ok, reason := Evaluate(c, o, evalNow, 0)
	assert.False(t, ok)
	assert.Contains(t, reason, "minimum order amount")

	o.OrderAmount = 5000
	ok, _ = Evaluate(c, o, evalNow, 0)
	assert.True(t, ok)
}

func TestEvaluate_CheckOrderIsStable(t *testing.T) {
	// A campaign failing several checks at once reports the first one in
	// the fixed order: status before target before conditions.
	c := activeCampaign()
	c.Status = domain.CampaignStatusPaused
	c.TargetType = domain.TargetTypeMarket
	c.Conditions.UserType = "vip"

	ok, reason := Evaluate(c, baseOrder(), evalNow, 0)
	assert.False(t, ok)
	assert.Equal(t, ReasonNotActive, reason)
}
