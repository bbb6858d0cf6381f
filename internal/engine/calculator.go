package engine

import (
	"sort"

	"github.com/clearcart/promotion-engine/internal/domain"
)

// CalcResult is the outcome of pricing one campaign against an order.
// FreeShipping signals that the caller should waive the shipping fee
// out-of-band; it never reduces the order total here.
type CalcResult struct {
	Amount       int64
	FreeShipping bool
}

// roundHalfUp divides num by den rounding half away from zero. Both
// arguments must be non-negative; den must be positive. Used for all
// minor-unit money math to avoid systematic under/over-charging.
func roundHalfUp(num, den int64) int64 {
	return (num + den/2) / den
}

// Calculate computes the discount a campaign would produce for the order
// context. The result is always in [0, OrderAmount].
func Calculate(c *domain.Campaign, octx *domain.OrderContext) CalcResult {
	switch c.Type {
	case domain.CampaignTypePercentage:
		return CalcResult{Amount: percentageDiscount(c, octx)}

	case domain.CampaignTypeFixedAmount:
		amount := c.DiscountValue
		if amount > octx.OrderAmount {
			amount = octx.OrderAmount
		}
		if amount < 0 {
			amount = 0
		}
		return CalcResult{Amount: amount}

	case domain.CampaignTypeFreeShipping:
		return CalcResult{Amount: 0, FreeShipping: true}

	case domain.CampaignTypeBuyXGetY:
		return CalcResult{Amount: buyXGetYDiscount(c, octx)}

	default:
		return CalcResult{}
	}
}

func percentageDiscount(c *domain.Campaign, octx *domain.OrderContext) int64 {
	base := discountableBase(c, octx)
	amount := roundHalfUp(base*c.DiscountValue, 100)

	if c.MaxDiscountAmount > 0 && amount > c.MaxDiscountAmount {
		amount = c.MaxDiscountAmount
	}
	if amount > octx.OrderAmount {
		amount = octx.OrderAmount
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

// discountableBase returns the portion of the order total the percentage
// applies to. When the campaign excludes already-discounted items and line
// items are available, their value is removed from the base.
func discountableBase(c *domain.Campaign, octx *domain.OrderContext) int64 {
	base := octx.OrderAmount
	if !c.Conditions.ExcludeDiscountedItems || len(octx.LineItems) == 0 {
		return base
	}
	for _, li := range octx.LineItems {
		if li.AlreadyDiscounted {
			base -= int64(li.Quantity) * li.UnitPrice
		}
	}
	if base < 0 {
		base = 0
	}
	return base
}

// buyXGetYDiscount prices a buy-X-get-Y campaign from the order's line
// items. For the shared-pool case (same-product or no distinct buy/get
// sets) every complete group of buy+get units grants the get-quantity
// cheapest units free. With distinct buy/get product sets, each complete
// buy group grants up to get-quantity free units from the get pool,
// cheapest first. DiscountValue scales the granted units as a percent off
// (100 = fully free).
func buyXGetYDiscount(c *domain.Campaign, octx *domain.OrderContext) int64 {
	cfg := c.BuyXGetY
	if cfg == nil || cfg.BuyQuantity <= 0 || cfg.GetQuantity <= 0 || len(octx.LineItems) == 0 {
		return 0
	}

	items := octx.LineItems
	if c.Conditions.ExcludeDiscountedItems {
		items = withoutDiscounted(items)
	}

	var freeValue int64
	switch {
	case cfg.ApplyToSameProduct:
		// The free item must be the same product as the purchased ones:
		// group each product's units independently.
		for _, line := range groupByProduct(items) {
			groups := line.units / (cfg.BuyQuantity + cfg.GetQuantity)
			freeValue += int64(groups*cfg.GetQuantity) * line.unitPrice
		}

	case len(cfg.BuyProductIDs) > 0 || len(cfg.GetProductIDs) > 0:
		buyUnits := countUnits(items, cfg.BuyProductIDs)
		getPrices := unitPrices(items, cfg.GetProductIDs)
		groups := buyUnits / cfg.BuyQuantity
		freeCount := groups * cfg.GetQuantity
		if freeCount > len(getPrices) {
			freeCount = len(getPrices)
		}
		sort.Slice(getPrices, func(i, j int) bool { return getPrices[i] < getPrices[j] })
		for _, p := range getPrices[:freeCount] {
			freeValue += p
		}

	default:
		// Shared pool across the campaign's qualifying items.
		pool := unitPrices(items, c.TargetProductIDs)
		groups := len(pool) / (cfg.BuyQuantity + cfg.GetQuantity)
		freeCount := groups * cfg.GetQuantity
		sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })
		for _, p := range pool[:freeCount] {
			freeValue += p
		}
	}

	amount := roundHalfUp(freeValue*c.DiscountValue, 100)

	if c.MaxDiscountAmount > 0 && amount > c.MaxDiscountAmount {
		amount = c.MaxDiscountAmount
	}
	if amount > octx.OrderAmount {
		amount = octx.OrderAmount
	}
	return amount
}

type productLine struct {
	units     int
	unitPrice int64
}

func groupByProduct(items []domain.LineItem) map[string]productLine {
	lines := make(map[string]productLine, len(items))
	for _, li := range items {
		l := lines[li.ProductID]
		l.units += li.Quantity
		l.unitPrice = li.UnitPrice
		lines[li.ProductID] = l
	}
	return lines
}

// unitPrices expands matching line items into one price per unit. An empty
// filter matches every item.
func unitPrices(items []domain.LineItem, filter []string) []int64 {
	var prices []int64
	for _, li := range items {
		if len(filter) > 0 && !contains(filter, li.ProductID) {
			continue
		}
		for i := 0; i < li.Quantity; i++ {
			prices = append(prices, li.UnitPrice)
		}
	}
	return prices
}

func countUnits(items []domain.LineItem, filter []string) int {
	var n int
	for _, li := range items {
		if len(filter) > 0 && !contains(filter, li.ProductID) {
			continue
		}
		n += li.Quantity
	}
	return n
}

func withoutDiscounted(items []domain.LineItem) []domain.LineItem {
	kept := make([]domain.LineItem, 0, len(items))
	for _, li := range items {
		if !li.AlreadyDiscounted {
			kept = append(kept, li)
		}
	}
	return kept
}
