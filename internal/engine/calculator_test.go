package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clearcart/promotion-engine/internal/domain"
)

func percentCampaign(value int64) *domain.Campaign {
	return &domain.Campaign{
		ID:            "camp-pct",
		Type:          domain.CampaignTypePercentage,
		DiscountValue: value,
	}
}

func TestCalculate_Percentage(t *testing.T) {
	tests := []struct {
		name        string
		value       int64
		maxDiscount int64
		orderAmount int64
		want        int64
	}{
		{name: "simple", value: 20, orderAmount: 10000, want: 2000},
		{name: "rounds half up", value: 15, orderAmount: 1005, want: 151},
		{name: "rounds down below half", value: 10, orderAmount: 1004, want: 100},
		{name: "full order", value: 100, orderAmount: 4200, want: 4200},
		{name: "zero percent", value: 0, orderAmount: 10000, want: 0},
		{name: "campaign cap applies", value: 50, maxDiscount: 1000, orderAmount: 10000, want: 1000},
		{name: "cap above computed is inert", value: 10, maxDiscount: 5000, orderAmount: 10000, want: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := percentCampaign(tt.value)
			c.MaxDiscountAmount = tt.maxDiscount
			got := Calculate(c, &domain.OrderContext{OrderAmount: tt.orderAmount})
			assert.Equal(t, tt.want, got.Amount)
			assert.False(t, got.FreeShipping)
		})
	}
}

func TestCalculate_PercentageExcludesDiscountedItems(t *testing.T) {
	c := percentCampaign(10)
	c.Conditions.ExcludeDiscountedItems = true

	octx := &domain.OrderContext{
		OrderAmount: 10000,
		LineItems: []domain.LineItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: 3000},
			{ProductID: "p2", Quantity: 1, UnitPrice: 4000, AlreadyDiscounted: true},
		},
	}

	// Base shrinks to 6000 once the discounted line is removed.
	got := Calculate(c, octx)
	assert.Equal(t, int64(600), got.Amount)
}

func TestCalculate_FixedAmount(t *testing.T) {
	c := &domain.Campaign{Type: domain.CampaignTypeFixedAmount, DiscountValue: 1500}

	got := Calculate(c, &domain.OrderContext{OrderAmount: 10000})
	assert.Equal(t, int64(1500), got.Amount)

	// Never exceeds the order total.
	got = Calculate(c, &domain.OrderContext{OrderAmount: 900})
	assert.Equal(t, int64(900), got.Amount)
}

func TestCalculate_FreeShipping(t *testing.T) {
	c := &domain.Campaign{Type: domain.CampaignTypeFreeShipping}

	got := Calculate(c, &domain.OrderContext{OrderAmount: 10000})
	assert.Equal(t, int64(0), got.Amount)
	assert.True(t, got.FreeShipping)
}

func TestCalculate_BuyXGetY_SharedPool(t *testing.T) {
	c := &domain.Campaign{
		Type:          domain.CampaignTypeBuyXGetY,
		DiscountValue: 100,
		BuyXGetY:      &domain.BuyXGetYConfig{BuyQuantity: 2, GetQuantity: 1},
	}
	octx := &domain.OrderContext{
		OrderAmount: 600,
		LineItems: []domain.LineItem{
			{ProductID: "p1", Quantity: 6, UnitPrice: 100},
		},
	}

	// Six units at buy-2-get-1 form two complete groups of three, so two
	// units are free.
	got := Calculate(c, octx)
	assert.Equal(t, int64(200), got.Amount)

	// Half off the free units.
	c.DiscountValue = 50
	got = Calculate(c, octx)
	assert.Equal(t, int64(100), got.Amount)
}

func TestCalculate_BuyXGetY_CheapestUnitsFree(t *testing.T) {
	c := &domain.Campaign{
		Type:          domain.CampaignTypeBuyXGetY,
		DiscountValue: 100,
		BuyXGetY:      &domain.BuyXGetYConfig{BuyQuantity: 2, GetQuantity: 1},
	}
	octx := &domain.OrderContext{
		OrderAmount: 1200,
		LineItems: []domain.LineItem{
			{ProductID: "expensive", Quantity: 2, UnitPrice: 500},
			{ProductID: "cheap", Quantity: 1, UnitPrice: 200},
		},
	}

	// One group of three; the single free unit is the cheapest.
	got := Calculate(c, octx)
	assert.Equal(t, int64(200), got.Amount)
}

func TestCalculate_BuyXGetY_SameProduct(t *testing.T) {
	c := &domain.Campaign{
		Type:          domain.CampaignTypeBuyXGetY,
		DiscountValue: 100,
		BuyXGetY: &domain.BuyXGetYConfig{
			BuyQuantity:        2,
			GetQuantity:        1,
			ApplyToSameProduct: true,
		},
	}
	octx := &domain.OrderContext{
		OrderAmount: 1100,
		LineItems: []domain.LineItem{
			// Three units of p1 form one group; p2's units cannot combine
			// with them.
			{ProductID: "p1", Quantity: 3, UnitPrice: 300},
			{ProductID: "p2", Quantity: 2, UnitPrice: 100},
		},
	}

	got := Calculate(c, octx)
	assert.Equal(t, int64(300), got.Amount)
}

func TestCalculate_BuyXGetY_DistinctSets(t *testing.T) {
	c := &domain.Campaign{
		Type:          domain.CampaignTypeBuyXGetY,
		DiscountValue: 100,
		BuyXGetY: &domain.BuyXGetYConfig{
			BuyQuantity:   3,
			GetQuantity:   1,
			BuyProductIDs: []string{"buy-1"},
			GetProductIDs: []string{"get-1", "get-2"},
		},
	}
	octx := &domain.OrderContext{
		OrderAmount: 2600,
		LineItems: []domain.LineItem{
			{ProductID: "buy-1", Quantity: 6, UnitPrice: 300},
			{ProductID: "get-1", Quantity: 1, UnitPrice: 500},
			{ProductID: "get-2", Quantity: 2, UnitPrice: 150},
		},
	}

	// Six buy units grant two free get units, cheapest first.
	got := Calculate(c, octx)
	assert.Equal(t, int64(300), got.Amount)
}

func TestCalculate_BuyXGetY_IncompleteGroup(t *testing.T) {
	c := &domain.Campaign{
		Type:          domain.CampaignTypeBuyXGetY,
		DiscountValue: 100,
		BuyXGetY:      &domain.BuyXGetYConfig{BuyQuantity: 2, GetQuantity: 1},
	}
	octx := &domain.OrderContext{
		OrderAmount: 200,
		LineItems: []domain.LineItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: 100},
		},
	}

	got := Calculate(c, octx)
	assert.Equal(t, int64(0), got.Amount)
}

func TestCalculate_BuyXGetY_NoLineItems(t *testing.T) {
	c := &domain.Campaign{
		Type:          domain.CampaignTypeBuyXGetY,
		DiscountValue: 100,
		BuyXGetY:      &domain.BuyXGetYConfig{BuyQuantity: 2, GetQuantity: 1},
	}

	got := Calculate(c, &domain.OrderContext{OrderAmount: 600})
	assert.Equal(t, int64(0), got.Amount)
}

func TestCalculate_UnknownTypeYieldsZero(t *testing.T) {
	c := &domain.Campaign{Type: "mystery"}
	got := Calculate(c, &domain.OrderContext{OrderAmount: 1000})
	assert.Equal(t, int64(0), got.Amount)
	assert.False(t, got.FreeShipping)
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, int64(151), roundHalfUp(15075, 100))
	assert.Equal(t, int64(100), roundHalfUp(10040, 100))
	assert.Equal(t, int64(1), roundHalfUp(50, 100))
	assert.Equal(t, int64(0), roundHalfUp(49, 100))
}
