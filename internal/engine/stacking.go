package engine

import (
	"sort"

	"github.com/clearcart/promotion-engine/internal/domain"
)

// PricedCampaign pairs an eligible campaign with its computed discount.
type PricedCampaign struct {
	Campaign     *domain.Campaign
	Amount       int64
	FreeShipping bool
}

// Resolve picks the subset of eligible, priced campaigns to actually apply
// and returns them in application order with the combined discount.
//
// The policy is greedy and priority-first: campaigns are sorted by priority
// descending, then computed amount descending, then campaign ID ascending
// for a stable, deterministic order. The highest-ranked campaign is always
// taken. Each subsequent campaign joins only if it and every campaign
// already selected are stackable; the first non-stackable candidate after
// that terminates the scan.
func Resolve(priced []PricedCampaign) ([]PricedCampaign, int64) {
	if len(priced) == 0 {
		return nil, 0
	}

	ordered := make([]PricedCampaign, len(priced))
	copy(ordered, priced)

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Campaign.Priority != b.Campaign.Priority {
			return a.Campaign.Priority > b.Campaign.Priority
		}
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return a.Campaign.ID < b.Campaign.ID
	})

	selected := []PricedCampaign{ordered[0]}
	total := ordered[0].Amount

	if ordered[0].Campaign.IsStackable {
		for _, cand := range ordered[1:] {
			if !cand.Campaign.IsStackable {
				break
			}
			selected = append(selected, cand)
			total += cand.Amount
		}
	}

	return selected, total
}
