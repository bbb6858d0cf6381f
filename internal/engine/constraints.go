package engine

import (
	"fmt"

	"github.com/clearcart/promotion-engine/internal/domain"
	apperrors "github.com/clearcart/promotion-engine/pkg/errors"
)

// Constraint warnings attached to clamped-but-accepted results.
const (
	WarningClampedToMaxPercent = "discount reduced to the maximum allowed percentage of the order"
	WarningClampedToMaxAmount  = "discount reduced to the maximum allowed discount amount"
)

// ApplyConstraints validates a proposed discount against the system-wide
// caps. It only ever reduces the amount; clamping is reported through
// warnings, never as a failure. The single outright rejection is an order
// total below the global minimum.
func ApplyConstraints(orderTotal, proposed int64, cons domain.DiscountConstraints) (int64, []string, error) {
	if orderTotal < cons.MinOrderAmount {
		return 0, nil, apperrors.BelowMinimumOrder(
			fmt.Sprintf("order total %d is below the minimum %d required for discounts", orderTotal, cons.MinOrderAmount),
		)
	}

	accepted := proposed
	var warnings []string

	if cons.MaxDiscountPercent > 0 {
		limit := roundHalfUp(orderTotal*cons.MaxDiscountPercent, 100)
		if accepted > limit {
			accepted = limit
			warnings = append(warnings, WarningClampedToMaxPercent)
		}
	}

	if cons.MaxDiscountAmount > 0 && accepted > cons.MaxDiscountAmount {
		accepted = cons.MaxDiscountAmount
		warnings = append(warnings, WarningClampedToMaxAmount)
	}

	if accepted < 0 {
		accepted = 0
	}

	return accepted, warnings, nil
}
