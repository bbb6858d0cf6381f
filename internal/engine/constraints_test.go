package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearcart/promotion-engine/internal/domain"
	apperrors "github.com/clearcart/promotion-engine/pkg/errors"
)

func TestApplyConstraints_NoCaps(t *testing.T) {
	accepted, warnings, err := ApplyConstraints(10000, 3000, domain.DiscountConstraints{})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), accepted)
	assert.Empty(t, warnings)
}

func TestApplyConstraints_BelowMinimumOrderRejects(t *testing.T) {
	cons := domain.DiscountConstraints{MinOrderAmount: 2000}

	_, _, err := ApplyConstraints(1999, 500, cons)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBelowMinimumOrder)

	accepted, _, err := ApplyConstraints(2000, 500, cons)
	require.NoError(t, err)
	assert.Equal(t, int64(500), accepted)
}

func TestApplyConstraints_PercentCapClampsWithWarning(t *testing.T) {
	cons := domain.DiscountConstraints{MaxDiscountPercent: 30}

	accepted, warnings, err := ApplyConstraints(10000, 5000, cons)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), accepted)
	assert.Equal(t, []string{WarningClampedToMaxPercent}, warnings)
}

func TestApplyConstraints_AbsoluteCapClampsWithWarning(t *testing.T) {
	cons := domain.DiscountConstraints{MaxDiscountAmount: 1000}

	accepted, warnings, err := ApplyConstraints(10000, 2500, cons)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), accepted)
	assert.Equal(t, []string{WarningClampedToMaxAmount}, warnings)
}

func TestApplyConstraints_BothCapsStack(t *testing.T) {
	cons := domain.DiscountConstraints{
		MaxDiscountPercent: 50,
		MaxDiscountAmount:  2000,
	}

	// Percent clamps 9000 to 5000, then the absolute cap clamps to 2000.
	accepted, warnings, err := ApplyConstraints(10000, 9000, cons)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), accepted)
	assert.Equal(t, []string{WarningClampedToMaxPercent, WarningClampedToMaxAmount}, warnings)
}

func TestApplyConstraints_WithinCapsNoWarnings(t *testing.T) {
	cons := domain.DiscountConstraints{
		MinOrderAmount:     1000,
		MaxDiscountPercent: 50,
		MaxDiscountAmount:  5000,
	}

	accepted, warnings, err := ApplyConstraints(10000, 2000, cons)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), accepted)
	assert.Empty(t, warnings)
}

func TestApplyConstraints_PercentCapRoundsHalfUp(t *testing.T) {
	cons := domain.DiscountConstraints{MaxDiscountPercent: 15}

	accepted, _, err := ApplyConstraints(1005, 500, cons)
	require.NoError(t, err)
	assert.Equal(t, int64(151), accepted)
}
