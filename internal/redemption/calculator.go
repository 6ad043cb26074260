// Package redemption holds the pure points/currency conversion math.
package redemption

import (
	"math"

	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
)

// DiscountForPoints converts a points quantity to a minor-unit discount
// at the given redemption rate (currency units per point).
func DiscountForPoints(points int64, rate float64) int64 {
	if points <= 0 || rate <= 0 {
		return 0
	}
	return int64(math.Round(float64(points) * rate * 100))
}

// PointsForDiscount is the inverse of DiscountForPoints: how many points
// are needed to cover the given minor-unit amount.
func PointsForDiscount(amount int64, rate float64) int64 {
	if amount <= 0 || rate <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(amount) / (rate * 100)))
}

// PointsForOrderTotal computes the points earned on an order total.
// Percentage earning awards round(total × rate / 100) points; per-product
// earning is resolved against line-item rules outside the core and
// contributes nothing here.
func PointsForOrderTotal(total int64, rate float64, earningType programdomain.EarningType) int64 {
	if total <= 0 || rate <= 0 {
		return 0
	}
	switch earningType {
	case programdomain.EarningTypePercentage:
		return int64(math.Round(float64(total) * rate / 100))
	case programdomain.EarningTypePerProduct:
		return 0
	default:
		return 0
	}
}

// ApplyMultiplier scales earned points by a tier multiplier.
func ApplyMultiplier(points int64, multiplier float64) int64 {
	if points <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return points
	}
	return int64(math.Round(float64(points) * multiplier))
}
