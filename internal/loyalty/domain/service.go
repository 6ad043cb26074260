package domain

import (
	"context"
	"errors"
	"time"

	pointsdomain "github.com/smallbiznis/fidelio/internal/points/domain"
	reversaldomain "github.com/smallbiznis/fidelio/internal/reversal/domain"
)

// OrderPlacedResult summarizes what an order-placed event did. Skipped is
// set when the program is disabled; Duplicate when the order had already
// been processed.
type OrderPlacedResult struct {
	CustomerID   string `json:"customer_id"`
	PointsEarned int64  `json:"points_earned"`
	TierChanged  bool   `json:"tier_changed"`
	Duplicate    bool   `json:"duplicate"`
	Skipped      bool   `json:"skipped"`
}

// RedemptionResult pairs the ledger transaction of a redemption with the
// discount it buys.
type RedemptionResult struct {
	Transaction pointsdomain.Transaction `json:"transaction"`
	Discount    int64                    `json:"discount"`
}

// Service is the single entry point the commerce platform talks to. Every
// operation is safe to deliver more than once.
type Service interface {
	OnOrderPlaced(ctx context.Context, customerID, orderID string, orderTotal int64, orderDate time.Time) (OrderPlacedResult, error)
	OnOrderCancelled(ctx context.Context, orderID string) (reversaldomain.Result, error)
	OnReturnCompleted(ctx context.Context, returnID, orderID string, refundedAmount int64) (reversaldomain.Result, error)
	OnReturnReversed(ctx context.Context, returnID string) (reversaldomain.Result, error)

	// ApplyPointsToOrder spends points against an order at checkout and
	// returns the discount bought. Fails without an active membership, when
	// the discount would exceed the subtotal, or on insufficient balance.
	ApplyPointsToOrder(ctx context.Context, customerID, orderID string, points, subtotal int64) (RedemptionResult, error)

	// CalculateRedemption prices a prospective redemption without touching
	// the ledger.
	CalculateRedemption(ctx context.Context, points int64) (int64, error)
}

var (
	ErrProgramDisabled         = errors.New("program_disabled")
	ErrNotAMember              = errors.New("not_a_member")
	ErrInvalidPoints           = errors.New("invalid_points")
	ErrDiscountExceedsSubtotal = errors.New("discount_exceeds_subtotal")
)
