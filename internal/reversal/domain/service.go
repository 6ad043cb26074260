package domain

import (
	"context"
	"errors"
)

// Result reports what a compensating event actually did. Duplicate means
// the event was already processed and this call changed nothing, which is
// success to the caller.
type Result struct {
	CustomerID string `json:"customer_id"`
	Points     int64  `json:"points"`
	Duplicate  bool   `json:"duplicate"`
}

type Service interface {
	// CancelOrder removes the order's earned points (clamped to what is
	// still reversible and to the current balance), tombstones the order's
	// activity, and re-evaluates the tier. Replay safe: the ledger row for
	// (customer, order, cancel_deducted) is the idempotency record.
	CancelOrder(ctx context.Context, orderID string) (Result, error)

	// CompleteReturn deducts the share of the order's earn matching the
	// refunded fraction of the order total, keyed by returnID, and shrinks
	// the order's counted spend by the refunded amount.
	CompleteReturn(ctx context.Context, returnID, orderID string, refundedAmount int64) (Result, error)

	// ReverseReturn gives back exactly what the matching return deduction
	// took, keyed by returnID.
	ReverseReturn(ctx context.Context, returnID string) (Result, error)
}

var (
	ErrInvalidOrder  = errors.New("invalid_order")
	ErrInvalidReturn = errors.New("invalid_return")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrUnknownOrder  = errors.New("unknown_order")
	ErrUnknownReturn = errors.New("unknown_return")
)
