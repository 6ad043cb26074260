package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// RecordOrder appends one activity row. Replaying the same
	// (customer, order) pair returns ErrDuplicateOrder without writing.
	RecordOrder(ctx context.Context, customerID, orderID string, total int64, orderDate time.Time) error

	// GetOrder returns the recorded activity row for the order.
	GetOrder(ctx context.Context, orderID string) (Order, error)

	// ReverseOrder tombstones the order so it no longer contributes to any
	// window. Returns the owning customer and whether this call did the
	// tombstoning; an already-reversed order reports false with no error.
	ReverseOrder(ctx context.Context, orderID string) (string, bool, error)

	// ReduceOrderSpend shrinks the order's counted spend by the refunded
	// amount, floored at zero. The order keeps counting toward order_count.
	// Keyed by (order, return): replaying the same return reduces nothing.
	// Returns the owning customer.
	ReduceOrderSpend(ctx context.Context, orderID, returnID string, refunded int64) (string, error)

	// Window recomputes the rolling aggregate over [asOf - months, asOf]
	// from the order log, ignoring tombstoned rows. Read only.
	Window(ctx context.Context, customerID string, asOf time.Time, months int) (Snapshot, error)

	// RefreshWindow recomputes like Window and upserts the cached
	// activity_windows row.
	RefreshWindow(ctx context.Context, customerID string, asOf time.Time, months int) (Snapshot, error)
}

var (
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidOrder    = errors.New("invalid_order")
	ErrInvalidReturn   = errors.New("invalid_return")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidWindow   = errors.New("invalid_window")
	ErrDuplicateOrder  = errors.New("duplicate_order")
	ErrOrderNotFound   = errors.New("order_not_found")
)
