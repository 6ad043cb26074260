package domain

import (
	"context"
	"errors"
)

type ApplyRequest struct {
	CustomerID string
	Type       TransactionType
	// Amount is the signed effect on the balance: positive for earning
	// types, negative for deducting types.
	Amount   int64
	OrderID  string
	ReturnID string
	Reason   string
	ActorID  string
}

type Service interface {
	// Apply validates and writes one ledger transaction plus the balance
	// update as a single atomic unit. A transaction that would drive the
	// balance negative is rejected with ErrInsufficientBalance and has no
	// effect. For order/return-keyed types a replay returns
	// ErrDuplicateTransaction without writing anything.
	Apply(ctx context.Context, req ApplyRequest) (Transaction, error)

	// GetBalance returns the cached balance; an unknown customer is a zero
	// balance, not an error.
	GetBalance(ctx context.Context, customerID string) (Balance, error)

	// ListTransactions returns the customer's history newest first.
	ListTransactions(ctx context.Context, customerID string, limit, offset int) ([]Transaction, int64, error)

	// FindByOrder looks up the transaction recorded for (order, type), if
	// any. This is the idempotency source for compensating events.
	FindByOrder(ctx context.Context, orderID string, txType TransactionType) (*Transaction, error)

	// FindByReturn looks up the transaction recorded for (return, type).
	FindByReturn(ctx context.Context, returnID string, txType TransactionType) (*Transaction, error)

	// SumByOrder totals the signed amounts of all transactions of the given
	// type referencing the order.
	SumByOrder(ctx context.Context, orderID string, txType TransactionType) (int64, error)

	// Rebuild recomputes the cached balance from a full scan of the log.
	Rebuild(ctx context.Context, customerID string) (Balance, error)
}

var (
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidType          = errors.New("invalid_transaction_type")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrMissingOrderRef      = errors.New("missing_order_reference")
	ErrMissingReturnRef     = errors.New("missing_return_reference")
	ErrInsufficientBalance  = errors.New("insufficient_balance")
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
)
