package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionType classifies every ledger mutation.
type TransactionType string

const (
	// Positive effect on balance.
	TypeEarned         TransactionType = "earned"
	TypeAdminAdded     TransactionType = "admin_added"
	TypeReturnRestored TransactionType = "return_restored"
	TypeCancelRestored TransactionType = "cancel_restored"

	// Negative effect on balance.
	TypeRedeemed       TransactionType = "redeemed"
	TypeAdminRemoved   TransactionType = "admin_removed"
	TypeReturnDeducted TransactionType = "return_deducted"
	TypeCancelDeducted TransactionType = "cancel_deducted"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeEarned, TypeAdminAdded, TypeReturnRestored, TypeCancelRestored,
		TypeRedeemed, TypeAdminRemoved, TypeReturnDeducted, TypeCancelDeducted:
		return true
	default:
		return false
	}
}

// Positive reports whether the type adds points to the balance.
func (t TransactionType) Positive() bool {
	switch t {
	case TypeEarned, TypeAdminAdded, TypeReturnRestored, TypeCancelRestored:
		return true
	default:
		return false
	}
}

// OrderKeyed types are idempotent per (customer, order): replaying the same
// commerce event must not produce a second row.
func (t TransactionType) OrderKeyed() bool {
	switch t {
	case TypeEarned, TypeCancelDeducted, TypeCancelRestored:
		return true
	default:
		return false
	}
}

// ReturnKeyed types are idempotent per (customer, return).
func (t TransactionType) ReturnKeyed() bool {
	switch t {
	case TypeReturnDeducted, TypeReturnRestored:
		return true
	default:
		return false
	}
}

// Transaction is one immutable ledger row. Rows are never updated or
// deleted; corrections are recorded as compensating transactions.
type Transaction struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	CustomerID   string          `gorm:"type:text;not null;index" json:"customer_id"`
	Type         TransactionType `gorm:"type:text;not null" json:"type"`
	Amount       int64           `gorm:"not null" json:"amount"`
	OrderID      *string         `gorm:"type:text;index" json:"order_id,omitempty"`
	ReturnID     *string         `gorm:"type:text;index" json:"return_id,omitempty"`
	Reason       string          `gorm:"type:text;not null" json:"reason"`
	BalanceAfter int64           `gorm:"not null" json:"balance_after"`
	CreatedBy    *string         `gorm:"type:text" json:"created_by,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "points_transactions" }

// Balance is the cached projection of a customer's transaction log.
// It is rebuildable from the log at any time; the log is the source of truth.
type Balance struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"-"`
	CustomerID    string       `gorm:"type:text;not null;uniqueIndex:ux_points_balances_customer" json:"customer_id"`
	Balance       int64        `gorm:"not null;default:0" json:"balance"`
	TotalEarned   int64        `gorm:"not null;default:0" json:"total_earned"`
	TotalRedeemed int64        `gorm:"not null;default:0" json:"total_redeemed"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Balance) TableName() string { return "points_balances" }
