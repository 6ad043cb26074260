package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Order is one append-only activity row. Cancellations tombstone the row
// via ReversedAt instead of deleting it; returns shrink CountedSpend while
// the order itself stays counted.
type Order struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID   string       `gorm:"type:text;not null;uniqueIndex:ux_activity_orders_customer_order" json:"customer_id"`
	OrderID      string       `gorm:"type:text;not null;uniqueIndex:ux_activity_orders_customer_order;index:ix_activity_orders_order" json:"order_id"`
	OrderTotal   int64        `gorm:"not null" json:"order_total"`
	CountedSpend int64        `gorm:"not null" json:"counted_spend"`
	OrderDate    time.Time    `gorm:"not null;index:ix_activity_orders_date" json:"order_date"`
	ReversedAt   *time.Time   `json:"reversed_at,omitempty"`
	CreatedAt    time.Time    `gorm:"autoCreateTime:false" json:"created_at"`
}

func (Order) TableName() string {
	return "activity_orders"
}

// Window is the cached per-customer rolling aggregate. It is derived from
// activity_orders and can always be recomputed from them.
type Window struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID        string       `gorm:"type:text;not null;uniqueIndex:ux_activity_windows_customer" json:"customer_id"`
	RollingOrderCount int64        `gorm:"not null" json:"rolling_order_count"`
	RollingSpendTotal int64        `gorm:"not null" json:"rolling_spend_total"`
	WindowStart       time.Time    `gorm:"not null" json:"window_start"`
	LastCalculatedAt  time.Time    `gorm:"not null" json:"last_calculated_at"`
}

func (Window) TableName() string {
	return "activity_windows"
}

// Refund records one applied spend reduction, keyed by (order, return) so
// a replayed return event reduces counted spend exactly once.
type Refund struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderID   string       `gorm:"type:text;not null;uniqueIndex:ux_activity_refunds_order_return" json:"order_id"`
	ReturnID  string       `gorm:"type:text;not null;uniqueIndex:ux_activity_refunds_order_return" json:"return_id"`
	Refunded  int64        `gorm:"not null" json:"refunded"`
	CreatedAt time.Time    `gorm:"autoCreateTime:false" json:"created_at"`
}

func (Refund) TableName() string {
	return "activity_refunds"
}

// Snapshot is a point-in-time view of a customer's rolling window, the
// input the tier evaluator works from.
type Snapshot struct {
	CustomerID  string    `json:"customer_id"`
	OrderCount  int64     `json:"order_count"`
	SpendTotal  int64     `json:"spend_total"`
	WindowStart time.Time `json:"window_start"`
	AsOf        time.Time `json:"as_of"`
}
