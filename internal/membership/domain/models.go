package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Membership ties a customer to their current tier. Records are soft-retired
// via Status and never deleted, so a returning customer keeps their history.
type Membership struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID      string       `gorm:"type:text;not null;uniqueIndex:ux_memberships_customer" json:"customer_id"`
	TierSlug        string       `gorm:"type:text;not null" json:"tier_slug"`
	Status          Status       `gorm:"type:text;not null;default:'active'" json:"status"`
	EnrolledAt      time.Time    `gorm:"not null" json:"enrolled_at"`
	TierUpdatedAt   time.Time    `gorm:"not null" json:"tier_updated_at"`
	LastEvaluatedAt *time.Time   `gorm:"index:ix_memberships_last_evaluated" json:"last_evaluated_at,omitempty"`
}

func (Membership) TableName() string {
	return "memberships"
}

func (m Membership) Active() bool {
	return m.Status == StatusActive
}
