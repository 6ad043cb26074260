package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier is an admin-editable membership level definition.
//
// Ranks totally order active tiers: a higher rank always carries thresholds
// at least as large as every lower rank. The default tier has rank 0 and
// zero thresholds, and exactly one default exists system-wide.
type Tier struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	Slug               string       `gorm:"type:text;not null;uniqueIndex:ux_loyalty_tiers_slug" json:"slug"`
	Name               string       `gorm:"type:text;not null" json:"name"`
	Rank               int          `gorm:"not null" json:"rank"`
	OrderThreshold     int64        `gorm:"not null;default:0" json:"order_threshold"`
	SpendThreshold     int64        `gorm:"not null;default:0" json:"spend_threshold"`
	PointsMultiplier   float64      `gorm:"not null;default:1" json:"points_multiplier"`
	DiscountPercentage float64      `gorm:"not null;default:0" json:"discount_percentage"`
	IsDefault          bool         `gorm:"not null;default:false" json:"is_default"`
	IsActive           bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tier) TableName() string { return "loyalty_tiers" }

// Satisfies reports whether the given window activity clears both thresholds.
func (t Tier) Satisfies(orderCount int64, spendTotal int64) bool {
	return orderCount >= t.OrderThreshold && spendTotal >= t.SpendThreshold
}
