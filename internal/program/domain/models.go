package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type ProgramType string

const (
	ProgramTypeFree ProgramType = "free"
	ProgramTypePaid ProgramType = "paid"
)

type EvaluationTrigger string

const (
	EvaluationTriggerOnOrder EvaluationTrigger = "on_order"
	EvaluationTriggerDaily   EvaluationTrigger = "daily"
	EvaluationTriggerBoth    EvaluationTrigger = "both"
)

type EarningType string

const (
	EarningTypePercentage EarningType = "percentage"
	EarningTypePerProduct EarningType = "per_product"
)

// Config is the loyalty program singleton.
type Config struct {
	ID                     snowflake.ID      `gorm:"primaryKey" json:"id"`
	ProgramType            ProgramType       `gorm:"type:text;not null;default:'free'" json:"program_type"`
	Price                  int64             `gorm:"not null;default:0" json:"price"`
	DurationMonths         int               `gorm:"not null;default:12" json:"duration_months"`
	EvaluationPeriodMonths int               `gorm:"not null;default:12" json:"evaluation_period_months"`
	EvaluationTrigger      EvaluationTrigger `gorm:"type:text;not null;default:'both'" json:"evaluation_trigger"`
	AutoEnrollOnFirstOrder bool              `gorm:"not null;default:true" json:"auto_enroll_on_first_order"`
	EarningType            EarningType       `gorm:"type:text;not null;default:'percentage'" json:"earning_type"`
	EarningRate            float64           `gorm:"not null;default:5" json:"earning_rate"`
	RedemptionRate         float64           `gorm:"not null;default:0.01" json:"redemption_rate"`
	IsEnabled              bool              `gorm:"not null;default:true" json:"is_enabled"`
	UpdatedAt              time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Config) TableName() string { return "loyalty_configs" }

func (c Config) EvaluatesOnOrder() bool {
	return c.EvaluationTrigger == EvaluationTriggerOnOrder || c.EvaluationTrigger == EvaluationTriggerBoth
}

func (c Config) EvaluatesDaily() bool {
	return c.EvaluationTrigger == EvaluationTriggerDaily || c.EvaluationTrigger == EvaluationTriggerBoth
}

// Defaults returns the configuration used before an admin has saved one.
func Defaults() Config {
	return Config{
		ProgramType:            ProgramTypeFree,
		DurationMonths:         12,
		EvaluationPeriodMonths: 12,
		EvaluationTrigger:      EvaluationTriggerBoth,
		AutoEnrollOnFirstOrder: true,
		EarningType:            EarningTypePercentage,
		EarningRate:            5,
		RedemptionRate:         0.01,
		IsEnabled:              true,
	}
}
