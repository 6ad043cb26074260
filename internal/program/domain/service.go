package domain

import (
	"context"
	"errors"
)

type UpdateConfigRequest struct {
	ProgramType            *ProgramType
	Price                  *int64
	DurationMonths         *int
	EvaluationPeriodMonths *int
	EvaluationTrigger      *EvaluationTrigger
	AutoEnrollOnFirstOrder *bool
	EarningType            *EarningType
	EarningRate            *float64
	RedemptionRate         *float64
	IsEnabled              *bool
}

type Service interface {
	// Get returns the stored configuration, or Defaults when none is saved.
	Get(ctx context.Context) (Config, error)
	Update(ctx context.Context, req UpdateConfigRequest) (Config, error)
}

var (
	ErrInvalidProgramType       = errors.New("invalid_program_type")
	ErrInvalidPrice             = errors.New("invalid_price")
	ErrInvalidDuration          = errors.New("invalid_duration")
	ErrInvalidEvaluationPeriod  = errors.New("invalid_evaluation_period")
	ErrInvalidEvaluationTrigger = errors.New("invalid_evaluation_trigger")
	ErrInvalidEarningType       = errors.New("invalid_earning_type")
	ErrInvalidEarningRate       = errors.New("invalid_earning_rate")
	ErrInvalidRedemptionRate    = errors.New("invalid_redemption_rate")
)
