package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type CreateTierRequest struct {
	Slug               string
	Name               string
	Rank               int
	OrderThreshold     int64
	SpendThreshold     int64
	PointsMultiplier   float64
	DiscountPercentage float64
	IsDefault          bool
}

type UpdateTierRequest struct {
	Name               *string
	OrderThreshold     *int64
	SpendThreshold     *int64
	PointsMultiplier   *float64
	DiscountPercentage *float64
	IsActive           *bool
}

type Service interface {
	Create(ctx context.Context, req CreateTierRequest) (Tier, error)
	Update(ctx context.Context, slug string, req UpdateTierRequest) (Tier, error)
	List(ctx context.Context, includeInactive bool) ([]Tier, error)
	// ActiveTiers returns active tiers ordered by descending rank.
	ActiveTiers(ctx context.Context) ([]Tier, error)
	GetBySlug(ctx context.Context, slug string) (Tier, error)
	Default(ctx context.Context) (Tier, error)
	// NextTier returns the active tier one rank above current, or nil at the top.
	NextTier(ctx context.Context, current Tier) (*Tier, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tier *Tier) error
	Update(ctx context.Context, db *gorm.DB, tier *Tier) error
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Tier, error)
	List(ctx context.Context, db *gorm.DB, includeInactive bool) ([]Tier, error)
}

var (
	ErrInvalidSlug        = errors.New("invalid_slug")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidRank        = errors.New("invalid_rank")
	ErrInvalidThreshold   = errors.New("invalid_threshold")
	ErrInvalidMultiplier  = errors.New("invalid_multiplier")
	ErrInvalidDiscount    = errors.New("invalid_discount")
	ErrDuplicateSlug      = errors.New("duplicate_slug")
	ErrDuplicateRank      = errors.New("duplicate_rank")
	ErrDefaultTierExists  = errors.New("default_tier_exists")
	ErrDefaultTierLocked  = errors.New("default_tier_locked")
	ErrNotFound           = errors.New("tier_not_found")
	ErrNoDefaultTier      = errors.New("no_default_tier")
)
