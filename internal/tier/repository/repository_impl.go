package repository

import (
	"context"

	"github.com/smallbiznis/fidelio/internal/tier/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tier *domain.Tier) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO loyalty_tiers (
			id, slug, name, rank, order_threshold, spend_threshold,
			points_multiplier, discount_percentage, is_default, is_active,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tier.ID,
		tier.Slug,
		tier.Name,
		tier.Rank,
		tier.OrderThreshold,
		tier.SpendThreshold,
		tier.PointsMultiplier,
		tier.DiscountPercentage,
		tier.IsDefault,
		tier.IsActive,
		tier.CreatedAt,
		tier.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tier *domain.Tier) error {
	return db.WithContext(ctx).Exec(
		`UPDATE loyalty_tiers
		 SET name = ?, order_threshold = ?, spend_threshold = ?,
		     points_multiplier = ?, discount_percentage = ?, is_active = ?,
		     updated_at = ?
		 WHERE slug = ?`,
		tier.Name,
		tier.OrderThreshold,
		tier.SpendThreshold,
		tier.PointsMultiplier,
		tier.DiscountPercentage,
		tier.IsActive,
		tier.UpdatedAt,
		tier.Slug,
	).Error
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Tier, error) {
	var tier domain.Tier
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM loyalty_tiers WHERE slug = ?`,
		slug,
	).Scan(&tier).Error
	if err != nil {
		return nil, err
	}
	if tier.ID == 0 {
		return nil, nil
	}
	return &tier, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, includeInactive bool) ([]domain.Tier, error) {
	stmt := db.WithContext(ctx).Model(&domain.Tier{})
	if !includeInactive {
		stmt = stmt.Where("is_active = ?", true)
	}
	var tiers []domain.Tier
	if err := stmt.Order("rank asc").Find(&tiers).Error; err != nil {
		return nil, err
	}
	return tiers, nil
}
