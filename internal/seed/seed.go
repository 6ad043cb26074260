package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
	"gorm.io/gorm"
)

// EnsureDefaultCatalog seeds the classic/silver/gold tier ladder and the
// program configuration singleton when the store is empty, so a fresh
// install evaluates sensibly before any admin touches it.
func EnsureDefaultCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureTiers(ctx, tx, node); err != nil {
			return err
		}
		return ensureConfig(ctx, tx, node)
	})
}

func ensureTiers(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&tierdomain.Tier{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tiers := []tierdomain.Tier{
		{
			ID:               node.Generate(),
			Slug:             "classic",
			Name:             "Classic",
			Rank:             0,
			PointsMultiplier: 1,
			IsDefault:        true,
			IsActive:         true,
		},
		{
			ID:                 node.Generate(),
			Slug:               "silver",
			Name:               "Silver",
			Rank:               1,
			OrderThreshold:     3,
			SpendThreshold:     50000,
			PointsMultiplier:   1.25,
			DiscountPercentage: 5,
			IsActive:           true,
		},
		{
			ID:                 node.Generate(),
			Slug:               "gold",
			Name:               "Gold",
			Rank:               2,
			OrderThreshold:     10,
			SpendThreshold:     150000,
			PointsMultiplier:   1.5,
			DiscountPercentage: 10,
			IsActive:           true,
		},
	}
	return tx.WithContext(ctx).Create(&tiers).Error
}

func ensureConfig(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&programdomain.Config{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	cfg := programdomain.Defaults()
	cfg.ID = node.Generate()
	return tx.WithContext(ctx).Create(&cfg).Error
}
