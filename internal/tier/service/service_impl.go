package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/fidelio/internal/audit/domain"
	"github.com/smallbiznis/fidelio/internal/tier/domain"
	"github.com/smallbiznis/fidelio/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tier.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTierRequest) (domain.Tier, error) {
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if slug == "" {
		return domain.Tier{}, domain.ErrInvalidSlug
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Tier{}, domain.ErrInvalidName
	}
	if req.Rank < 0 {
		return domain.Tier{}, domain.ErrInvalidRank
	}
	if req.OrderThreshold < 0 || req.SpendThreshold < 0 {
		return domain.Tier{}, domain.ErrInvalidThreshold
	}
	if req.PointsMultiplier < 0 {
		return domain.Tier{}, domain.ErrInvalidMultiplier
	}
	if req.DiscountPercentage < 0 || req.DiscountPercentage > 100 {
		return domain.Tier{}, domain.ErrInvalidDiscount
	}
	if req.IsDefault && (req.Rank != 0 || req.OrderThreshold != 0 || req.SpendThreshold != 0) {
		// The default tier is the floor everyone qualifies for.
		return domain.Tier{}, domain.ErrInvalidRank
	}

	now := time.Now().UTC()
	tier := domain.Tier{
		ID:                 s.genID.Generate(),
		Slug:               slug,
		Name:               name,
		Rank:               req.Rank,
		OrderThreshold:     req.OrderThreshold,
		SpendThreshold:     req.SpendThreshold,
		PointsMultiplier:   req.PointsMultiplier,
		DiscountPercentage: req.DiscountPercentage,
		IsDefault:          req.IsDefault,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.List(ctx, tx, false)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Rank == tier.Rank {
				return domain.ErrDuplicateRank
			}
			if other.IsDefault && tier.IsDefault {
				return domain.ErrDefaultTierExists
			}
		}
		return s.repo.Insert(ctx, tx, &tier)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Tier{}, domain.ErrDuplicateSlug
		}
		return domain.Tier{}, err
	}

	s.audit(ctx, "tier.created", tier.Slug, map[string]any{
		"rank":            tier.Rank,
		"order_threshold": tier.OrderThreshold,
		"spend_threshold": tier.SpendThreshold,
	})
	return tier, nil
}

func (s *Service) Update(ctx context.Context, slug string, req domain.UpdateTierRequest) (domain.Tier, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return domain.Tier{}, domain.ErrInvalidSlug
	}

	var updated domain.Tier
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tier, err := s.repo.FindBySlug(ctx, tx, slug)
		if err != nil {
			return err
		}
		if tier == nil {
			return domain.ErrNotFound
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			tier.Name = name
		}
		if req.OrderThreshold != nil {
			if *req.OrderThreshold < 0 {
				return domain.ErrInvalidThreshold
			}
			if tier.IsDefault && *req.OrderThreshold != 0 {
				return domain.ErrDefaultTierLocked
			}
			tier.OrderThreshold = *req.OrderThreshold
		}
		if req.SpendThreshold != nil {
			if *req.SpendThreshold < 0 {
				return domain.ErrInvalidThreshold
			}
			if tier.IsDefault && *req.SpendThreshold != 0 {
				return domain.ErrDefaultTierLocked
			}
			tier.SpendThreshold = *req.SpendThreshold
		}
		if req.PointsMultiplier != nil {
			if *req.PointsMultiplier < 0 {
				return domain.ErrInvalidMultiplier
			}
			tier.PointsMultiplier = *req.PointsMultiplier
		}
		if req.DiscountPercentage != nil {
			if *req.DiscountPercentage < 0 || *req.DiscountPercentage > 100 {
				return domain.ErrInvalidDiscount
			}
			tier.DiscountPercentage = *req.DiscountPercentage
		}
		if req.IsActive != nil {
			if tier.IsDefault && !*req.IsActive {
				return domain.ErrDefaultTierLocked
			}
			tier.IsActive = *req.IsActive
		}

		tier.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, tx, tier); err != nil {
			return err
		}
		updated = *tier
		return nil
	})
	if err != nil {
		return domain.Tier{}, err
	}

	s.audit(ctx, "tier.updated", updated.Slug, map[string]any{
		"rank":      updated.Rank,
		"is_active": updated.IsActive,
	})
	return updated, nil
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]domain.Tier, error) {
	return s.repo.List(ctx, s.db, includeInactive)
}

func (s *Service) ActiveTiers(ctx context.Context) ([]domain.Tier, error) {
	tiers, err := s.repo.List(ctx, s.db, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Rank > tiers[j].Rank })
	return tiers, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (domain.Tier, error) {
	tier, err := s.repo.FindBySlug(ctx, s.db, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return domain.Tier{}, err
	}
	if tier == nil {
		return domain.Tier{}, domain.ErrNotFound
	}
	return *tier, nil
}

func (s *Service) Default(ctx context.Context) (domain.Tier, error) {
	tiers, err := s.repo.List(ctx, s.db, false)
	if err != nil {
		return domain.Tier{}, err
	}
	for _, tier := range tiers {
		if tier.IsDefault {
			return tier, nil
		}
	}
	return domain.Tier{}, domain.ErrNoDefaultTier
}

func (s *Service) NextTier(ctx context.Context, current domain.Tier) (*domain.Tier, error) {
	tiers, err := s.repo.List(ctx, s.db, false)
	if err != nil {
		return nil, err
	}
	var next *domain.Tier
	for i := range tiers {
		candidate := tiers[i]
		if candidate.Rank <= current.Rank {
			continue
		}
		if next == nil || candidate.Rank < next.Rank {
			next = &candidate
		}
	}
	return next, nil
}

func (s *Service) audit(ctx context.Context, action, slug string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	target := slug
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeAdmin, nil, action, "tier", &target, metadata); err != nil {
		s.log.Warn("failed to write tier audit log", zap.Error(err))
	}
}
