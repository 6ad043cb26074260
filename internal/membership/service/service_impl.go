package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/fidelio/internal/activity/domain"
	auditdomain "github.com/smallbiznis/fidelio/internal/audit/domain"
	"github.com/smallbiznis/fidelio/internal/clock"
	"github.com/smallbiznis/fidelio/internal/membership/domain"
	"github.com/smallbiznis/fidelio/internal/metrics"
	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Activity activitydomain.Service
	Tiers    tierdomain.Service
	Program  programdomain.Service
	Metrics  *metrics.Metrics    `optional:"true"`
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	activity activitydomain.Service
	tiers    tierdomain.Service
	program  programdomain.Service
	metrics  *metrics.Metrics
	audit    auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("membership.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		activity: p.Activity,
		tiers:    p.Tiers,
		program:  p.Program,
		metrics:  p.Metrics,
		audit:    p.AuditSvc,
	}
}

func (s *Service) Enroll(ctx context.Context, customerID string) (domain.Membership, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Membership{}, domain.ErrInvalidCustomer
	}

	defaultTier, err := s.tiers.Default(ctx)
	if err != nil {
		return domain.Membership{}, err
	}

	var membership domain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.lockMembership(ctx, tx, customerID)
		if err != nil {
			return err
		}
		now := s.clock.Now()

		if existing == nil {
			membership = domain.Membership{
				ID:            s.genID.Generate(),
				CustomerID:    customerID,
				TierSlug:      defaultTier.Slug,
				Status:        domain.StatusActive,
				EnrolledAt:    now,
				TierUpdatedAt: now,
			}
			return tx.WithContext(ctx).Exec(
				`INSERT INTO memberships (id, customer_id, tier_slug, status, enrolled_at, tier_updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				membership.ID,
				membership.CustomerID,
				membership.TierSlug,
				membership.Status,
				membership.EnrolledAt,
				membership.TierUpdatedAt,
			).Error
		}

		membership = *existing
		if existing.Active() {
			return nil
		}

		// Re-activation keeps the historic tier; the next evaluation
		// corrects it if the window no longer supports it.
		membership.Status = domain.StatusActive
		return tx.WithContext(ctx).Exec(
			`UPDATE memberships SET status = ? WHERE customer_id = ?`,
			domain.StatusActive,
			customerID,
		).Error
	})
	if err != nil {
		return domain.Membership{}, err
	}

	s.log.Info("customer enrolled",
		zap.String("customer_id", customerID),
		zap.String("tier_slug", membership.TierSlug),
	)
	return membership, nil
}

func (s *Service) Get(ctx context.Context, customerID string) (domain.Membership, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Membership{}, domain.ErrInvalidCustomer
	}

	var membership domain.Membership
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM memberships WHERE customer_id = ?`,
		customerID,
	).Scan(&membership).Error
	if err != nil {
		return domain.Membership{}, err
	}
	if membership.ID == 0 {
		return domain.Membership{}, domain.ErrNotEnrolled
	}
	return membership, nil
}

func (s *Service) Reevaluate(ctx context.Context, customerID string, asOf time.Time) (domain.Membership, bool, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Membership{}, false, domain.ErrInvalidCustomer
	}
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}

	cfg, err := s.program.Get(ctx)
	if err != nil {
		return domain.Membership{}, false, err
	}

	membership, err := s.Get(ctx, customerID)
	if err == domain.ErrNotEnrolled {
		if !cfg.AutoEnrollOnFirstOrder {
			return domain.Membership{}, false, domain.ErrNotEnrolled
		}
		membership, err = s.Enroll(ctx, customerID)
	}
	if err != nil {
		return domain.Membership{}, false, err
	}
	if !membership.Active() {
		return membership, false, nil
	}

	snapshot, err := s.activity.RefreshWindow(ctx, customerID, asOf, cfg.EvaluationPeriodMonths)
	if err != nil {
		return domain.Membership{}, false, err
	}

	tiers, err := s.tiers.ActiveTiers(ctx)
	if err != nil {
		return domain.Membership{}, false, err
	}
	target, ok := domain.EvaluateTier(snapshot, tiers)
	if !ok {
		return domain.Membership{}, false, tierdomain.ErrNoDefaultTier
	}

	now := s.clock.Now()
	changed := target.Slug != membership.TierSlug
	if !changed {
		if err := s.db.WithContext(ctx).Exec(
			`UPDATE memberships SET last_evaluated_at = ? WHERE customer_id = ?`,
			now,
			customerID,
		).Error; err != nil {
			return domain.Membership{}, false, err
		}
		membership.LastEvaluatedAt = &now
		return membership, false, nil
	}

	previousSlug := membership.TierSlug
	if err := s.db.WithContext(ctx).Exec(
		`UPDATE memberships SET tier_slug = ?, tier_updated_at = ?, last_evaluated_at = ? WHERE customer_id = ?`,
		target.Slug,
		now,
		now,
		customerID,
	).Error; err != nil {
		return domain.Membership{}, false, err
	}
	membership.TierSlug = target.Slug
	membership.TierUpdatedAt = now
	membership.LastEvaluatedAt = &now

	direction := s.changeDirection(tiers, previousSlug, target)
	s.metrics.RecordTierChange(direction)
	if s.audit != nil {
		_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeSystem, nil, "membership.tier_changed", "membership", &customerID, map[string]any{
			"from":      previousSlug,
			"to":        target.Slug,
			"direction": direction,
		})
	}
	s.log.Info("membership tier changed",
		zap.String("customer_id", customerID),
		zap.String("from", previousSlug),
		zap.String("to", target.Slug),
		zap.String("direction", direction),
	)
	return membership, true, nil
}

func (s *Service) Status(ctx context.Context, customerID string) (domain.StatusResponse, error) {
	membership, err := s.Get(ctx, customerID)
	if err != nil {
		return domain.StatusResponse{}, err
	}
	if !membership.Active() {
		return domain.StatusResponse{}, domain.ErrNotEnrolled
	}

	cfg, err := s.program.Get(ctx)
	if err != nil {
		return domain.StatusResponse{}, err
	}
	currentTier, err := s.tiers.GetBySlug(ctx, membership.TierSlug)
	if err != nil {
		return domain.StatusResponse{}, err
	}
	snapshot, err := s.activity.Window(ctx, membership.CustomerID, s.clock.Now(), cfg.EvaluationPeriodMonths)
	if err != nil {
		return domain.StatusResponse{}, err
	}

	resp := domain.StatusResponse{
		Membership: membership,
		Tier:       currentTier,
		Snapshot:   snapshot,
	}

	next, err := s.tiers.NextTier(ctx, currentTier)
	if err != nil {
		return domain.StatusResponse{}, err
	}
	if next != nil {
		resp.NextTier = next
		if gap := next.OrderThreshold - snapshot.OrderCount; gap > 0 {
			resp.OrdersToNextTier = gap
		}
		if gap := next.SpendThreshold - snapshot.SpendTotal; gap > 0 {
			resp.SpendToNextTier = gap
		}
	}
	return resp, nil
}

func (s *Service) Retire(ctx context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.ErrInvalidCustomer
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE memberships SET status = ? WHERE customer_id = ?`,
		domain.StatusInactive,
		customerID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotEnrolled
	}

	s.log.Info("membership retired", zap.String("customer_id", customerID))
	return nil
}

func (s *Service) ClaimDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Membership, error) {
	if limit <= 0 {
		limit = 100
	}

	var claimed []domain.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Raw(
			`SELECT * FROM memberships
			 WHERE status = ?
			   AND (last_evaluated_at IS NULL OR last_evaluated_at < ?)
			 ORDER BY last_evaluated_at ASC NULLS FIRST
			 LIMIT ?
			 FOR UPDATE SKIP LOCKED`,
			domain.StatusActive,
			cutoff,
			limit,
		).Scan(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(claimed))
		for _, m := range claimed {
			ids = append(ids, m.ID)
		}
		return tx.WithContext(ctx).Exec(
			`UPDATE memberships SET last_evaluated_at = ? WHERE id IN ?`,
			s.clock.Now(),
			ids,
		).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Service) lockMembership(ctx context.Context, tx *gorm.DB, customerID string) (*domain.Membership, error) {
	var membership domain.Membership
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM memberships WHERE customer_id = ? FOR UPDATE`,
		customerID,
	).Scan(&membership).Error
	if err != nil {
		return nil, err
	}
	if membership.ID == 0 {
		return nil, nil
	}
	return &membership, nil
}

func (s *Service) changeDirection(tiers []tierdomain.Tier, previousSlug string, target tierdomain.Tier) string {
	for _, t := range tiers {
		if t.Slug == previousSlug {
			if target.Rank > t.Rank {
				return "promotion"
			}
			return "demotion"
		}
	}
	return "promotion"
}
