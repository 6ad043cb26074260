package service

import (
	"context"
	"errors"
	"strings"
	"time"

	activitydomain "github.com/smallbiznis/fidelio/internal/activity/domain"
	"github.com/smallbiznis/fidelio/internal/clock"
	"github.com/smallbiznis/fidelio/internal/loyalty/domain"
	membershipdomain "github.com/smallbiznis/fidelio/internal/membership/domain"
	"github.com/smallbiznis/fidelio/internal/metrics"
	pointsdomain "github.com/smallbiznis/fidelio/internal/points/domain"
	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
	"github.com/smallbiznis/fidelio/internal/redemption"
	reversaldomain "github.com/smallbiznis/fidelio/internal/reversal/domain"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Program    programdomain.Service
	Points     pointsdomain.Service
	Activity   activitydomain.Service
	Membership membershipdomain.Service
	Tiers      tierdomain.Service
	Reversal   reversaldomain.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	program    programdomain.Service
	points     pointsdomain.Service
	activity   activitydomain.Service
	membership membershipdomain.Service
	tiers      tierdomain.Service
	reversal   reversaldomain.Service
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("loyalty.service"),
		clock:      p.Clock,
		program:    p.Program,
		points:     p.Points,
		activity:   p.Activity,
		membership: p.Membership,
		tiers:      p.Tiers,
		reversal:   p.Reversal,
		metrics:    p.Metrics,
	}
}

func (s *Service) OnOrderPlaced(ctx context.Context, customerID, orderID string, orderTotal int64, orderDate time.Time) (domain.OrderPlacedResult, error) {
	customerID = strings.TrimSpace(customerID)
	orderID = strings.TrimSpace(orderID)

	cfg, err := s.program.Get(ctx)
	if err != nil {
		return domain.OrderPlacedResult{}, err
	}
	if !cfg.IsEnabled {
		return domain.OrderPlacedResult{CustomerID: customerID, Skipped: true}, nil
	}
	if orderDate.IsZero() {
		orderDate = s.clock.Now()
	}

	err = s.activity.RecordOrder(ctx, customerID, orderID, orderTotal, orderDate)
	if errors.Is(err, activitydomain.ErrDuplicateOrder) {
		return domain.OrderPlacedResult{CustomerID: customerID, Duplicate: true}, nil
	}
	if err != nil {
		return domain.OrderPlacedResult{}, err
	}

	multiplier, enrolled, err := s.earningMultiplier(ctx, cfg, customerID)
	if err != nil {
		return domain.OrderPlacedResult{}, err
	}

	result := domain.OrderPlacedResult{CustomerID: customerID}
	if enrolled {
		base := redemption.PointsForOrderTotal(orderTotal, cfg.EarningRate, cfg.EarningType)
		earn := redemption.ApplyMultiplier(base, multiplier)
		if earn > 0 {
			_, err := s.points.Apply(ctx, pointsdomain.ApplyRequest{
				CustomerID: customerID,
				Type:       pointsdomain.TypeEarned,
				Amount:     earn,
				OrderID:    orderID,
				Reason:     "order placed",
			})
			switch {
			case errors.Is(err, pointsdomain.ErrDuplicateTransaction):
				// The activity insert above was first, so this only happens
				// on a partial replay. Treat as already processed.
			case err != nil:
				return domain.OrderPlacedResult{}, err
			default:
				result.PointsEarned = earn
			}
		}
	}

	if cfg.EvaluatesOnOrder() {
		// The window always ends at the evaluation instant, not at the
		// order's event date: a backdated order must not hide newer orders
		// from the evaluator.
		_, changed, err := s.membership.Reevaluate(ctx, customerID, s.clock.Now())
		if err != nil && !errors.Is(err, membershipdomain.ErrNotEnrolled) {
			return domain.OrderPlacedResult{}, err
		}
		result.TierChanged = changed
	}

	s.log.Info("order processed",
		zap.String("customer_id", customerID),
		zap.String("order_id", orderID),
		zap.Int64("order_total", orderTotal),
		zap.Int64("points_earned", result.PointsEarned),
	)
	return result, nil
}

func (s *Service) OnOrderCancelled(ctx context.Context, orderID string) (reversaldomain.Result, error) {
	return s.reversal.CancelOrder(ctx, orderID)
}

func (s *Service) OnReturnCompleted(ctx context.Context, returnID, orderID string, refundedAmount int64) (reversaldomain.Result, error) {
	return s.reversal.CompleteReturn(ctx, returnID, orderID, refundedAmount)
}

func (s *Service) OnReturnReversed(ctx context.Context, returnID string) (reversaldomain.Result, error) {
	return s.reversal.ReverseReturn(ctx, returnID)
}

func (s *Service) ApplyPointsToOrder(ctx context.Context, customerID, orderID string, points, subtotal int64) (domain.RedemptionResult, error) {
	customerID = strings.TrimSpace(customerID)
	if points <= 0 {
		return domain.RedemptionResult{}, domain.ErrInvalidPoints
	}

	cfg, err := s.program.Get(ctx)
	if err != nil {
		return domain.RedemptionResult{}, err
	}
	if !cfg.IsEnabled {
		return domain.RedemptionResult{}, domain.ErrProgramDisabled
	}

	member, err := s.membership.Get(ctx, customerID)
	if errors.Is(err, membershipdomain.ErrNotEnrolled) {
		return domain.RedemptionResult{}, domain.ErrNotAMember
	}
	if err != nil {
		return domain.RedemptionResult{}, err
	}
	if !member.Active() {
		return domain.RedemptionResult{}, domain.ErrNotAMember
	}

	discount := redemption.DiscountForPoints(points, cfg.RedemptionRate)
	if discount > subtotal {
		return domain.RedemptionResult{}, domain.ErrDiscountExceedsSubtotal
	}

	tx, err := s.points.Apply(ctx, pointsdomain.ApplyRequest{
		CustomerID: customerID,
		Type:       pointsdomain.TypeRedeemed,
		Amount:     -points,
		OrderID:    orderID,
		Reason:     "points applied at checkout",
	})
	if err != nil {
		return domain.RedemptionResult{}, err
	}

	s.log.Info("points redeemed",
		zap.String("customer_id", customerID),
		zap.String("order_id", orderID),
		zap.Int64("points", points),
		zap.Int64("discount", discount),
	)
	return domain.RedemptionResult{Transaction: tx, Discount: discount}, nil
}

func (s *Service) CalculateRedemption(ctx context.Context, points int64) (int64, error) {
	if points <= 0 {
		return 0, domain.ErrInvalidPoints
	}
	cfg, err := s.program.Get(ctx)
	if err != nil {
		return 0, err
	}
	return redemption.DiscountForPoints(points, cfg.RedemptionRate), nil
}

// earningMultiplier resolves the customer's tier multiplier, enrolling them
// first when the program auto-enrolls. The second return is false when the
// customer has no active membership and none may be created.
func (s *Service) earningMultiplier(ctx context.Context, cfg programdomain.Config, customerID string) (float64, bool, error) {
	member, err := s.membership.Get(ctx, customerID)
	if errors.Is(err, membershipdomain.ErrNotEnrolled) {
		if !cfg.AutoEnrollOnFirstOrder {
			return 0, false, nil
		}
		member, err = s.membership.Enroll(ctx, customerID)
	}
	if err != nil {
		return 0, false, err
	}
	if !member.Active() {
		return 0, false, nil
	}

	tier, err := s.tiers.GetBySlug(ctx, member.TierSlug)
	if err != nil {
		if errors.Is(err, tierdomain.ErrNotFound) {
			return 1, true, nil
		}
		return 0, false, err
	}
	return tier.PointsMultiplier, true, nil
}
