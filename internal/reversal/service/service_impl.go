package service

import (
	"context"
	"errors"
	"math"
	"strings"

	activitydomain "github.com/smallbiznis/fidelio/internal/activity/domain"
	auditdomain "github.com/smallbiznis/fidelio/internal/audit/domain"
	"github.com/smallbiznis/fidelio/internal/clock"
	membershipdomain "github.com/smallbiznis/fidelio/internal/membership/domain"
	pointsdomain "github.com/smallbiznis/fidelio/internal/points/domain"
	"github.com/smallbiznis/fidelio/internal/reversal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Points     pointsdomain.Service
	Activity   activitydomain.Service
	Membership membershipdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	points     pointsdomain.Service
	activity   activitydomain.Service
	membership membershipdomain.Service
	audit      auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("reversal.service"),
		clock:      p.Clock,
		points:     p.Points,
		activity:   p.Activity,
		membership: p.Membership,
		audit:      p.AuditSvc,
	}
}

func (s *Service) CancelOrder(ctx context.Context, orderID string) (domain.Result, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Result{}, domain.ErrInvalidOrder
	}

	earn, err := s.points.FindByOrder(ctx, orderID, pointsdomain.TypeEarned)
	if err != nil {
		return domain.Result{}, err
	}

	if earn != nil {
		existing, err := s.points.FindByOrder(ctx, orderID, pointsdomain.TypeCancelDeducted)
		if err != nil {
			return domain.Result{}, err
		}
		if existing != nil {
			// A replay still re-drives the activity tombstone. The points
			// deduction and the tombstone are separate transactions, so a
			// crash between them leaves the order counted until the next
			// delivery of the same event.
			if _, _, err := s.activity.ReverseOrder(ctx, orderID); err != nil &&
				!errors.Is(err, activitydomain.ErrOrderNotFound) {
				return domain.Result{}, err
			}
			if _, _, err := s.membership.Reevaluate(ctx, existing.CustomerID, s.clock.Now()); err != nil &&
				!errors.Is(err, membershipdomain.ErrNotEnrolled) {
				return domain.Result{}, err
			}
			return domain.Result{CustomerID: existing.CustomerID, Duplicate: true}, nil
		}
	}

	var (
		customerID string
		deducted   int64
	)
	if earn != nil {
		customerID = earn.CustomerID
		deducted, err = s.deductReversible(ctx, earn, pointsdomain.TypeCancelDeducted, orderID, "", "order cancelled")
		if err != nil {
			if errors.Is(err, pointsdomain.ErrDuplicateTransaction) {
				if _, _, err := s.activity.ReverseOrder(ctx, orderID); err != nil &&
					!errors.Is(err, activitydomain.ErrOrderNotFound) {
					return domain.Result{}, err
				}
				return domain.Result{CustomerID: customerID, Duplicate: true}, nil
			}
			return domain.Result{}, err
		}
	}

	owner, _, err := s.activity.ReverseOrder(ctx, orderID)
	switch {
	case errors.Is(err, activitydomain.ErrOrderNotFound):
		if earn == nil {
			return domain.Result{}, domain.ErrUnknownOrder
		}
	case err != nil:
		return domain.Result{}, err
	default:
		if customerID == "" {
			customerID = owner
		}
	}

	if _, _, err := s.membership.Reevaluate(ctx, customerID, s.clock.Now()); err != nil &&
		!errors.Is(err, membershipdomain.ErrNotEnrolled) {
		return domain.Result{}, err
	}

	if s.audit != nil {
		_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeCommerce, nil, "order.cancelled", "order", &orderID, map[string]any{
			"customer_id":     customerID,
			"points_deducted": deducted,
		})
	}
	s.log.Info("order cancellation applied",
		zap.String("order_id", orderID),
		zap.String("customer_id", customerID),
		zap.Int64("points_deducted", deducted),
	)
	return domain.Result{CustomerID: customerID, Points: deducted}, nil
}

func (s *Service) CompleteReturn(ctx context.Context, returnID, orderID string, refundedAmount int64) (domain.Result, error) {
	returnID = strings.TrimSpace(returnID)
	orderID = strings.TrimSpace(orderID)
	if returnID == "" {
		return domain.Result{}, domain.ErrInvalidReturn
	}
	if orderID == "" {
		return domain.Result{}, domain.ErrInvalidOrder
	}
	if refundedAmount <= 0 {
		return domain.Result{}, domain.ErrInvalidAmount
	}

	existing, err := s.points.FindByReturn(ctx, returnID, pointsdomain.TypeReturnDeducted)
	if err != nil {
		return domain.Result{}, err
	}
	if existing != nil {
		// Re-drive the spend reduction on replay; it is keyed by
		// (order, return) and reduces at most once, so this repairs a
		// crash that landed the deduction but not the reduction.
		if _, err := s.activity.ReduceOrderSpend(ctx, orderID, returnID, refundedAmount); err != nil &&
			!errors.Is(err, activitydomain.ErrOrderNotFound) {
			return domain.Result{}, err
		}
		if _, _, err := s.membership.Reevaluate(ctx, existing.CustomerID, s.clock.Now()); err != nil &&
			!errors.Is(err, membershipdomain.ErrNotEnrolled) {
			return domain.Result{}, err
		}
		return domain.Result{CustomerID: existing.CustomerID, Duplicate: true}, nil
	}

	order, err := s.activity.GetOrder(ctx, orderID)
	if errors.Is(err, activitydomain.ErrOrderNotFound) {
		return domain.Result{}, domain.ErrUnknownOrder
	}
	if err != nil {
		return domain.Result{}, err
	}
	customerID := order.CustomerID

	earn, err := s.points.FindByOrder(ctx, orderID, pointsdomain.TypeEarned)
	if err != nil {
		return domain.Result{}, err
	}

	var deducted int64
	if earn != nil && order.OrderTotal > 0 {
		proportional := int64(math.Round(float64(earn.Amount) * float64(refundedAmount) / float64(order.OrderTotal)))
		deducted, err = s.deductReversibleUpTo(ctx, earn, proportional, pointsdomain.TypeReturnDeducted, orderID, returnID, "order partially returned")
		if err != nil {
			if errors.Is(err, pointsdomain.ErrDuplicateTransaction) {
				if _, err := s.activity.ReduceOrderSpend(ctx, orderID, returnID, refundedAmount); err != nil &&
					!errors.Is(err, activitydomain.ErrOrderNotFound) {
					return domain.Result{}, err
				}
				return domain.Result{CustomerID: customerID, Duplicate: true}, nil
			}
			return domain.Result{}, err
		}
	}

	if _, err := s.activity.ReduceOrderSpend(ctx, orderID, returnID, refundedAmount); err != nil {
		return domain.Result{}, err
	}

	if _, _, err := s.membership.Reevaluate(ctx, customerID, s.clock.Now()); err != nil &&
		!errors.Is(err, membershipdomain.ErrNotEnrolled) {
		return domain.Result{}, err
	}

	if s.audit != nil {
		_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeCommerce, nil, "return.completed", "return", &returnID, map[string]any{
			"customer_id":     customerID,
			"order_id":        orderID,
			"refunded_amount": refundedAmount,
			"points_deducted": deducted,
		})
	}
	s.log.Info("return applied",
		zap.String("return_id", returnID),
		zap.String("order_id", orderID),
		zap.Int64("refunded_amount", refundedAmount),
		zap.Int64("points_deducted", deducted),
	)
	return domain.Result{CustomerID: customerID, Points: deducted}, nil
}

func (s *Service) ReverseReturn(ctx context.Context, returnID string) (domain.Result, error) {
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return domain.Result{}, domain.ErrInvalidReturn
	}

	deducted, err := s.points.FindByReturn(ctx, returnID, pointsdomain.TypeReturnDeducted)
	if err != nil {
		return domain.Result{}, err
	}
	if deducted == nil {
		return domain.Result{}, domain.ErrUnknownReturn
	}

	restored, err := s.points.FindByReturn(ctx, returnID, pointsdomain.TypeReturnRestored)
	if err != nil {
		return domain.Result{}, err
	}
	if restored != nil {
		return domain.Result{CustomerID: restored.CustomerID, Duplicate: true}, nil
	}

	amount := -deducted.Amount
	req := pointsdomain.ApplyRequest{
		CustomerID: deducted.CustomerID,
		Type:       pointsdomain.TypeReturnRestored,
		Amount:     amount,
		ReturnID:   returnID,
		Reason:     "return reversed",
	}
	if deducted.OrderID != nil {
		req.OrderID = *deducted.OrderID
	}
	if _, err := s.points.Apply(ctx, req); err != nil {
		if errors.Is(err, pointsdomain.ErrDuplicateTransaction) {
			return domain.Result{CustomerID: deducted.CustomerID, Duplicate: true}, nil
		}
		return domain.Result{}, err
	}

	if _, _, err := s.membership.Reevaluate(ctx, deducted.CustomerID, s.clock.Now()); err != nil &&
		!errors.Is(err, membershipdomain.ErrNotEnrolled) {
		return domain.Result{}, err
	}

	if s.audit != nil {
		_ = s.audit.AuditLog(ctx, auditdomain.ActorTypeCommerce, nil, "return.reversed", "return", &returnID, map[string]any{
			"customer_id":     deducted.CustomerID,
			"points_restored": amount,
		})
	}
	s.log.Info("return reversal applied",
		zap.String("return_id", returnID),
		zap.String("customer_id", deducted.CustomerID),
		zap.Int64("points_restored", amount),
	)
	return domain.Result{CustomerID: deducted.CustomerID, Points: amount}, nil
}

// deductReversible removes everything still reversible from the order's earn.
func (s *Service) deductReversible(ctx context.Context, earn *pointsdomain.Transaction, txType pointsdomain.TransactionType, orderID, returnID, reason string) (int64, error) {
	return s.deductReversibleUpTo(ctx, earn, earn.Amount, txType, orderID, returnID, reason)
}

// deductReversibleUpTo removes at most want points, clamped to what remains
// un-reversed from the order's earn and to the customer's current balance.
// Never fails on balance: a customer who already spent the points simply
// loses less.
func (s *Service) deductReversibleUpTo(ctx context.Context, earn *pointsdomain.Transaction, want int64, txType pointsdomain.TransactionType, orderID, returnID, reason string) (int64, error) {
	remaining, err := s.remainingReversible(ctx, earn)
	if err != nil {
		return 0, err
	}
	if want > remaining {
		want = remaining
	}

	balance, err := s.points.GetBalance(ctx, earn.CustomerID)
	if err != nil {
		return 0, err
	}
	if want > balance.Balance {
		want = balance.Balance
	}
	if want <= 0 {
		return 0, nil
	}

	_, err = s.points.Apply(ctx, pointsdomain.ApplyRequest{
		CustomerID: earn.CustomerID,
		Type:       txType,
		Amount:     -want,
		OrderID:    orderID,
		ReturnID:   returnID,
		Reason:     reason,
	})
	if err != nil {
		return 0, err
	}
	return want, nil
}

// remainingReversible is the order's earn minus every deduction already
// applied against it, plus whatever later reversals gave back. A return
// that was itself reversed leaves the earn reversible again.
func (s *Service) remainingReversible(ctx context.Context, earn *pointsdomain.Transaction) (int64, error) {
	if earn.OrderID == nil {
		return earn.Amount, nil
	}

	remaining := earn.Amount
	for _, txType := range []pointsdomain.TransactionType{
		pointsdomain.TypeReturnDeducted,
		pointsdomain.TypeCancelDeducted,
		pointsdomain.TypeReturnRestored,
		pointsdomain.TypeCancelRestored,
	} {
		sum, err := s.points.SumByOrder(ctx, *earn.OrderID, txType)
		if err != nil {
			return 0, err
		}
		remaining += sum
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
