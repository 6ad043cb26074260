package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fidelio/internal/activity/domain"
	"github.com/smallbiznis/fidelio/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("activity.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) RecordOrder(ctx context.Context, customerID, orderID string, total int64, orderDate time.Time) error {
	customerID = strings.TrimSpace(customerID)
	orderID = strings.TrimSpace(orderID)
	if customerID == "" {
		return domain.ErrInvalidCustomer
	}
	if orderID == "" {
		return domain.ErrInvalidOrder
	}
	if total < 0 {
		return domain.ErrInvalidAmount
	}
	if orderDate.IsZero() {
		orderDate = s.clock.Now()
	}

	result := s.db.WithContext(ctx).Exec(
		`INSERT INTO activity_orders (
			id, customer_id, order_id, order_total, counted_spend, order_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_id, order_id) DO NOTHING`,
		s.genID.Generate(),
		customerID,
		orderID,
		total,
		total,
		orderDate.UTC(),
		s.clock.Now(),
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrDuplicateOrder
	}

	s.log.Debug("activity order recorded",
		zap.String("customer_id", customerID),
		zap.String("order_id", orderID),
		zap.Int64("order_total", total),
	)
	return nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, domain.ErrInvalidOrder
	}

	var order domain.Order
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM activity_orders WHERE order_id = ?`,
		orderID,
	).Scan(&order).Error
	if err != nil {
		return domain.Order{}, err
	}
	if order.ID == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ReverseOrder(ctx context.Context, orderID string) (string, bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", false, domain.ErrInvalidOrder
	}

	var customerID string
	reversed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order domain.Order
		if err := tx.WithContext(ctx).Raw(
			`SELECT * FROM activity_orders WHERE order_id = ? FOR UPDATE`,
			orderID,
		).Scan(&order).Error; err != nil {
			return err
		}
		if order.ID == 0 {
			return domain.ErrOrderNotFound
		}
		customerID = order.CustomerID
		if order.ReversedAt != nil {
			return nil
		}

		reversed = true
		return tx.WithContext(ctx).Exec(
			`UPDATE activity_orders SET reversed_at = ? WHERE order_id = ?`,
			s.clock.Now(),
			orderID,
		).Error
	})
	if err != nil {
		return "", false, err
	}
	return customerID, reversed, nil
}

func (s *Service) ReduceOrderSpend(ctx context.Context, orderID, returnID string, refunded int64) (string, error) {
	orderID = strings.TrimSpace(orderID)
	returnID = strings.TrimSpace(returnID)
	if orderID == "" {
		return "", domain.ErrInvalidOrder
	}
	if returnID == "" {
		return "", domain.ErrInvalidReturn
	}
	if refunded <= 0 {
		return "", domain.ErrInvalidAmount
	}

	var customerID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order domain.Order
		if err := tx.WithContext(ctx).Raw(
			`SELECT * FROM activity_orders WHERE order_id = ? FOR UPDATE`,
			orderID,
		).Scan(&order).Error; err != nil {
			return err
		}
		if order.ID == 0 {
			return domain.ErrOrderNotFound
		}
		customerID = order.CustomerID

		// The refund row and the counted_spend update commit together, so
		// a replayed return never reduces twice.
		marker := tx.WithContext(ctx).Exec(
			`INSERT INTO activity_refunds (id, order_id, return_id, refunded, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (order_id, return_id) DO NOTHING`,
			s.genID.Generate(),
			orderID,
			returnID,
			refunded,
			s.clock.Now(),
		)
		if marker.Error != nil {
			return marker.Error
		}
		if marker.RowsAffected == 0 {
			return nil
		}

		counted := order.CountedSpend - refunded
		if counted < 0 {
			counted = 0
		}
		return tx.WithContext(ctx).Exec(
			`UPDATE activity_orders SET counted_spend = ? WHERE order_id = ?`,
			counted,
			orderID,
		).Error
	})
	if err != nil {
		return "", err
	}
	return customerID, nil
}

func (s *Service) Window(ctx context.Context, customerID string, asOf time.Time, months int) (domain.Snapshot, error) {
	return s.computeWindow(ctx, s.db, customerID, asOf, months)
}

func (s *Service) RefreshWindow(ctx context.Context, customerID string, asOf time.Time, months int) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		computed, err := s.computeWindow(ctx, tx, customerID, asOf, months)
		if err != nil {
			return err
		}
		snapshot = computed

		return tx.WithContext(ctx).Exec(
			`INSERT INTO activity_windows (
				id, customer_id, rolling_order_count, rolling_spend_total,
				window_start, last_calculated_at
			) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (customer_id) DO UPDATE SET
				rolling_order_count = excluded.rolling_order_count,
				rolling_spend_total = excluded.rolling_spend_total,
				window_start = excluded.window_start,
				last_calculated_at = excluded.last_calculated_at`,
			s.genID.Generate(),
			snapshot.CustomerID,
			snapshot.OrderCount,
			snapshot.SpendTotal,
			snapshot.WindowStart,
			snapshot.AsOf,
		).Error
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return snapshot, nil
}

func (s *Service) computeWindow(ctx context.Context, tx *gorm.DB, customerID string, asOf time.Time, months int) (domain.Snapshot, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Snapshot{}, domain.ErrInvalidCustomer
	}
	if months <= 0 {
		return domain.Snapshot{}, domain.ErrInvalidWindow
	}
	if asOf.IsZero() {
		asOf = s.clock.Now()
	}
	asOf = asOf.UTC()
	windowStart := asOf.AddDate(0, -months, 0)

	var agg struct {
		OrderCount int64
		SpendTotal int64
	}
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) AS order_count, COALESCE(SUM(counted_spend), 0) AS spend_total
		 FROM activity_orders
		 WHERE customer_id = ?
		   AND reversed_at IS NULL
		   AND order_date > ?
		   AND order_date <= ?`,
		customerID,
		windowStart,
		asOf,
	).Scan(&agg).Error
	if err != nil {
		return domain.Snapshot{}, err
	}

	return domain.Snapshot{
		CustomerID:  customerID,
		OrderCount:  agg.OrderCount,
		SpendTotal:  agg.SpendTotal,
		WindowStart: windowStart,
		AsOf:        asOf,
	}, nil
}
