package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fidelio/internal/metrics"
	"github.com/smallbiznis/fidelio/internal/points/domain"
	"github.com/smallbiznis/fidelio/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("points.service"),
		genID:   p.GenID,
		metrics: p.Metrics,
	}
}

func (s *Service) Apply(ctx context.Context, req domain.ApplyRequest) (domain.Transaction, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return domain.Transaction{}, domain.ErrInvalidCustomer
	}
	if !req.Type.Valid() {
		return domain.Transaction{}, domain.ErrInvalidType
	}
	if req.Amount == 0 {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}
	if req.Type.Positive() != (req.Amount > 0) {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	orderID := strings.TrimSpace(req.OrderID)
	returnID := strings.TrimSpace(req.ReturnID)
	if req.Type.OrderKeyed() && orderID == "" {
		return domain.Transaction{}, domain.ErrMissingOrderRef
	}
	if req.Type.ReturnKeyed() && returnID == "" {
		return domain.Transaction{}, domain.ErrMissingReturnRef
	}

	var transaction domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.lockBalance(ctx, tx, customerID)
		if err != nil {
			return err
		}

		// The transaction log itself is the idempotency source; the lock
		// above serializes concurrent writers for the same customer so a
		// check-then-insert is race free.
		if req.Type.OrderKeyed() {
			exists, err := s.keyedTransactionExists(ctx, tx, customerID, "order_id", orderID, req.Type)
			if err != nil {
				return err
			}
			if exists {
				return domain.ErrDuplicateTransaction
			}
		}
		if req.Type.ReturnKeyed() {
			exists, err := s.keyedTransactionExists(ctx, tx, customerID, "return_id", returnID, req.Type)
			if err != nil {
				return err
			}
			if exists {
				return domain.ErrDuplicateTransaction
			}
		}

		newBalance := balance.Balance + req.Amount
		if newBalance < 0 {
			return domain.ErrInsufficientBalance
		}

		now := time.Now().UTC()
		transaction = domain.Transaction{
			ID:           s.genID.Generate(),
			CustomerID:   customerID,
			Type:         req.Type,
			Amount:       req.Amount,
			Reason:       strings.TrimSpace(req.Reason),
			BalanceAfter: newBalance,
			CreatedAt:    now,
		}
		if orderID != "" {
			transaction.OrderID = &orderID
		}
		if returnID != "" {
			transaction.ReturnID = &returnID
		}
		if actor := strings.TrimSpace(req.ActorID); actor != "" {
			transaction.CreatedBy = &actor
		}

		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO points_transactions (
				id, customer_id, type, amount, order_id, return_id, reason,
				balance_after, created_by, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			transaction.ID,
			transaction.CustomerID,
			transaction.Type,
			transaction.Amount,
			transaction.OrderID,
			transaction.ReturnID,
			transaction.Reason,
			transaction.BalanceAfter,
			transaction.CreatedBy,
			transaction.CreatedAt,
		).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateTransaction
			}
			return err
		}

		earnedDelta := int64(0)
		redeemedDelta := int64(0)
		if req.Amount > 0 {
			earnedDelta = req.Amount
		} else {
			redeemedDelta = -req.Amount
		}

		return tx.WithContext(ctx).Exec(
			`UPDATE points_balances
			 SET balance = ?, total_earned = total_earned + ?,
			     total_redeemed = total_redeemed + ?, updated_at = ?
			 WHERE customer_id = ?`,
			newBalance,
			earnedDelta,
			redeemedDelta,
			now,
			customerID,
		).Error
	})
	if err != nil {
		switch err {
		case domain.ErrInsufficientBalance:
			s.metrics.RecordRejection("insufficient_balance")
		case domain.ErrDuplicateTransaction:
			s.metrics.RecordDuplicate(string(req.Type))
		}
		return domain.Transaction{}, err
	}

	s.metrics.RecordTransaction(string(req.Type))
	s.log.Debug("ledger transaction applied",
		zap.String("customer_id", customerID),
		zap.String("type", string(req.Type)),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance_after", transaction.BalanceAfter),
	)
	return transaction, nil
}

func (s *Service) GetBalance(ctx context.Context, customerID string) (domain.Balance, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Balance{}, domain.ErrInvalidCustomer
	}

	var balance domain.Balance
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM points_balances WHERE customer_id = ?`,
		customerID,
	).Scan(&balance).Error
	if err != nil {
		return domain.Balance{}, err
	}
	if balance.ID == 0 {
		return domain.Balance{CustomerID: customerID}, nil
	}
	return balance, nil
}

func (s *Service) ListTransactions(ctx context.Context, customerID string, limit, offset int) ([]domain.Transaction, int64, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, 0, domain.ErrInvalidCustomer
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("customer_id = ?", customerID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var transactions []domain.Transaction
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc, id desc").
		Limit(limit).
		Offset(offset).
		Find(&transactions).Error
	if err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

func (s *Service) FindByOrder(ctx context.Context, orderID string, txType domain.TransactionType) (*domain.Transaction, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, domain.ErrMissingOrderRef
	}

	var transaction domain.Transaction
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM points_transactions
		 WHERE order_id = ? AND type = ?
		 ORDER BY created_at ASC
		 LIMIT 1`,
		orderID,
		txType,
	).Scan(&transaction).Error
	if err != nil {
		return nil, err
	}
	if transaction.ID == 0 {
		return nil, nil
	}
	return &transaction, nil
}

func (s *Service) FindByReturn(ctx context.Context, returnID string, txType domain.TransactionType) (*domain.Transaction, error) {
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return nil, domain.ErrMissingReturnRef
	}

	var transaction domain.Transaction
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM points_transactions
		 WHERE return_id = ? AND type = ?
		 ORDER BY created_at ASC
		 LIMIT 1`,
		returnID,
		txType,
	).Scan(&transaction).Error
	if err != nil {
		return nil, err
	}
	if transaction.ID == 0 {
		return nil, nil
	}
	return &transaction, nil
}

func (s *Service) SumByOrder(ctx context.Context, orderID string, txType domain.TransactionType) (int64, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return 0, domain.ErrMissingOrderRef
	}

	var total int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM points_transactions
		 WHERE order_id = ? AND type = ?`,
		orderID,
		txType,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) Rebuild(ctx context.Context, customerID string) (domain.Balance, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Balance{}, domain.ErrInvalidCustomer
	}

	var rebuilt domain.Balance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.lockBalance(ctx, tx, customerID)
		if err != nil {
			return err
		}

		var sums struct {
			Balance  int64
			Earned   int64
			Redeemed int64
		}
		if err := tx.WithContext(ctx).Raw(
			`SELECT
				COALESCE(SUM(amount), 0) AS balance,
				COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0) AS earned,
				COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0) AS redeemed
			 FROM points_transactions
			 WHERE customer_id = ?`,
			customerID,
		).Scan(&sums).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`UPDATE points_balances
			 SET balance = ?, total_earned = ?, total_redeemed = ?, updated_at = ?
			 WHERE customer_id = ?`,
			sums.Balance,
			sums.Earned,
			sums.Redeemed,
			now,
			customerID,
		).Error; err != nil {
			return err
		}

		rebuilt = domain.Balance{
			ID:            balance.ID,
			CustomerID:    customerID,
			Balance:       sums.Balance,
			TotalEarned:   sums.Earned,
			TotalRedeemed: sums.Redeemed,
			UpdatedAt:     now,
		}
		return nil
	})
	if err != nil {
		return domain.Balance{}, err
	}

	s.log.Info("points balance rebuilt from ledger",
		zap.String("customer_id", customerID),
		zap.Int64("balance", rebuilt.Balance),
	)
	return rebuilt, nil
}

// lockBalance ensures the customer's balance row exists and takes the
// per-customer row lock that serializes all ledger mutations for them.
func (s *Service) lockBalance(ctx context.Context, tx *gorm.DB, customerID string) (domain.Balance, error) {
	now := time.Now().UTC()
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO points_balances (id, customer_id, balance, total_earned, total_redeemed, updated_at)
		 VALUES (?, ?, 0, 0, 0, ?)
		 ON CONFLICT (customer_id) DO NOTHING`,
		s.genID.Generate(),
		customerID,
		now,
	).Error; err != nil {
		return domain.Balance{}, err
	}

	var balance domain.Balance
	err := tx.WithContext(ctx).Raw(
		`SELECT * FROM points_balances WHERE customer_id = ? FOR UPDATE`,
		customerID,
	).Scan(&balance).Error
	if err != nil {
		return domain.Balance{}, err
	}
	return balance, nil
}

func (s *Service) keyedTransactionExists(ctx context.Context, tx *gorm.DB, customerID, column, value string, txType domain.TransactionType) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM points_transactions
		 WHERE customer_id = ? AND `+column+` = ? AND type = ?`,
		customerID,
		value,
		txType,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
