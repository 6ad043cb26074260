package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fidelio/internal/points/domain"
	pointsservice "github.com/smallbiznis/fidelio/internal/points/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	// SQLite support hack: remove FOR UPDATE clauses
	db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	})
	db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	})

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.Balance{}, &domain.Transaction{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM points_transactions")
		db.Exec("DELETE FROM points_balances")
	})
	return db
}

func newTestService(t *testing.T, db *gorm.DB) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return pointsservice.NewService(pointsservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
}

func TestApplyEarnAndRedeem(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	earned, err := svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_1",
		Type:       domain.TypeEarned,
		Amount:     500,
		OrderID:    "order_1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), earned.BalanceAfter)

	redeemed, err := svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_1",
		Type:       domain.TypeRedeemed,
		Amount:     -200,
		OrderID:    "order_2",
		Reason:     "applied at checkout",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), redeemed.BalanceAfter)

	balance, err := svc.GetBalance(ctx, "cust_1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance.Balance)
	assert.Equal(t, int64(500), balance.TotalEarned)
	assert.Equal(t, int64(200), balance.TotalRedeemed)
}

func TestApplyRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_2",
		Type:       domain.TypeEarned,
		Amount:     100,
		OrderID:    "order_10",
	})
	require.NoError(t, err)

	_, err = svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_2",
		Type:       domain.TypeRedeemed,
		Amount:     -150,
		OrderID:    "order_11",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	balance, err := svc.GetBalance(ctx, "cust_2")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Balance)
}

func TestApplyValidation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Apply(ctx, domain.ApplyRequest{Type: domain.TypeEarned, Amount: 10, OrderID: "o"})
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)

	_, err = svc.Apply(ctx, domain.ApplyRequest{CustomerID: "c", Type: "gifted", Amount: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = svc.Apply(ctx, domain.ApplyRequest{CustomerID: "c", Type: domain.TypeEarned, Amount: 0, OrderID: "o"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// Sign must match the transaction type.
	_, err = svc.Apply(ctx, domain.ApplyRequest{CustomerID: "c", Type: domain.TypeEarned, Amount: -10, OrderID: "o"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Apply(ctx, domain.ApplyRequest{CustomerID: "c", Type: domain.TypeRedeemed, Amount: 10, OrderID: "o"})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Apply(ctx, domain.ApplyRequest{CustomerID: "c", Type: domain.TypeEarned, Amount: 10})
	assert.ErrorIs(t, err, domain.ErrMissingOrderRef)

	_, err = svc.Apply(ctx, domain.ApplyRequest{CustomerID: "c", Type: domain.TypeReturnDeducted, Amount: -10})
	assert.ErrorIs(t, err, domain.ErrMissingReturnRef)
}

func TestApplyOrderKeyedIdempotency(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_3",
		Type:       domain.TypeEarned,
		Amount:     250,
		OrderID:    "order_20",
	})
	require.NoError(t, err)

	// Replaying the same earn for the same order is a duplicate even if
	// the amount differs.
	_, err = svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_3",
		Type:       domain.TypeEarned,
		Amount:     300,
		OrderID:    "order_20",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateTransaction)

	balance, err := svc.GetBalance(ctx, "cust_3")
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance.Balance)

	// A different transaction type against the same order is allowed.
	_, err = svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_3",
		Type:       domain.TypeCancelDeducted,
		Amount:     -250,
		OrderID:    "order_20",
	})
	require.NoError(t, err)
}

func TestApplyReturnKeyedIdempotency(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_4",
		Type:       domain.TypeEarned,
		Amount:     400,
		OrderID:    "order_30",
	})
	require.NoError(t, err)

	_, err = svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_4",
		Type:       domain.TypeReturnDeducted,
		Amount:     -100,
		OrderID:    "order_30",
		ReturnID:   "return_1",
	})
	require.NoError(t, err)

	_, err = svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_4",
		Type:       domain.TypeReturnDeducted,
		Amount:     -100,
		OrderID:    "order_30",
		ReturnID:   "return_1",
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateTransaction)

	balance, err := svc.GetBalance(ctx, "cust_4")
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance.Balance)
}

func TestRedeemIsNotKeyed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_5",
		Type:       domain.TypeEarned,
		Amount:     500,
		OrderID:    "order_40",
	})
	require.NoError(t, err)

	_, err = svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_5",
		Type:       domain.TypeRedeemed,
		Amount:     -500,
		OrderID:    "order_41",
	})
	require.NoError(t, err)

	// A second redemption is not deduplicated; it fails on balance instead.
	_, err = svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_5",
		Type:       domain.TypeRedeemed,
		Amount:     -500,
		OrderID:    "order_41",
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestGetBalanceUnknownCustomer(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	balance, err := svc.GetBalance(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Balance)
	assert.Equal(t, int64(0), balance.TotalEarned)
	assert.Equal(t, int64(0), balance.TotalRedeemed)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	for i, orderID := range []string{"order_50", "order_51", "order_52"} {
		_, err := svc.Apply(ctx, domain.ApplyRequest{
			CustomerID: "cust_6",
			Type:       domain.TypeEarned,
			Amount:     int64(100 * (i + 1)),
			OrderID:    orderID,
		})
		require.NoError(t, err)
	}

	transactions, total, err := svc.ListTransactions(ctx, "cust_6", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, transactions, 2)
	assert.Equal(t, int64(300), transactions[0].Amount)
	assert.Equal(t, int64(200), transactions[1].Amount)

	transactions, _, err = svc.ListTransactions(ctx, "cust_6", 2, 2)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, int64(100), transactions[0].Amount)
}

func TestFindAndSumByOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_7",
		Type:       domain.TypeEarned,
		Amount:     600,
		OrderID:    "order_60",
	})
	require.NoError(t, err)

	for _, returnID := range []string{"return_10", "return_11"} {
		_, err := svc.Apply(ctx, domain.ApplyRequest{
			CustomerID: "cust_7",
			Type:       domain.TypeReturnDeducted,
			Amount:     -150,
			OrderID:    "order_60",
			ReturnID:   returnID,
		})
		require.NoError(t, err)
	}

	earn, err := svc.FindByOrder(ctx, "order_60", domain.TypeEarned)
	require.NoError(t, err)
	require.NotNil(t, earn)
	assert.Equal(t, int64(600), earn.Amount)

	missing, err := svc.FindByOrder(ctx, "order_60", domain.TypeCancelDeducted)
	require.NoError(t, err)
	assert.Nil(t, missing)

	deducted, err := svc.SumByOrder(ctx, "order_60", domain.TypeReturnDeducted)
	require.NoError(t, err)
	assert.Equal(t, int64(-300), deducted)

	byReturn, err := svc.FindByReturn(ctx, "return_10", domain.TypeReturnDeducted)
	require.NoError(t, err)
	require.NotNil(t, byReturn)
	assert.Equal(t, int64(-150), byReturn.Amount)
}

func TestRebuildRecomputesFromLedger(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_8",
		Type:       domain.TypeEarned,
		Amount:     800,
		OrderID:    "order_70",
	})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, domain.ApplyRequest{
		CustomerID: "cust_8",
		Type:       domain.TypeRedeemed,
		Amount:     -300,
		OrderID:    "order_71",
	})
	require.NoError(t, err)

	// Corrupt the snapshot, then rebuild it from the transaction log.
	require.NoError(t, db.Exec(
		`UPDATE points_balances SET balance = 9999, total_earned = 1, total_redeemed = 1 WHERE customer_id = ?`,
		"cust_8",
	).Error)

	rebuilt, err := svc.Rebuild(ctx, "cust_8")
	require.NoError(t, err)
	assert.Equal(t, int64(500), rebuilt.Balance)
	assert.Equal(t, int64(800), rebuilt.TotalEarned)
	assert.Equal(t, int64(300), rebuilt.TotalRedeemed)

	balance, err := svc.GetBalance(ctx, "cust_8")
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.Balance)
}
