package service_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	activitydomain "github.com/smallbiznis/fidelio/internal/activity/domain"
	activityservice "github.com/smallbiznis/fidelio/internal/activity/service"
	"github.com/smallbiznis/fidelio/internal/clock"
	"github.com/smallbiznis/fidelio/internal/membership/domain"
	membershipservice "github.com/smallbiznis/fidelio/internal/membership/service"
	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
	programservice "github.com/smallbiznis/fidelio/internal/program/service"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
	tierrepo "github.com/smallbiznis/fidelio/internal/tier/repository"
	tierservice "github.com/smallbiznis/fidelio/internal/tier/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db         *gorm.DB
	clk        *clock.FakeClock
	activity   activitydomain.Service
	tiers      tierdomain.Service
	program    programdomain.Service
	membership domain.Service
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
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

	if err := db.AutoMigrate(
		&tierdomain.Tier{},
		&programdomain.Config{},
		&domain.Membership{},
		&activitydomain.Order{},
		&activitydomain.Window{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(9)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	tiersSvc := tierservice.NewService(tierservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  tierrepo.Provide(),
	})
	programSvc := programservice.NewService(programservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
	})
	activitySvc := activityservice.NewService(activityservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
	})
	membershipSvc := membershipservice.NewService(membershipservice.Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Activity: activitySvc,
		Tiers:    tiersSvc,
		Program:  programSvc,
	})

	f := &fixture{
		db:         db,
		clk:        clk,
		activity:   activitySvc,
		tiers:      tiersSvc,
		program:    programSvc,
		membership: membershipSvc,
	}
	f.seedTiers(t)
	return f
}

func (f *fixture) seedTiers(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	_, err := f.tiers.Create(ctx, tierdomain.CreateTierRequest{
		Slug: "classic", Name: "Classic", Rank: 0, PointsMultiplier: 1, IsDefault: true,
	})
	require.NoError(t, err)
	_, err = f.tiers.Create(ctx, tierdomain.CreateTierRequest{
		Slug: "silver", Name: "Silver", Rank: 1,
		OrderThreshold: 3, SpendThreshold: 30000,
		PointsMultiplier: 1.25, DiscountPercentage: 5,
	})
	require.NoError(t, err)
	_, err = f.tiers.Create(ctx, tierdomain.CreateTierRequest{
		Slug: "gold", Name: "Gold", Rank: 2,
		OrderThreshold: 6, SpendThreshold: 80000,
		PointsMultiplier: 1.5, DiscountPercentage: 10,
	})
	require.NoError(t, err)
}

func (f *fixture) placeOrders(t *testing.T, customerID string, count int, each int64, at time.Time) {
	t.Helper()
	for i := 0; i < count; i++ {
		orderID := fmt.Sprintf("%s_order_%d", customerID, i)
		require.NoError(t, f.activity.RecordOrder(context.Background(), customerID, orderID, each, at))
	}
}

func TestEnrollIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)

	first, err := f.membership.Enroll(ctx, "cust_1")
	require.NoError(t, err)
	assert.Equal(t, "classic", first.TierSlug)
	assert.Equal(t, domain.StatusActive, first.Status)

	again, err := f.membership.Enroll(ctx, "cust_1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	var count int64
	require.NoError(t, f.db.Model(&domain.Membership{}).Where("customer_id = ?", "cust_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEnrollReactivatesRetired(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)

	first, err := f.membership.Enroll(ctx, "cust_2")
	require.NoError(t, err)
	require.NoError(t, f.membership.Retire(ctx, "cust_2"))

	_, err = f.membership.Status(ctx, "cust_2")
	assert.ErrorIs(t, err, domain.ErrNotEnrolled)

	back, err := f.membership.Enroll(ctx, "cust_2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, back.ID)
	assert.Equal(t, domain.StatusActive, back.Status)
}

func TestReevaluatePromotesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)

	f.placeOrders(t, "cust_3", 4, 10000, f.clk.Now().AddDate(0, -1, 0))

	membership, changed, err := f.membership.Reevaluate(ctx, "cust_3", f.clk.Now())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "silver", membership.TierSlug)

	// Same window, same outcome, no second change.
	membership, changed, err = f.membership.Reevaluate(ctx, "cust_3", f.clk.Now())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "silver", membership.TierSlug)
}

func TestReevaluateDemotesWhenWindowDecays(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)

	f.placeOrders(t, "cust_4", 6, 15000, f.clk.Now().AddDate(0, -1, 0))

	membership, changed, err := f.membership.Reevaluate(ctx, "cust_4", f.clk.Now())
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, "gold", membership.TierSlug)

	// Fourteen months later every order has aged out of the window.
	f.clk.Advance(14 * 30 * 24 * time.Hour)
	membership, changed, err = f.membership.Reevaluate(ctx, "cust_4", f.clk.Now())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "classic", membership.TierSlug)
}

func TestReevaluateAutoEnrolls(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)

	membership, _, err := f.membership.Reevaluate(ctx, "cust_5", f.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, "classic", membership.TierSlug)
	assert.Equal(t, domain.StatusActive, membership.Status)
}

func TestReevaluateWithoutAutoEnroll(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)

	off := false
	_, err := f.program.Update(ctx, programdomain.UpdateConfigRequest{AutoEnrollOnFirstOrder: &off})
	require.NoError(t, err)

	_, _, err = f.membership.Reevaluate(ctx, "cust_6", f.clk.Now())
	assert.ErrorIs(t, err, domain.ErrNotEnrolled)
}

func TestStatusReportsProgress(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)

	f.placeOrders(t, "cust_7", 1, 12000, f.clk.Now().AddDate(0, 0, -10))
	_, _, err := f.membership.Reevaluate(ctx, "cust_7", f.clk.Now())
	require.NoError(t, err)

	status, err := f.membership.Status(ctx, "cust_7")
	require.NoError(t, err)
	assert.Equal(t, "classic", status.Tier.Slug)
	assert.Equal(t, int64(1), status.Snapshot.OrderCount)
	require.NotNil(t, status.NextTier)
	assert.Equal(t, "silver", status.NextTier.Slug)
	assert.Equal(t, int64(2), status.OrdersToNextTier)
	assert.Equal(t, int64(18000), status.SpendToNextTier)
}

func TestStatusUnknownCustomer(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)

	_, err := f.membership.Status(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotEnrolled)
}

func TestClaimDueSkipsFreshlyEvaluated(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)

	_, err := f.membership.Enroll(ctx, "cust_8")
	require.NoError(t, err)
	_, err = f.membership.Enroll(ctx, "cust_9")
	require.NoError(t, err)

	claimed, err := f.membership.ClaimDue(ctx, f.clk.Now(), 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)

	// Both just got stamped; nothing is due against the same cutoff.
	claimed, err = f.membership.ClaimDue(ctx, f.clk.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// A later cutoff makes them due again.
	f.clk.Advance(24 * time.Hour)
	claimed, err = f.membership.ClaimDue(ctx, f.clk.Now(), 1)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}
