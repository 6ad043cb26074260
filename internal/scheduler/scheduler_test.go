package scheduler_test

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	activitydomain "github.com/smallbiznis/fidelio/internal/activity/domain"
	activityservice "github.com/smallbiznis/fidelio/internal/activity/service"
	"github.com/smallbiznis/fidelio/internal/clock"
	"github.com/smallbiznis/fidelio/internal/config"
	membershipdomain "github.com/smallbiznis/fidelio/internal/membership/domain"
	membershipservice "github.com/smallbiznis/fidelio/internal/membership/service"
	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
	programservice "github.com/smallbiznis/fidelio/internal/program/service"
	"github.com/smallbiznis/fidelio/internal/scheduler"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
	tierrepo "github.com/smallbiznis/fidelio/internal/tier/repository"
	tierservice "github.com/smallbiznis/fidelio/internal/tier/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db         *gorm.DB
	clk        *clock.FakeClock
	activity   activitydomain.Service
	membership membershipdomain.Service
	program    programdomain.Service
	sched      *scheduler.Scheduler
}

func setupFixture(t *testing.T, cfg scheduler.Config) *fixture {
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
		&membershipdomain.Membership{},
		&activitydomain.Order{},
		&activitydomain.Window{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(13)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	tiersSvc := tierservice.NewService(tierservice.Params{
		DB: db, Log: log, GenID: node, Repo: tierrepo.Provide(),
	})
	programSvc := programservice.NewService(programservice.Params{
		DB: db, Log: log, GenID: node,
	})
	activitySvc := activityservice.NewService(activityservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
	})
	membershipSvc := membershipservice.NewService(membershipservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Activity: activitySvc, Tiers: tiersSvc, Program: programSvc,
	})

	sched, err := scheduler.New(scheduler.Params{
		Log:           log,
		Clock:         clk,
		MembershipSvc: membershipSvc,
		ProgramSvc:    programSvc,
		Config:        cfg,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = tiersSvc.Create(ctx, tierdomain.CreateTierRequest{
		Slug: "classic", Name: "Classic", Rank: 0, PointsMultiplier: 1, IsDefault: true,
	})
	require.NoError(t, err)
	_, err = tiersSvc.Create(ctx, tierdomain.CreateTierRequest{
		Slug: "silver", Name: "Silver", Rank: 1,
		OrderThreshold: 3, SpendThreshold: 30000, PointsMultiplier: 1.25,
	})
	require.NoError(t, err)

	return &fixture{
		db:         db,
		clk:        clk,
		activity:   activitySvc,
		membership: membershipSvc,
		program:    programSvc,
		sched:      sched,
	}
}

func (f *fixture) makeSilverMember(t *testing.T, customerID string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		orderID := fmt.Sprintf("%s_order_%d", customerID, i)
		require.NoError(t, f.activity.RecordOrder(ctx, customerID, orderID, 12000, f.clk.Now()))
	}
	membership, _, err := f.membership.Reevaluate(ctx, customerID, f.clk.Now())
	require.NoError(t, err)
	require.Equal(t, "silver", membership.TierSlug)
}

func TestSweepDemotesDecayedMembers(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, scheduler.Config{})

	f.makeSilverMember(t, "cust_1")

	// Thirteen quiet months: the window empties and the sweep demotes.
	f.clk.Advance(13 * 31 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))

	membership, err := f.membership.Get(ctx, "cust_1")
	require.NoError(t, err)
	assert.Equal(t, "classic", membership.TierSlug)
}

func TestSweepIsIdempotentWithinCutoff(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, scheduler.Config{})

	f.makeSilverMember(t, "cust_2")
	f.clk.Advance(13 * 31 * 24 * time.Hour)

	require.NoError(t, f.sched.RunOnce(ctx))
	first, err := f.membership.Get(ctx, "cust_2")
	require.NoError(t, err)

	// A second pass finds nothing due and changes nothing.
	require.NoError(t, f.sched.RunOnce(ctx))
	second, err := f.membership.Get(ctx, "cust_2")
	require.NoError(t, err)
	assert.Equal(t, first.TierSlug, second.TierSlug)
	assert.Equal(t, first.TierUpdatedAt, second.TierUpdatedAt)
}

func TestSweepWalksAllBatches(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, scheduler.Config{BatchSize: 2})

	for i := 0; i < 5; i++ {
		_, err := f.membership.Enroll(ctx, fmt.Sprintf("cust_batch_%d", i))
		require.NoError(t, err)
	}

	f.clk.Advance(24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))

	var pending int64
	require.NoError(t, f.db.Model(&membershipdomain.Membership{}).
		Where("last_evaluated_at IS NULL").Count(&pending).Error)
	assert.Equal(t, int64(0), pending)
}

func TestSweepSkipsWhenTriggerIsOnOrderOnly(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, scheduler.Config{})

	trigger := programdomain.EvaluationTriggerOnOrder
	_, err := f.program.Update(ctx, programdomain.UpdateConfigRequest{EvaluationTrigger: &trigger})
	require.NoError(t, err)

	f.makeSilverMember(t, "cust_3")
	f.clk.Advance(13 * 31 * 24 * time.Hour)

	require.NoError(t, f.sched.RunOnce(ctx))

	membership, err := f.membership.Get(ctx, "cust_3")
	require.NoError(t, err)
	assert.Equal(t, "silver", membership.TierSlug)
}

type countingProgramService struct {
	programdomain.Service
	calls atomic.Int64
}

func (p *countingProgramService) Get(ctx context.Context) (programdomain.Config, error) {
	p.calls.Add(1)
	return p.Service.Get(ctx)
}

func TestLifecycleStopEndsSweepLoop(t *testing.T) {
	f := setupFixture(t, scheduler.Config{})
	prog := &countingProgramService{Service: f.program}

	sched, err := scheduler.New(scheduler.Params{
		Log:           zap.NewNop(),
		Clock:         f.clk,
		MembershipSvc: f.membership,
		ProgramSvc:    prog,
		Config:        scheduler.Config{RunInterval: 5 * time.Millisecond},
	})
	require.NoError(t, err)

	lc := fxtest.NewLifecycle(t)
	scheduler.NewScheduler(lc, config.Config{SweepEnabled: true}, sched)
	lc.RequireStart()

	require.Eventually(t, func() bool {
		return prog.calls.Load() > 1
	}, time.Second, 5*time.Millisecond)

	// OnStop must cancel the loop's context, not leak the goroutine.
	lc.RequireStop()

	time.Sleep(20 * time.Millisecond)
	settled := prog.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, prog.calls.Load())
}

func TestSchedulerDisabledAddsNoHooks(t *testing.T) {
	f := setupFixture(t, scheduler.Config{})

	lc := fxtest.NewLifecycle(t)
	scheduler.NewScheduler(lc, config.Config{SweepEnabled: false}, f.sched)
	lc.RequireStart()
	lc.RequireStop()
}

func TestSweepSkipsWhenProgramDisabled(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t, scheduler.Config{})

	f.makeSilverMember(t, "cust_4")

	off := false
	_, err := f.program.Update(ctx, programdomain.UpdateConfigRequest{IsEnabled: &off})
	require.NoError(t, err)

	f.clk.Advance(13 * 31 * 24 * time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))

	membership, err := f.membership.Get(ctx, "cust_4")
	require.NoError(t, err)
	assert.Equal(t, "silver", membership.TierSlug)
}
