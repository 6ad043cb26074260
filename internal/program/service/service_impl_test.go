package service_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fidelio/internal/program/domain"
	programservice "github.com/smallbiznis/fidelio/internal/program/service"
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

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.Config{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM loyalty_configs")
	})
	return db
}

func newTestService(t *testing.T, db *gorm.DB) domain.Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return programservice.NewService(programservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
}

func TestGetReturnsDefaultsWhenUnset(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	cfg, err := svc.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.ProgramTypeFree, cfg.ProgramType)
	assert.Equal(t, 12, cfg.EvaluationPeriodMonths)
	assert.Equal(t, domain.EvaluationTriggerBoth, cfg.EvaluationTrigger)
	assert.Equal(t, float64(5), cfg.EarningRate)
	assert.Equal(t, 0.01, cfg.RedemptionRate)
	assert.True(t, cfg.IsEnabled)
	assert.True(t, cfg.AutoEnrollOnFirstOrder)
}

func TestUpdateCreatesThenPersists(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	rate := 2.5
	updated, err := svc.Update(ctx, domain.UpdateConfigRequest{EarningRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, 2.5, updated.EarningRate)
	assert.NotZero(t, updated.ID)

	// The singleton row is reused on the next update.
	months := 6
	updated2, err := svc.Update(ctx, domain.UpdateConfigRequest{EvaluationPeriodMonths: &months})
	require.NoError(t, err)
	assert.Equal(t, updated.ID, updated2.ID)
	assert.Equal(t, 2.5, updated2.EarningRate)
	assert.Equal(t, 6, updated2.EvaluationPeriodMonths)

	var count int64
	require.NoError(t, db.Table("loyalty_configs").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, got.EvaluationPeriodMonths)
}

func TestUpdateValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	badType := domain.ProgramType("premium")
	_, err := svc.Update(ctx, domain.UpdateConfigRequest{ProgramType: &badType})
	assert.ErrorIs(t, err, domain.ErrInvalidProgramType)

	badPrice := int64(-1)
	_, err = svc.Update(ctx, domain.UpdateConfigRequest{Price: &badPrice})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	badMonths := 0
	_, err = svc.Update(ctx, domain.UpdateConfigRequest{EvaluationPeriodMonths: &badMonths})
	assert.ErrorIs(t, err, domain.ErrInvalidEvaluationPeriod)

	badTrigger := domain.EvaluationTrigger("hourly")
	_, err = svc.Update(ctx, domain.UpdateConfigRequest{EvaluationTrigger: &badTrigger})
	assert.ErrorIs(t, err, domain.ErrInvalidEvaluationTrigger)

	badEarning := domain.EarningType("flat")
	_, err = svc.Update(ctx, domain.UpdateConfigRequest{EarningType: &badEarning})
	assert.ErrorIs(t, err, domain.ErrInvalidEarningType)

	badRate := -0.5
	_, err = svc.Update(ctx, domain.UpdateConfigRequest{RedemptionRate: &badRate})
	assert.ErrorIs(t, err, domain.ErrInvalidRedemptionRate)

	// A failed update leaves nothing behind.
	var count int64
	require.NoError(t, db.Table("loyalty_configs").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestTriggerHelpers(t *testing.T) {
	cfg := domain.Defaults()

	cfg.EvaluationTrigger = domain.EvaluationTriggerOnOrder
	assert.True(t, cfg.EvaluatesOnOrder())
	assert.False(t, cfg.EvaluatesDaily())

	cfg.EvaluationTrigger = domain.EvaluationTriggerDaily
	assert.False(t, cfg.EvaluatesOnOrder())
	assert.True(t, cfg.EvaluatesDaily())

	cfg.EvaluationTrigger = domain.EvaluationTriggerBoth
	assert.True(t, cfg.EvaluatesOnOrder())
	assert.True(t, cfg.EvaluatesDaily())
}
