package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/fidelio/internal/audit/domain"
	"github.com/smallbiznis/fidelio/internal/program/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("program.service"),
		genID:    p.GenID,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Get(ctx context.Context) (domain.Config, error) {
	var cfg domain.Config
	err := s.db.WithContext(ctx).Raw(
		`SELECT * FROM loyalty_configs ORDER BY id LIMIT 1`,
	).Scan(&cfg).Error
	if err != nil {
		return domain.Config{}, err
	}
	if cfg.ID == 0 {
		return domain.Defaults(), nil
	}
	return cfg, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateConfigRequest) (domain.Config, error) {
	var updated domain.Config
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cfg domain.Config
		if err := tx.WithContext(ctx).Raw(
			`SELECT * FROM loyalty_configs ORDER BY id LIMIT 1`,
		).Scan(&cfg).Error; err != nil {
			return err
		}

		created := false
		if cfg.ID == 0 {
			cfg = domain.Defaults()
			cfg.ID = s.genID.Generate()
			created = true
		}

		if err := applyUpdate(&cfg, req); err != nil {
			return err
		}
		cfg.UpdatedAt = time.Now().UTC()

		if created {
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO loyalty_configs (
					id, program_type, price, duration_months, evaluation_period_months,
					evaluation_trigger, auto_enroll_on_first_order, earning_type,
					earning_rate, redemption_rate, is_enabled, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				cfg.ID,
				cfg.ProgramType,
				cfg.Price,
				cfg.DurationMonths,
				cfg.EvaluationPeriodMonths,
				cfg.EvaluationTrigger,
				cfg.AutoEnrollOnFirstOrder,
				cfg.EarningType,
				cfg.EarningRate,
				cfg.RedemptionRate,
				cfg.IsEnabled,
				cfg.UpdatedAt,
			).Error; err != nil {
				return err
			}
		} else {
			if err := tx.WithContext(ctx).Exec(
				`UPDATE loyalty_configs
				 SET program_type = ?, price = ?, duration_months = ?,
				     evaluation_period_months = ?, evaluation_trigger = ?,
				     auto_enroll_on_first_order = ?, earning_type = ?,
				     earning_rate = ?, redemption_rate = ?, is_enabled = ?,
				     updated_at = ?
				 WHERE id = ?`,
				cfg.ProgramType,
				cfg.Price,
				cfg.DurationMonths,
				cfg.EvaluationPeriodMonths,
				cfg.EvaluationTrigger,
				cfg.AutoEnrollOnFirstOrder,
				cfg.EarningType,
				cfg.EarningRate,
				cfg.RedemptionRate,
				cfg.IsEnabled,
				cfg.UpdatedAt,
				cfg.ID,
			).Error; err != nil {
				return err
			}
		}

		updated = cfg
		return nil
	})
	if err != nil {
		return domain.Config{}, err
	}

	if s.auditSvc != nil {
		target := updated.ID.String()
		if err := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeAdmin, nil, "program.config_updated", "loyalty_config", &target, map[string]any{
			"evaluation_trigger":       string(updated.EvaluationTrigger),
			"evaluation_period_months": updated.EvaluationPeriodMonths,
			"earning_rate":             updated.EarningRate,
			"redemption_rate":          updated.RedemptionRate,
			"is_enabled":               updated.IsEnabled,
		}); err != nil {
			s.log.Warn("failed to write config audit log", zap.Error(err))
		}
	}
	return updated, nil
}

func applyUpdate(cfg *domain.Config, req domain.UpdateConfigRequest) error {
	if req.ProgramType != nil {
		switch *req.ProgramType {
		case domain.ProgramTypeFree, domain.ProgramTypePaid:
			cfg.ProgramType = *req.ProgramType
		default:
			return domain.ErrInvalidProgramType
		}
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return domain.ErrInvalidPrice
		}
		cfg.Price = *req.Price
	}
	if req.DurationMonths != nil {
		if *req.DurationMonths <= 0 {
			return domain.ErrInvalidDuration
		}
		cfg.DurationMonths = *req.DurationMonths
	}
	if req.EvaluationPeriodMonths != nil {
		if *req.EvaluationPeriodMonths <= 0 {
			return domain.ErrInvalidEvaluationPeriod
		}
		cfg.EvaluationPeriodMonths = *req.EvaluationPeriodMonths
	}
	if req.EvaluationTrigger != nil {
		switch *req.EvaluationTrigger {
		case domain.EvaluationTriggerOnOrder, domain.EvaluationTriggerDaily, domain.EvaluationTriggerBoth:
			cfg.EvaluationTrigger = *req.EvaluationTrigger
		default:
			return domain.ErrInvalidEvaluationTrigger
		}
	}
	if req.AutoEnrollOnFirstOrder != nil {
		cfg.AutoEnrollOnFirstOrder = *req.AutoEnrollOnFirstOrder
	}
	if req.EarningType != nil {
		switch *req.EarningType {
		case domain.EarningTypePercentage, domain.EarningTypePerProduct:
			cfg.EarningType = *req.EarningType
		default:
			return domain.ErrInvalidEarningType
		}
	}
	if req.EarningRate != nil {
		if *req.EarningRate < 0 {
			return domain.ErrInvalidEarningRate
		}
		cfg.EarningRate = *req.EarningRate
	}
	if req.RedemptionRate != nil {
		if *req.RedemptionRate < 0 {
			return domain.ErrInvalidRedemptionRate
		}
		cfg.RedemptionRate = *req.RedemptionRate
	}
	if req.IsEnabled != nil {
		cfg.IsEnabled = *req.IsEnabled
	}
	return nil
}
