package migration

import (
	activitydomain "github.com/smallbiznis/fidelio/internal/activity/domain"
	auditdomain "github.com/smallbiznis/fidelio/internal/audit/domain"
	"github.com/smallbiznis/fidelio/internal/config"
	membershipdomain "github.com/smallbiznis/fidelio/internal/membership/domain"
	pointsdomain "github.com/smallbiznis/fidelio/internal/points/domain"
	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
	"github.com/smallbiznis/fidelio/internal/seed"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// The versioned SQL targets postgres; other dialects are for
			// local development and get the schema straight from the models.
			if err := conn.AutoMigrate(
				&tierdomain.Tier{},
				&programdomain.Config{},
				&membershipdomain.Membership{},
				&activitydomain.Order{},
				&activitydomain.Window{},
				&activitydomain.Refund{},
				&pointsdomain.Balance{},
				&pointsdomain.Transaction{},
				&auditdomain.AuditLog{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureDefaultCatalog(conn)
	}),
)
