package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fidelio/internal/activity"
	"github.com/smallbiznis/fidelio/internal/audit"
	"github.com/smallbiznis/fidelio/internal/clock"
	"github.com/smallbiznis/fidelio/internal/config"
	"github.com/smallbiznis/fidelio/internal/membership"
	"github.com/smallbiznis/fidelio/internal/metrics"
	"github.com/smallbiznis/fidelio/internal/migration"
	"github.com/smallbiznis/fidelio/internal/program"
	"github.com/smallbiznis/fidelio/internal/scheduler"
	"github.com/smallbiznis/fidelio/internal/sweeplease"
	"github.com/smallbiznis/fidelio/internal/tier"
	"github.com/smallbiznis/fidelio/pkg/db"
	"github.com/smallbiznis/fidelio/pkg/log"
	"go.uber.org/fx"
)

// The sweeper runs tier evaluation sweeps on its own, without the HTTP
// server. It always runs, regardless of SWEEP_ENABLED, so a deployment can
// keep the API processes sweep-free and scale this one separately.
func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		metrics.Module,

		audit.Module,
		tier.Module,
		program.Module,
		activity.Module,
		membership.Module,
		sweeplease.Module,

		fx.Provide(scheduler.ProvideConfig),
		fx.Provide(scheduler.New),
		fx.Invoke(StartSweeper),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func StartSweeper(lc fx.Lifecycle, s *scheduler.Scheduler) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.RunForever(runCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
