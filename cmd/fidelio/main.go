package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fidelio/internal/clock"
	"github.com/smallbiznis/fidelio/internal/config"
	"github.com/smallbiznis/fidelio/internal/migration"
	"github.com/smallbiznis/fidelio/internal/scheduler"
	"github.com/smallbiznis/fidelio/internal/server"
	"github.com/smallbiznis/fidelio/pkg/db"
	"github.com/smallbiznis/fidelio/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
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
