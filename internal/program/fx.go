package program

import (
	"github.com/smallbiznis/fidelio/internal/program/service"
	"go.uber.org/fx"
)

var Module = fx.Module("program.service",
	fx.Provide(service.NewService),
)
