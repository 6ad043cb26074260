package points

import (
	"github.com/smallbiznis/fidelio/internal/points/service"
	"go.uber.org/fx"
)

var Module = fx.Module("points.service",
	fx.Provide(service.NewService),
)
