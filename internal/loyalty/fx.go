package loyalty

import (
	"github.com/smallbiznis/fidelio/internal/loyalty/service"
	"go.uber.org/fx"
)

var Module = fx.Module("loyalty.service",
	fx.Provide(service.NewService),
)
