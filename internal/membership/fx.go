package membership

import (
	"github.com/smallbiznis/fidelio/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership.service",
	fx.Provide(service.NewService),
)
