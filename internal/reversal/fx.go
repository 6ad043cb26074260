package reversal

import (
	"github.com/smallbiznis/fidelio/internal/reversal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reversal.service",
	fx.Provide(service.NewService),
)
