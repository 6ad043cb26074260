package tier

import (
	"github.com/smallbiznis/fidelio/internal/tier/repository"
	"github.com/smallbiznis/fidelio/internal/tier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tier.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
