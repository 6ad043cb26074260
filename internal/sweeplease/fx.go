package sweeplease

import "go.uber.org/fx"

var Module = fx.Module("sweep.lease",
	fx.Provide(New),
)
