package dispatch

import (
	"github.com/smallbiznis/tollgate/internal/dispatch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dispatch",
	fx.Provide(service.NewService),
)
