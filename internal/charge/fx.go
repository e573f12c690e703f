package charge

import (
	"github.com/smallbiznis/tollgate/internal/charge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("charge.provider",
	fx.Provide(service.NewClient),
)
