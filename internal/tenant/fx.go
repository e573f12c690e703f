package tenant

import (
	"github.com/smallbiznis/tollgate/internal/tenant/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.analytics",
	fx.Provide(repository.New),
)
