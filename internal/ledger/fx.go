package ledger

import (
	"github.com/smallbiznis/tollgate/internal/ledger/repository"
	"github.com/smallbiznis/tollgate/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger",
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
