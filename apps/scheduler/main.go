package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/charge"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/smallbiznis/tollgate/internal/dispatch"
	"github.com/smallbiznis/tollgate/internal/ledger"
	"github.com/smallbiznis/tollgate/internal/observability"
	"github.com/smallbiznis/tollgate/internal/providers/slack"
	"github.com/smallbiznis/tollgate/internal/rating"
	"github.com/smallbiznis/tollgate/internal/reconcile"
	"github.com/smallbiznis/tollgate/internal/scheduler"
	"github.com/smallbiznis/tollgate/internal/tenant"
	"github.com/smallbiznis/tollgate/pkg/db"
	"go.uber.org/fx"
)

// Headless billing runner. Triggers one run per interval with no HTTP
// surface beyond what observability exports.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		tenant.Module,
		rating.Module,
		ledger.Module,
		charge.Module,
		dispatch.Module,
		reconcile.Module,
		slack.Module,
		scheduler.Module,

		fx.Invoke(scheduler.StartRunLoop),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
