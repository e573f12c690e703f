package scheduler

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
)

// StartRunLoop runs the orchestrator on its interval for the lifetime of
// the application. Only the headless scheduler binary invokes it; the API
// server triggers runs over HTTP instead.
func StartRunLoop(lc fx.Lifecycle, sched *Orchestrator) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
