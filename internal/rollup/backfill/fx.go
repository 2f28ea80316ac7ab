package backfill

import (
	"context"

	scddomain "github.com/smallbiznis/retailsales/internal/scd/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("rollup.backfill",
	fx.Provide(NewConfig),
	fx.Provide(NewDriver),
	fx.Provide(func(svc scddomain.Service) AddressSyncer { return svc }),
	fx.Provide(NewWorker),
)

// WorkerModule starts the catch-up worker with the application.
var WorkerModule = fx.Module("rollup.worker",
	fx.Invoke(runWorker),
)

func runWorker(lc fx.Lifecycle, worker *Worker, cfg Config) {
	if !cfg.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(ctx)

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
