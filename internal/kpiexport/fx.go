package kpiexport

import (
	"context"

	"github.com/smallbiznis/licenseboard/internal/dashboard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("kpiexport",
	fx.Provide(NewRegistry),
	fx.Provide(NewPusher),
	fx.Provide(New),
	fx.Provide(func(e *Exporter) dashboard.KPISink { return e }),
	fx.Invoke(startWorker),
)

func startWorker(lc fx.Lifecycle, e *Exporter, log *zap.Logger) {
	if e == nil || e.pusher == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting kpi push worker")
			go func() {
				defer close(done)
				e.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			log.Info("stopped kpi push worker")
			return nil
		},
	})
}
