package submission

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"taskpoint/pkg/config"
	"taskpoint/pkg/task"
	"taskpoint/services/order"
)

// TypeExpireSweep is the background task that rejects submissions whose
// verification window has elapsed.
const TypeExpireSweep = "submission:expire"

func NewExpireTask() *asynq.Task {
	return asynq.NewTask(TypeExpireSweep, nil)
}

// RegisterTaskHandlers wires the pipeline's background tasks into the
// worker mux.
func RegisterTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(TypeExpireSweep, func(ctx context.Context, t *asynq.Task) error {
		_, err := svc.ExpireSweep(ctx, time.Now())
		return err
	})
}

// RunExpiryScheduler enqueues the submission and order expiry sweeps on
// a fixed interval for as long as the process runs.
func RunExpiryScheduler(lc fx.Lifecycle, cfg *config.Config, enqueuer task.Enqueuer) {
	interval := cfg.Engine.ExpirySweepInterval

	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						if _, err := enqueuer.Enqueue(NewExpireTask(), asynq.Queue("low")); err != nil {
							zap.L().Error("failed to enqueue expiry sweep", zap.Error(err))
						}
						if _, err := enqueuer.Enqueue(order.NewExpireTask(), asynq.Queue("low")); err != nil {
							zap.L().Error("failed to enqueue order expiry sweep", zap.Error(err))
						}
					}
				}
			}()
			zap.L().Info("expiry scheduler started", zap.Duration("interval", interval))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(done)
			return nil
		},
	})
}
