package order

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// TypeExpireSweep is the background task that settles orders past their
// expiry with a pro-rata refund.
const TypeExpireSweep = "order:expire"

func NewExpireTask() *asynq.Task {
	return asynq.NewTask(TypeExpireSweep, nil)
}

// RegisterTaskHandlers wires the workflow's background tasks into the
// worker mux.
func RegisterTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(TypeExpireSweep, func(ctx context.Context, t *asynq.Task) error {
		_, err := svc.ExpireSweep(ctx, time.Now())
		return err
	})
}
