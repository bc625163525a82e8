package order

import (
	"context"

	"go.uber.org/zap"
)

// Notification kinds emitted by the workflow.
const (
	NotifyOrderAwaitingApproval = "order.awaiting_approval"
	NotifyOrderApproved         = "order.approved"
	NotifyOrderRejected         = "order.rejected"
	NotifyOrderCancelled        = "order.cancelled"
	NotifyOrderCompleted        = "order.completed"
)

// Notifier delivers workflow events to an external sink. Delivery is
// fire-and-forget: a failure never rolls back the transition that
// triggered it.
type Notifier interface {
	Notify(ctx context.Context, recipientID, kind string, payload map[string]any) error
}

func notify(ctx context.Context, n Notifier, recipientID, kind string, payload map[string]any) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, recipientID, kind, payload); err != nil {
		zap.L().Warn("notification delivery failed",
			zap.String("recipient_id", recipientID),
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}
