// Package notify is the push/SMS dispatch collaborator. The engine treats
// delivery as best-effort: failures are logged by the caller, never
// surfaced to API clients.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Notifier interface {
	Send(ctx context.Context, userID uuid.UUID, event, message string) error
}

// LogNotifier writes notifications to the log instead of a gateway.
// Deployments without an SMS/push provider run on this.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, userID uuid.UUID, event, message string) error {
	n.log.Info("notification",
		zap.String("user_id", userID.String()),
		zap.String("event", event),
		zap.String("message", message),
	)
	return nil
}
