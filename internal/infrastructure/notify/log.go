package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/careflow/approvals/internal/domain/ports"
)

// LogDispatcher writes every notification to the logger. It is the fallback
// channel when no external delivery is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

var _ ports.NotificationDispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n ports.Notification) error {
	d.logger.Info("notification",
		zap.String("type", n.Type.String()),
		zap.String("recipient_id", n.RecipientID),
		zap.String("request_id", n.RequestID),
		zap.Int("level", n.Level),
		zap.Strings("channels", n.Channels),
		zap.String("title", n.Title))
	return nil
}
