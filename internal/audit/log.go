package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes audit events to the service log. It backs deployments
// without a kafka cluster.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Append(_ context.Context, event Event) error {
	s.logger.Info("audit",
		zap.Time("timestamp", event.Timestamp),
		zap.String("process_id", event.ProcessID),
		zap.String("identity_verification_id", event.IdentityVerificationID),
		zap.String("user_id", event.UserID),
		zap.String("entity", event.Entity),
		zap.String("action", event.Action),
		zap.String("detail", event.Detail))
	return nil
}
