// Package audit carries security events out of the process: structured
// logs for operators, ClickHouse for analytics, NATS for downstream
// consumers. Every sink implements events.Observer and never blocks the
// bus; a slow or failing backend costs events, not verification latency.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/vineethsai/etdi-go/events"
)

// LogSink writes every event to a zap logger. It is the default sink for
// local development and the fallback when no analytics backend is
// configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink writing to logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) OnEvent(_ context.Context, e events.Event) {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("type", e.Type.String()),
		zap.String("category", e.Type.Category().String()),
		zap.String("severity", e.Severity.String()),
		zap.String("source", e.Source),
		zap.Time("timestamp", e.Timestamp),
	}
	if e.ThreatType != "" {
		fields = append(fields, zap.String("threat_type", e.ThreatType))
	}
	if len(e.Detail) > 0 {
		fields = append(fields, zap.Any("detail", e.Detail))
	}
	if e.Severity == events.SeverityHigh {
		s.logger.Warn("security_event", fields...)
		return
	}
	s.logger.Info("security_event", fields...)
}
