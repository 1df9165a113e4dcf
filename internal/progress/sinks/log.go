package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/progress"
)

// LogSink writes run milestones to a zap logger. Stage cursor moves are
// logged at debug level only.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("kind", string(evt.Kind)),
		}
		switch evt.Kind {
		case progress.KindRunStart:
			s.logger.Info("run started", append(fields, zap.String("command", evt.Command))...)
		case progress.KindRunDone:
			s.logger.Info("run finished", append(fields, zap.Int("items", evt.Items), zap.Duration("dur", evt.Dur))...)
		case progress.KindRunError:
			s.logger.Warn("run failed", append(fields,
				zap.String("status", string(evt.Status)),
				zap.Int("items", evt.Items),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)...)
		case progress.KindStageDone:
			s.logger.Info("stage finished", append(fields, zap.String("stage", evt.Stage), zap.Int("cursor", evt.Cursor))...)
		default:
			s.logger.Debug("stage cursor", append(fields,
				zap.String("stage", evt.Stage),
				zap.Int("cursor", evt.Cursor),
				zap.Int("end", evt.End),
			)...)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
