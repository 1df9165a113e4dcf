package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/progress"
)

// RunRepository persists run bookkeeping. The Postgres store implements it.
type RunRepository interface {
	StartRun(ctx context.Context, runID, command string, startedAt time.Time) error
	CompleteRun(
		ctx context.Context,
		runID string,
		finishedAt time.Time,
		status crawler.RunStatus,
		items int,
		errMsg *string,
	) error
}

// StoreSink writes run start and completion rows through a RunRepository.
type StoreSink struct {
	repo   RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for repo.
func NewStoreSink(repo RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run events to the repository and returns the first
// repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		runID := evt.RunUUID().String()
		switch evt.Kind {
		case progress.KindRunStart:
			if err := s.repo.StartRun(ctx, runID, evt.Command, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.KindRunDone:
			if err := s.repo.CompleteRun(ctx, runID, evt.TS, crawler.RunStatusSucceeded, evt.Items, nil); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		case progress.KindRunError:
			status := evt.Status
			if status == "" {
				status = crawler.RunStatusFailed
			}
			var note *string
			if evt.Note != "" {
				note = &evt.Note
			}
			if err := s.repo.CompleteRun(ctx, runID, evt.TS, status, evt.Items, note); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
