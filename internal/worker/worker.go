// Package worker implements the stage execution loop: acquire a job, resolve
// it remotely, wait for its turn, hand it on, advance the cursor.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/job"
	"github.com/JakeFAU/hiscore-crawler/internal/metrics"
	"github.com/JakeFAU/hiscore-crawler/internal/queue/memory"
	"github.com/JakeFAU/hiscore-crawler/internal/retry"
)

// Release outcomes reported to metrics.
const (
	outcomeEmitted = "emitted"
	outcomeSkipped = "skipped"
)

// Resolver performs the remote call for a job and assigns its result.
type Resolver[T job.Job] interface {
	// Call identifies the remote call for logs and the error sink.
	Call(j T) retry.Call
	// Resolve fetches and assigns the job's result.
	Resolve(ctx context.Context, j T) error
}

// Emitter hands a sequenced job to whatever consumes the stage.
type Emitter[T job.Job] interface {
	// Emit releases a resolved job.
	Emit(ctx context.Context, j T) error
	// Skip releases a job whose entity does not exist.
	Skip(ctx context.Context, j T) error
}

// Config controls Worker behavior.
type Config struct {
	ID    int
	Stage string
	// StartDelay staggers the worker's first dequeue.
	StartDelay time.Duration
}

// Worker consumes one stage queue and releases jobs in priority order.
type Worker[T job.Job] struct {
	cfg      Config
	in       *memory.Queue[T]
	manager  *job.Manager
	resolver Resolver[T]
	emitter  Emitter[T]
	retrier  *retry.Retrier
	logger   *zap.Logger
}

// New constructs a Worker.
func New[T job.Job](
	cfg Config,
	in *memory.Queue[T],
	manager *job.Manager,
	resolver Resolver[T],
	emitter Emitter[T],
	retrier *retry.Retrier,
	logger *zap.Logger,
) *Worker[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stage == "" {
		cfg.Stage = "default"
	}
	return &Worker[T]{
		cfg:      cfg,
		in:       in,
		manager:  manager,
		resolver: resolver,
		emitter:  emitter,
		retrier:  retrier,
		logger:   logger.With(zap.String("stage", cfg.Stage), zap.Int("worker", cfg.ID)),
	}
}

// Run blocks until the stage cursor finishes or a job fails terminally. A
// failed job is put back on the input queue before the error is returned.
func (w *Worker[T]) Run(ctx context.Context) error {
	metrics.IncActiveWorkers(w.cfg.Stage)
	defer metrics.DecActiveWorkers(w.cfg.Stage)

	if w.cfg.StartDelay > 0 {
		timer := time.NewTimer(w.cfg.StartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("worker %d start: %w", w.cfg.ID, ctx.Err())
		case <-w.manager.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	for !w.manager.IsFinished() {
		j, ok, err := w.acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := w.process(ctx, j); err != nil {
			w.in.ForceEnqueue(j)
			w.logger.Error("job failed",
				zap.Int("priority", j.Priority()),
				zap.String("kind", crawler.ErrorKind(err)),
				zap.Error(err),
			)
			return err
		}
	}
	w.logger.Debug("stage finished", zap.Int("cursor", w.manager.Value()))
	return nil
}

// acquire dequeues the next job, giving up cleanly when the stage finishes
// first.
func (w *Worker[T]) acquire(ctx context.Context) (T, bool, error) {
	var zero T
	getCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.manager.Done():
			cancel()
		case <-getCtx.Done():
		}
	}()

	j, err := w.in.Dequeue(getCtx)
	if err != nil {
		if ctx.Err() != nil {
			return zero, false, fmt.Errorf("worker %d acquire: %w", w.cfg.ID, ctx.Err())
		}
		if w.manager.IsFinished() {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("worker %d acquire: %w", w.cfg.ID, err)
	}
	if w.manager.IsFinished() {
		w.in.ForceEnqueue(j)
		return zero, false, nil
	}
	metrics.SetQueueDepth(w.cfg.Stage, w.in.Len())
	return j, true, nil
}

func (w *Worker[T]) process(ctx context.Context, j T) error {
	priority := j.Priority()
	if !j.Resolved() {
		err := w.retrier.Run(ctx, w.resolver.Call(j), func(ctx context.Context) error {
			return w.resolver.Resolve(ctx, j)
		})
		if errors.Is(err, crawler.ErrNotFound) {
			w.logger.Info("job not found, skipping", zap.Int("priority", priority))
			return w.release(ctx, j, outcomeSkipped, w.emitter.Skip)
		}
		if err != nil {
			return fmt.Errorf("resolve %d: %w", priority, err)
		}
	}
	return w.release(ctx, j, outcomeEmitted, w.emitter.Emit)
}

// release waits for the job's turn, hands it on and advances the cursor.
func (w *Worker[T]) release(ctx context.Context, j T, outcome string, hand func(context.Context, T) error) error {
	priority := j.Priority()
	if err := w.manager.AwaitTurn(ctx, priority); err != nil {
		return err
	}
	if err := hand(ctx, j); err != nil {
		return fmt.Errorf("%s %d: %w", outcome, priority, err)
	}
	w.manager.Next()
	metrics.ObserveStageRelease(w.cfg.Stage, outcome)
	metrics.SetStageCursor(w.cfg.Stage, w.manager.Value())
	w.logger.Debug("released job", zap.Int("priority", priority), zap.String("outcome", outcome))
	return nil
}
