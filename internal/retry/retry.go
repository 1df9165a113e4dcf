// Package retry wraps remote calls with linear backoff and records calls
// that exhaust their attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/clock/system"
	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/metrics"
)

// ErrRetryFailed marks a call that failed on every attempt.
var ErrRetryFailed = errors.New("retry failed")

const defaultMaxRetries = 10

// ErrorSink receives one line per call that exhausted its retries.
type ErrorSink interface {
	Record(line string) error
}

// Config controls the attempt budget and the backoff step.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
}

// Call identifies the callable and its arguments for logs and the error sink.
type Call struct {
	Name string
	Args []any
}

// String renders the call as "arg1,arg2, name".
func (c Call) String() string {
	parts := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, ",") + ", " + c.Name
}

// FailedError is returned when a call exhausted its retries. It matches
// ErrRetryFailed, not the underlying error, whose text it carries.
type FailedError struct {
	Call     Call
	Attempts int
	Last     string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %s", e.Call.Name, e.Attempts, e.Last)
}

// Unwrap lets errors.Is match ErrRetryFailed.
func (e *FailedError) Unwrap() error {
	return ErrRetryFailed
}

// Retrier runs calls with linear backoff.
type Retrier struct {
	cfg    Config
	sink   ErrorSink
	pauser crawler.Pauser
	logger *zap.Logger
}

// New builds a Retrier. A nil pauser sleeps on a timer; a nil sink skips
// failure persistence.
func New(cfg Config, sink ErrorSink, pauser crawler.Pauser, logger *zap.Logger) *Retrier {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if pauser == nil {
		pauser = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{cfg: cfg, sink: sink, pauser: pauser, logger: logger}
}

// Do invokes fn until it succeeds, fails with crawler.ErrNotFound, ctx ends,
// or MaxRetries attempts failed. Attempt k is followed by a pause of
// k*InitialDelay.
func Do[T any](ctx context.Context, r *Retrier, call Call, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero T
		last error
	)
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, crawler.ErrNotFound) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s canceled: %w", call.Name, ctx.Err())
		}
		last = err
		r.logger.Warn("call failed",
			zap.String("call", call.Name),
			zap.String("args", call.String()),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.cfg.MaxRetries),
			zap.String("kind", crawler.ErrorKind(err)),
			zap.Error(err),
		)
		if attempt == r.cfg.MaxRetries {
			break
		}
		metrics.ObserveRetryAttempt(call.Name)
		if err := r.pauser.Pause(ctx, time.Duration(attempt)*r.cfg.InitialDelay); err != nil {
			return zero, fmt.Errorf("%s backoff: %w", call.Name, err)
		}
	}

	if r.sink != nil {
		if err := r.sink.Record(call.String()); err != nil {
			r.logger.Error("record failed call", zap.String("call", call.Name), zap.Error(err))
		}
	}
	metrics.ObserveRetryFailure(call.Name)
	r.logger.Error("call exhausted retries",
		zap.String("call", call.Name),
		zap.String("args", call.String()),
		zap.Int("attempts", r.cfg.MaxRetries),
		zap.Error(last),
	)
	return zero, &FailedError{Call: call, Attempts: r.cfg.MaxRetries, Last: last.Error()}
}

// Run is Do for calls that only report an error.
func (r *Retrier) Run(ctx context.Context, call Call, fn func(context.Context) error) error {
	_, err := Do(ctx, r, call, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
