// Package dispatcher runs the workers of one or more stages, plus the output
// drain, as a single fail-fast group.
package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hiscore-crawler/internal/job"
	"github.com/JakeFAU/hiscore-crawler/internal/queue/memory"
)

// Runner is anything the group can run until it finishes or fails.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Group runs tasks under a shared context. The first failure cancels the
// context so every sibling stops.
type Group struct {
	g      *errgroup.Group
	ctx    context.Context
	logger *zap.Logger
}

// NewGroup derives the group context from ctx.
func NewGroup(ctx context.Context, logger *zap.Logger) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	g, gctx := errgroup.WithContext(ctx)
	return &Group{g: g, ctx: gctx, logger: logger}
}

// Context returns the shared group context.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go starts r under the group.
func (g *Group) Go(name string, r Runner) {
	g.g.Go(func() error {
		if err := r.Run(g.ctx); err != nil {
			g.logger.Debug("task stopped", zap.String("task", name), zap.Error(err))
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

// Wait blocks until every task returned and reports the first failure.
func (g *Group) Wait() error {
	if err := g.g.Wait(); err != nil {
		return fmt.Errorf("group failed: %w", err)
	}
	return nil
}

// Dispatcher fans a stage queue out to a pool of workers.
type Dispatcher[T job.Job] struct {
	name    string
	queue   *memory.Queue[T]
	workers []Runner
}

// New creates a Dispatcher.
func New[T job.Job](name string, queue *memory.Queue[T], workers []Runner) *Dispatcher[T] {
	return &Dispatcher[T]{
		name:    name,
		queue:   queue,
		workers: workers,
	}
}

// Start runs every worker in g.
func (d *Dispatcher[T]) Start(g *Group) {
	for i, w := range d.workers {
		g.Go(fmt.Sprintf("%s worker %d", d.name, i), w)
	}
}

// Run starts all workers in a group of their own and blocks until they end.
func (d *Dispatcher[T]) Run(ctx context.Context) error {
	g := NewGroup(ctx, nil)
	d.Start(g)
	return g.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher[T]) Enqueue(ctx context.Context, item T) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// EnqueueAll enqueues items in order, stopping at the first failure.
func (d *Dispatcher[T]) EnqueueAll(ctx context.Context, items []T) error {
	for _, item := range items {
		if err := d.Enqueue(ctx, item); err != nil {
			return err
		}
	}
	return nil
}
