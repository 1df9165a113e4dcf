// Package runner queues run requests submitted over the API and executes a
// bounded number of them at a time.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/dispatcher"
	"github.com/JakeFAU/hiscore-crawler/internal/queue/memory"
)

var (
	// ErrUnknownRun is returned for run ids that are neither queued nor running.
	ErrUnknownRun = errors.New("unknown run")
	// ErrStopped is returned by Submit once Run has returned.
	ErrStopped = errors.New("runner stopped")
)

// Request describes one run.
type Request struct {
	Command   string   `json:"command"`
	Account   string   `json:"account_type,omitempty"`
	Category  string   `json:"category"`
	StartRank int      `json:"start_rank,omitempty"`
	EndRank   int      `json:"end_rank,omitempty"`
	Filters   []string `json:"filters,omitempty"`
	// Input is a JSON-lines file of leaderboard records to filter instead
	// of scanning the leaderboard.
	Input string `json:"input,omitempty"`
	// Output is the file written to; empty picks a path per run.
	Output string `json:"output,omitempty"`
}

// Executor validates and executes requests.
type Executor interface {
	Validate(req Request) error
	Execute(ctx context.Context, id uuid.UUID, req Request) (crawler.RunSummary, error)
}

// RunIDs generates run identifiers.
type RunIDs interface {
	NewRunID() (uuid.UUID, error)
}

// Config sizes the runner.
type Config struct {
	// Concurrency is the number of runs executed at once.
	Concurrency int
	// MaxQueued bounds the pending runs; <= 0 means unbounded.
	MaxQueued int
}

type pending struct {
	seq int
	id  uuid.UUID
	req Request
}

func (p *pending) Priority() int { return p.seq }

// Runner executes submitted requests in submission order.
type Runner struct {
	cfg    Config
	exec   Executor
	ids    RunIDs
	queue  *memory.Queue[*pending]
	logger *zap.Logger

	// submitMu orders id assignment and enqueue across concurrent Submits.
	submitMu sync.Mutex

	mu       sync.Mutex
	seq      int
	queued   map[string]struct{}
	canceled map[string]struct{}
	running  map[string]context.CancelFunc
	stopped  bool
}

// New constructs a Runner.
func New(cfg Config, exec Executor, ids RunIDs, logger *zap.Logger) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		exec:     exec,
		ids:      ids,
		queue:    memory.NewQueue[*pending](cfg.MaxQueued),
		logger:   logger,
		queued:   make(map[string]struct{}),
		canceled: make(map[string]struct{}),
		running:  make(map[string]context.CancelFunc),
	}
}

// Submit validates req and queues it. It blocks while the queue is full;
// concurrent submissions are queued one at a time in the order they take the
// submission lock.
func (r *Runner) Submit(ctx context.Context, req Request) (string, error) {
	if err := r.exec.Validate(req); err != nil {
		return "", err
	}
	r.submitMu.Lock()
	defer r.submitMu.Unlock()

	id, err := r.ids.NewRunID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return "", ErrStopped
	}
	r.seq++
	item := &pending{seq: r.seq, id: id, req: req}
	r.queued[id.String()] = struct{}{}
	r.mu.Unlock()

	if err := r.queue.Enqueue(ctx, item); err != nil {
		r.mu.Lock()
		delete(r.queued, id.String())
		r.mu.Unlock()
		return "", fmt.Errorf("queue run: %w", err)
	}
	r.logger.Info("run queued",
		zap.String("run_id", id.String()),
		zap.String("command", req.Command),
		zap.Int("queued", r.queue.Len()),
	)
	return id.String(), nil
}

// Queued reports whether id is waiting for a slot.
func (r *Runner) Queued(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.queued[id]
	return ok
}

// Cancel stops a running run or drops a queued one.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.running[id]; ok {
		cancel()
		return nil
	}
	if _, ok := r.queued[id]; ok {
		delete(r.queued, id)
		r.canceled[id] = struct{}{}
		return nil
	}
	return ErrUnknownRun
}

// Run executes queued requests until ctx ends. Runs in flight are canceled
// with ctx.
func (r *Runner) Run(ctx context.Context) error {
	g := dispatcher.NewGroup(ctx, r.logger)
	for i := 0; i < r.cfg.Concurrency; i++ {
		g.Go(fmt.Sprintf("runner %d", i), dispatcher.RunnerFunc(r.loop))
	}
	err := g.Wait()

	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.queue.Close()
	return err
}

func (r *Runner) loop(ctx context.Context) error {
	for {
		item, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrQueueClosed) {
				return nil
			}
			return err
		}
		r.execute(ctx, item)
	}
}

func (r *Runner) execute(ctx context.Context, item *pending) {
	id := item.id.String()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	delete(r.queued, id)
	if _, ok := r.canceled[id]; ok {
		delete(r.canceled, id)
		r.mu.Unlock()
		r.logger.Info("skipping canceled run", zap.String("run_id", id))
		return
	}
	r.running[id] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.running, id)
		r.mu.Unlock()
	}()

	summary, err := r.exec.Execute(runCtx, item.id, item.req)
	if err != nil {
		r.logger.Warn("run ended with error",
			zap.String("run_id", id),
			zap.String("status", string(summary.Status)),
			zap.Error(err),
		)
		return
	}
	r.logger.Info("run completed",
		zap.String("run_id", id),
		zap.Int("items", summary.Items),
		zap.String("output", summary.Output),
	)
}
