package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/job"
	"github.com/JakeFAU/hiscore-crawler/internal/queue/memory"
)

// ErrPriorityGap is returned when a page's ranks would leave a hole in the
// next stage's priorities.
var ErrPriorityGap = errors.New("priority gap")

// Forward sends each job itself to Out. Skipped jobs are sent as the zero
// value so a counting consumer still sees one item per priority.
type Forward[T job.Job] struct {
	Out chan<- T
}

// Emit implements Emitter.
func (f Forward[T]) Emit(ctx context.Context, j T) error {
	return send(ctx, f.Out, j)
}

// Skip implements Emitter.
func (f Forward[T]) Skip(ctx context.Context, _ T) error {
	var zero T
	return send(ctx, f.Out, zero)
}

// Expand turns every wanted record of a page into a LookupJob on Out. The
// records must cover StartRank..EndRank exactly.
type Expand struct {
	Out *memory.Queue[*job.LookupJob]
}

// Emit implements Emitter.
func (e Expand) Emit(ctx context.Context, j *job.PageJob) error {
	records := j.Records()
	if want := j.EndRank - j.StartRank + 1; len(records) != want {
		return fmt.Errorf("page %d has %d of %d ranks: %w", j.Page, len(records), want, ErrPriorityGap)
	}
	for i, rec := range records {
		if rec.Rank != j.StartRank+i {
			return fmt.Errorf("page %d rank %d, want %d: %w", j.Page, rec.Rank, j.StartRank+i, ErrPriorityGap)
		}
	}
	for _, rec := range records {
		lj := &job.LookupJob{
			Seq:      rec.Rank,
			Rank:     rec.Rank,
			Username: rec.Username,
			Account:  j.Account,
		}
		if err := e.Out.Enqueue(ctx, lj); err != nil {
			return fmt.Errorf("expand page %d: %w", j.Page, err)
		}
	}
	return nil
}

// Skip implements Emitter. A missing page cannot be expanded without leaving
// a hole in the lookup stage.
func (e Expand) Skip(_ context.Context, j *job.PageJob) error {
	return fmt.Errorf("page %d not found: %w", j.Page, ErrPriorityGap)
}

// FilterForward sends a lookup job when its player meets every filter and
// nil otherwise.
type FilterForward struct {
	Out     chan<- *job.LookupJob
	Filters []hiscore.FilterEntry
}

// Emit implements Emitter.
func (f FilterForward) Emit(ctx context.Context, j *job.LookupJob) error {
	if rec := j.Result(); rec != nil && rec.Meets(f.Filters) {
		return send(ctx, f.Out, j)
	}
	return send[*job.LookupJob](ctx, f.Out, nil)
}

// Skip implements Emitter.
func (f FilterForward) Skip(ctx context.Context, _ *job.LookupJob) error {
	return send[*job.LookupJob](ctx, f.Out, nil)
}

func send[T any](ctx context.Context, out chan<- T, v T) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("emit canceled: %w", ctx.Err())
	case out <- v:
		return nil
	}
}
