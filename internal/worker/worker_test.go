package worker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/job"
	"github.com/JakeFAU/hiscore-crawler/internal/queue/memory"
	"github.com/JakeFAU/hiscore-crawler/internal/retry"
)

type noopPauser struct{}

func (noopPauser) Pause(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type fakeSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *fakeSink) Record(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

// fakePageFetcher serves full pages of pageSize ranks and sleeps a random
// amount per call.
type fakePageFetcher struct {
	mu       sync.Mutex
	rng      *rand.Rand
	missing  map[int]bool
	failing  map[int]bool
	maxDelay time.Duration
}

func (f *fakePageFetcher) FetchPage(ctx context.Context, req crawler.PageRequest) ([]hiscore.CategoryRecord, error) {
	f.mu.Lock()
	var delay time.Duration
	if f.maxDelay > 0 {
		delay = time.Duration(f.rng.Int63n(int64(f.maxDelay)))
	}
	missing := f.missing[req.Page]
	failing := f.failing[req.Page]
	f.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay):
	}
	if missing {
		return nil, crawler.ErrNotFound
	}
	if failing {
		return nil, crawler.ErrServerBusy
	}
	records := make([]hiscore.CategoryRecord, 0, job.DefaultPageSize)
	first := (req.Page-1)*job.DefaultPageSize + 1
	for i := 0; i < job.DefaultPageSize; i++ {
		records = append(records, hiscore.CategoryRecord{
			Rank:     first + i,
			Score:    int64(1_000_000 - first - i),
			Username: "player",
		})
	}
	return records, nil
}

func pageJobs(n int) []*job.PageJob {
	return job.PageSpan{
		Account:   hiscore.AccountRegular,
		Category:  hiscore.MustCategory("overall"),
		StartRank: 1,
		EndRank:   n * job.DefaultPageSize,
		MaxRank:   n * job.DefaultPageSize,
	}.Jobs()
}

func newRetrier(sink retry.ErrorSink, max int) *retry.Retrier {
	return retry.New(retry.Config{MaxRetries: max}, sink, noopPauser{}, zap.NewNop())
}

// runStage starts workers over jobs and collects everything sent to out
// until the stage ends.
func runStage(
	t *testing.T,
	ctx context.Context,
	jobs []*job.PageJob,
	workers int,
	fetcher crawler.PageFetcher,
	r *retry.Retrier,
) ([]*job.PageJob, *memory.Queue[*job.PageJob], error) {
	t.Helper()

	in := memory.NewQueue[*job.PageJob](0)
	for _, j := range jobs {
		require.NoError(t, in.Enqueue(ctx, j))
	}
	manager := job.NewManager(jobs[0].Page, jobs[len(jobs)-1].Page, true)
	out := make(chan *job.PageJob, len(jobs))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < workers; i++ {
		w := New[*job.PageJob](Config{ID: i, Stage: "test"}, in, manager, PageResolver{Fetcher: fetcher}, Forward[*job.PageJob]{Out: out}, r, zap.NewNop())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(out)

	var got []*job.PageJob
	for j := range out {
		got = append(got, j)
	}
	return got, in, errors.Join(errs...)
}

func TestWorkersReleaseInPriorityOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fetcher := &fakePageFetcher{rng: rand.New(rand.NewSource(7)), maxDelay: 5 * time.Millisecond}
	jobs := pageJobs(40)

	for _, workers := range []int{1, 4, 16} {
		got, _, err := runStage(t, ctx, pageJobs(40), workers, fetcher, newRetrier(&fakeSink{}, 3))
		require.NoError(t, err)
		require.Len(t, got, len(jobs))
		for i, j := range got {
			require.NotNil(t, j)
			require.Equal(t, i+1, j.Page, "workers=%d", workers)
			require.True(t, j.Resolved())
		}
	}
}

func TestWorkerSkipsNotFound(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fetcher := &fakePageFetcher{
		rng:     rand.New(rand.NewSource(1)),
		missing: map[int]bool{3: true},
	}
	sink := &fakeSink{}
	got, in, err := runStage(t, ctx, pageJobs(5), 3, fetcher, newRetrier(sink, 3))
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Nil(t, got[2])
	for _, i := range []int{0, 1, 3, 4} {
		require.Equal(t, i+1, got[i].Page)
	}
	require.Zero(t, in.Len())
	require.Empty(t, sink.lines)
}

func TestWorkerRequeuesOnRetryFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fetcher := &fakePageFetcher{
		rng:     rand.New(rand.NewSource(1)),
		failing: map[int]bool{1: true},
	}
	sink := &fakeSink{}
	jobs := pageJobs(1)
	got, in, err := runStage(t, ctx, jobs, 1, fetcher, newRetrier(sink, 2))
	require.ErrorIs(t, err, retry.ErrRetryFailed)
	require.Empty(t, got)
	require.Equal(t, 1, in.Len())
	head, err := in.Peek()
	require.NoError(t, err)
	require.Same(t, jobs[0], head)
	require.Len(t, sink.lines, 1)
}

func TestWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	in := memory.NewQueue[*job.PageJob](0)
	manager := job.NewManager(1, 10, true)
	w := New[*job.PageJob](Config{}, in, manager, PageResolver{}, Forward[*job.PageJob]{}, newRetrier(nil, 1), nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}

func TestWorkerExitsWhenStageFinishes(t *testing.T) {
	t.Parallel()

	in := memory.NewQueue[*job.PageJob](0)
	manager := job.NewManager(1, 1, true)
	w := New[*job.PageJob](Config{}, in, manager, PageResolver{}, Forward[*job.PageJob]{}, newRetrier(nil, 1), nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	manager.Next()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after the stage finished")
	}
}

func TestWorkerStartDelay(t *testing.T) {
	t.Parallel()

	in := memory.NewQueue[*job.PageJob](0)
	manager := job.NewManager(1, 1, true)
	w := New[*job.PageJob](Config{StartDelay: time.Hour}, in, manager, PageResolver{}, Forward[*job.PageJob]{}, newRetrier(nil, 1), nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	manager.Next()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("delayed worker did not exit after the stage finished")
	}
}
