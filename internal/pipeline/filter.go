package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/hiscore-crawler/internal/dispatcher"
	"github.com/JakeFAU/hiscore-crawler/internal/finder"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/job"
	"github.com/JakeFAU/hiscore-crawler/internal/progress"
	"github.com/JakeFAU/hiscore-crawler/internal/queue/memory"
	"github.com/JakeFAU/hiscore-crawler/internal/sink"
	"github.com/JakeFAU/hiscore-crawler/internal/worker"
)

// PlayerWriter persists one player that met every filter.
type PlayerWriter interface {
	WritePlayer(ctx context.Context, j *job.LookupJob) error
}

// FilterRequest selects the players to look up and the filters they must
// meet.
type FilterRequest struct {
	RunID    uuid.UUID
	Account  hiscore.AccountType
	Category hiscore.Category
	Filters  []hiscore.FilterEntry
	// StartRank skips the leaderboard above it.
	StartRank int
	// Input, when set, replaces the leaderboard scan: every record is looked
	// up in input order.
	Input []hiscore.CategoryRecord
}

// FilterPlayers looks up the players of a leaderboard, or of req.Input, and
// hands the ones meeting every filter to out in rank order.
func (p *Pipeline) FilterPlayers(ctx context.Context, req FilterRequest, out PlayerWriter) (res Result, err error) {
	res.Command = CommandFilter
	run, err := p.begin(req.RunID, CommandFilter)
	if err != nil {
		return res, err
	}
	defer func() { p.end(run, &res, err) }()

	var lookups *lookupStage
	if req.Input != nil {
		lookups, err = p.inputStage(ctx, req)
	} else {
		lookups, err = p.scanStage(ctx, req, &res)
	}
	if err != nil || lookups == nil {
		return res, err
	}

	g := dispatcher.NewGroup(ctx, p.logger)
	if lookups.feed != nil {
		lookups.feed(g, run)
	}
	players := make(chan *job.LookupJob, p.cfg.LookupWorkers)
	dispatcher.New(StageLookups, lookups.queue, stageWorkers[*job.LookupJob](
		p, p.cfg.LookupWorkers, StageLookups, lookups.queue, lookups.manager,
		worker.LookupResolver{Fetcher: p.deps.Users},
		worker.FilterForward{Out: players, Filters: req.Filters},
	)).Start(g)
	g.Go("lookups progress", dispatcher.RunnerFunc(run.Watch(StageLookups, lookups.manager)))
	g.Go("drain", dispatcher.RunnerFunc(func(ctx context.Context) error {
		return sink.Drain[job.LookupJob](ctx, players, lookups.total, func(ctx context.Context, j *job.LookupJob) error {
			if err := out.WritePlayer(ctx, j); err != nil {
				return err
			}
			res.Items++
			return nil
		})
	}))
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("filter %s: %w", req.Category, err)
	}
	return res, nil
}

type lookupStage struct {
	queue   *memory.Queue[*job.LookupJob]
	manager *job.Manager
	total   int
	// feed starts the stage filling queue, nil when the queue is preloaded.
	feed func(g *dispatcher.Group, run *progress.Run)
}

// inputStage queues one lookup per input record, ordered by input position.
func (p *Pipeline) inputStage(ctx context.Context, req FilterRequest) (*lookupStage, error) {
	jobs := job.LookupJobsFromRecords(req.Input, req.Account)
	if len(jobs) == 0 {
		p.logger.Info("empty input, nothing to look up")
		return nil, nil
	}
	q := memory.NewQueue[*job.LookupJob](0)
	for _, j := range jobs {
		if err := q.Enqueue(ctx, j); err != nil {
			return nil, fmt.Errorf("load lookup queue: %w", err)
		}
	}
	first, err := q.Peek()
	if err != nil {
		return nil, err
	}
	last, err := q.Last()
	if err != nil {
		return nil, err
	}
	return &lookupStage{
		queue:   q,
		manager: job.NewManager(first.Priority(), last.Priority(), true),
		total:   len(jobs),
	}, nil
}

// scanStage narrows the leaderboard to the ranks the filters on the scanned
// category allow and prepares the page stage that feeds the lookup queue.
func (p *Pipeline) scanStage(ctx context.Context, req FilterRequest, res *Result) (*lookupStage, error) {
	if !req.Category.Ranked() {
		return nil, fmt.Errorf("%s: %w", req.Category, ErrUnrankedCategory)
	}
	maxPage, err := p.finder.FindMaxPage(ctx, req.Account, req.Category)
	if err != nil {
		return nil, fmt.Errorf("find max page: %w", err)
	}
	rng := finder.Range{StartPage: 1, StartRank: 1, EndPage: maxPage.Page, EndRank: maxPage.Rank}
	for _, f := range req.Filters {
		if f.Category != req.Category {
			continue
		}
		fr, err := p.finder.FindFilteredRange(ctx, req.Account, f)
		if err != nil {
			return nil, fmt.Errorf("find range of %s: %w", f, err)
		}
		rng = rng.Intersect(fr)
	}
	res.Ranks = rng
	if rng.Empty() {
		p.logger.Info("no ranks satisfy the filters")
		return nil, nil
	}

	startRank := rng.StartRank
	if req.StartRank > startRank {
		startRank = req.StartRank
	}
	jobs := job.PageSpan{
		Account:   req.Account,
		Category:  req.Category,
		StartRank: startRank,
		EndRank:   rng.EndRank,
		MaxRank:   maxPage.Rank,
		PageSize:  p.cfg.PageSize,
	}.Jobs()
	if len(jobs) == 0 {
		p.logger.Info("start rank past the filtered range")
		return nil, nil
	}
	first, last := jobs[0], jobs[len(jobs)-1]

	pages, pageManager, err := pageStage(ctx, jobs)
	if err != nil {
		return nil, err
	}
	lookups := &lookupStage{
		queue:   memory.NewQueue[*job.LookupJob](p.cfg.LookupQueueCapacity),
		manager: job.NewManager(first.StartRank, last.EndRank, true),
		total:   job.RankCount(jobs),
	}
	lookups.feed = func(g *dispatcher.Group, run *progress.Run) {
		dispatcher.New(StagePages, pages, stageWorkers[*job.PageJob](
			p, p.cfg.PageWorkers, StagePages, pages, pageManager,
			worker.PageResolver{Fetcher: p.deps.Pages},
			worker.Expand{Out: lookups.queue},
		)).Start(g)
		g.Go("pages progress", dispatcher.RunnerFunc(run.Watch(StagePages, pageManager)))
	}
	return lookups, nil
}
