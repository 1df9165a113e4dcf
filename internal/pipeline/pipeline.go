// Package pipeline assembles queues, cursors, workers and drains into the
// crawler's runs: scraping a rank range, filtering players, finding the last
// page, single lookups and category statistics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/dispatcher"
	"github.com/JakeFAU/hiscore-crawler/internal/finder"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/job"
	"github.com/JakeFAU/hiscore-crawler/internal/progress"
	"github.com/JakeFAU/hiscore-crawler/internal/queue/memory"
	"github.com/JakeFAU/hiscore-crawler/internal/retry"
	"github.com/JakeFAU/hiscore-crawler/internal/worker"
)

// Stage names used for metrics, logs and progress.
const (
	StagePages   = "pages"
	StageLookups = "lookups"
)

// Commands name the run kinds in progress events and summaries.
const (
	CommandScrape  = "scrape"
	CommandFilter  = "filter"
	CommandAnalyse = "analyse"
	CommandMaxPage = "max-page"
	CommandLookup  = "lookup"
)

// ErrUnrankedCategory is returned for categories without a leaderboard.
var ErrUnrankedCategory = errors.New("category has no leaderboard")

// Config sizes the stages of a run.
type Config struct {
	PageWorkers         int
	LookupWorkers       int
	LookupQueueCapacity int
	// Stagger delays worker i of a stage by i*Stagger.
	Stagger  time.Duration
	PageSize int
	MaxPages int
}

// RunIDs generates run identifiers.
type RunIDs interface {
	NewRunID() (uuid.UUID, error)
}

// Deps are the collaborators a Pipeline runs against.
type Deps struct {
	Pages    crawler.PageFetcher
	Users    crawler.UserFetcher
	Retrier  *retry.Retrier
	Progress progress.Emitter
	Clock    crawler.Clock
	IDs      RunIDs
	Logger   *zap.Logger
}

// Pipeline runs crawls against one set of collaborators.
type Pipeline struct {
	cfg    Config
	deps   Deps
	finder *finder.Finder
	logger *zap.Logger
}

// New constructs a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 1
	}
	if cfg.LookupWorkers <= 0 {
		cfg.LookupWorkers = 1
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = job.DefaultPageSize
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Progress == nil {
		deps.Progress = progress.Discard{}
	}
	if deps.Retrier == nil {
		deps.Retrier = retry.New(retry.Config{}, nil, nil, deps.Logger)
	}
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		finder: finder.New(deps.Pages, deps.Retrier, finder.Config{PageSize: cfg.PageSize, MaxPages: cfg.MaxPages}, deps.Logger),
		logger: deps.Logger,
	}
}

// Finder exposes the boundary searches the pipeline uses.
func (p *Pipeline) Finder() *finder.Finder {
	return p.finder
}

// Result describes a finished run.
type Result struct {
	RunID      string
	Command    string
	Status     crawler.RunStatus
	Items      int
	Ranks      finder.Range
	StartedAt  time.Time
	FinishedAt time.Time
}

// Summary converts r to the completion message published after a run.
func (r Result) Summary(account hiscore.AccountType, category string, err error) crawler.RunSummary {
	s := crawler.RunSummary{
		RunID:      r.RunID,
		Command:    r.Command,
		Account:    account.Name(),
		Category:   category,
		Status:     r.Status,
		Items:      r.Items,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if err != nil {
		s.ErrorText = err.Error()
	}
	return s
}

func (p *Pipeline) now() time.Time {
	if p.deps.Clock != nil {
		return p.deps.Clock.Now()
	}
	return time.Now().UTC()
}

// begin reports the start of a run, generating an id when id is zero.
func (p *Pipeline) begin(id uuid.UUID, command string) (*progress.Run, error) {
	if id == uuid.Nil {
		if p.deps.IDs == nil {
			id = uuid.New()
		} else {
			var err error
			if id, err = p.deps.IDs.NewRunID(); err != nil {
				return nil, fmt.Errorf("run id: %w", err)
			}
		}
	}
	return progress.StartRun(p.deps.Progress, p.deps.Clock, id, command), nil
}

// end reports the end of a run and fills in res.
func (p *Pipeline) end(run *progress.Run, res *Result, err error) {
	res.RunID = run.ID()
	res.StartedAt = run.StartedAt()
	res.Status = run.Finish(res.Items, err)
	res.FinishedAt = p.now()
	fields := []zap.Field{
		zap.String("run_id", res.RunID),
		zap.String("command", res.Command),
		zap.Int("items", res.Items),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	}
	if err != nil {
		p.logger.Error("run failed", append(fields, zap.Error(err))...)
		return
	}
	p.logger.Info("run finished", fields...)
}

// stageWorkers builds n workers over one stage queue.
func stageWorkers[T job.Job](
	p *Pipeline,
	n int,
	stage string,
	in *memory.Queue[T],
	manager *job.Manager,
	resolver worker.Resolver[T],
	emitter worker.Emitter[T],
) []dispatcher.Runner {
	runners := make([]dispatcher.Runner, 0, n)
	for i := 0; i < n; i++ {
		cfg := worker.Config{ID: i, Stage: stage, StartDelay: time.Duration(i) * p.cfg.Stagger}
		runners = append(runners, worker.New[T](cfg, in, manager, resolver, emitter, p.deps.Retrier, p.logger))
	}
	return runners
}

// pageStage loads jobs into a fresh queue and returns it with its cursor.
func pageStage(ctx context.Context, jobs []*job.PageJob) (*memory.Queue[*job.PageJob], *job.Manager, error) {
	q := memory.NewQueue[*job.PageJob](0)
	for _, j := range jobs {
		if err := q.Enqueue(ctx, j); err != nil {
			return nil, nil, fmt.Errorf("load page queue: %w", err)
		}
	}
	return q, job.NewManager(jobs[0].Page, jobs[len(jobs)-1].Page, true), nil
}

// span resolves the page jobs covering startRank..endRank of a leaderboard.
func (p *Pipeline) span(
	ctx context.Context,
	account hiscore.AccountType,
	category hiscore.Category,
	startRank, endRank int,
) ([]*job.PageJob, finder.MaxPage, error) {
	if !category.Ranked() {
		return nil, finder.MaxPage{}, fmt.Errorf("%s: %w", category, ErrUnrankedCategory)
	}
	maxPage, err := p.finder.FindMaxPage(ctx, account, category)
	if err != nil {
		return nil, finder.MaxPage{}, fmt.Errorf("find max page: %w", err)
	}
	jobs := job.PageSpan{
		Account:   account,
		Category:  category,
		StartRank: startRank,
		EndRank:   endRank,
		MaxRank:   maxPage.Rank,
		PageSize:  p.cfg.PageSize,
	}.Jobs()
	return jobs, maxPage, nil
}
