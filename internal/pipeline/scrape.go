package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/hiscore-crawler/internal/dispatcher"
	"github.com/JakeFAU/hiscore-crawler/internal/finder"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/job"
	"github.com/JakeFAU/hiscore-crawler/internal/sink"
	"github.com/JakeFAU/hiscore-crawler/internal/worker"
)

// RecordWriter persists the wanted records of one resolved page.
type RecordWriter interface {
	WriteRecords(ctx context.Context, page *job.PageJob) error
}

// ScrapeRequest selects a contiguous rank range of one leaderboard.
type ScrapeRequest struct {
	// RunID is generated when zero.
	RunID    uuid.UUID
	Account  hiscore.AccountType
	Category hiscore.Category
	// StartRank below 1 means 1; EndRank <= 0 means the end of the
	// leaderboard.
	StartRank int
	EndRank   int
}

// ScrapeRange fetches every page of the range and hands the pages to out in
// rank order. Missing pages are skipped.
func (p *Pipeline) ScrapeRange(ctx context.Context, req ScrapeRequest, out RecordWriter) (Result, error) {
	return p.scrape(ctx, CommandScrape, req, out)
}

func (p *Pipeline) scrape(ctx context.Context, command string, req ScrapeRequest, out RecordWriter) (res Result, err error) {
	res.Command = command
	run, err := p.begin(req.RunID, command)
	if err != nil {
		return res, err
	}
	defer func() { p.end(run, &res, err) }()

	jobs, _, err := p.span(ctx, req.Account, req.Category, req.StartRank, req.EndRank)
	if err != nil {
		return res, err
	}
	if len(jobs) == 0 {
		p.logger.Info("empty rank range, nothing to scrape")
		return res, nil
	}
	first, last := jobs[0], jobs[len(jobs)-1]
	res.Ranks = finder.Range{StartPage: first.Page, StartRank: first.StartRank, EndPage: last.Page, EndRank: last.EndRank}

	in, manager, err := pageStage(ctx, jobs)
	if err != nil {
		return res, err
	}
	pages := make(chan *job.PageJob, p.cfg.PageWorkers)

	g := dispatcher.NewGroup(ctx, p.logger)
	dispatcher.New(StagePages, in, stageWorkers[*job.PageJob](
		p, p.cfg.PageWorkers, StagePages, in, manager,
		worker.PageResolver{Fetcher: p.deps.Pages},
		worker.Forward[*job.PageJob]{Out: pages},
	)).Start(g)
	g.Go("pages progress", dispatcher.RunnerFunc(run.Watch(StagePages, manager)))
	g.Go("drain", dispatcher.RunnerFunc(func(ctx context.Context) error {
		return sink.Drain[job.PageJob](ctx, pages, len(jobs), func(ctx context.Context, page *job.PageJob) error {
			if err := out.WriteRecords(ctx, page); err != nil {
				return err
			}
			res.Items += len(page.Records())
			return nil
		})
	}))
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("scrape %s: %w", req.Category, err)
	}
	return res, nil
}
