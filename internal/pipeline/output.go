package pipeline

import (
	"context"
	"time"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/job"
	"github.com/JakeFAU/hiscore-crawler/internal/sink"
)

// PlayerLine is the output line of a filter run.
type PlayerLine struct {
	Rank   int                   `json:"rank"`
	Record *hiscore.PlayerRecord `json:"record"`
}

// LinesOutput writes records and players as JSON lines.
type LinesOutput struct {
	Lines *sink.Lines
}

// WriteRecords writes one line per wanted record of the page.
func (o LinesOutput) WriteRecords(ctx context.Context, page *job.PageJob) error {
	for _, rec := range page.Records() {
		if err := o.Lines.Write(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// WritePlayer writes one PlayerLine.
func (o LinesOutput) WritePlayer(ctx context.Context, j *job.LookupJob) error {
	return o.Lines.Write(ctx, PlayerLine{Rank: j.Rank, Record: j.Result()})
}

// RecordStore persists leaderboard rows and players of a run.
type RecordStore interface {
	StoreRecords(
		ctx context.Context,
		runID string,
		account hiscore.AccountType,
		category hiscore.Category,
		records []hiscore.CategoryRecord,
		scrapedAt time.Time,
	) error
	StorePlayer(ctx context.Context, runID string, account hiscore.AccountType, rec *hiscore.PlayerRecord) error
}

// StoreOutput writes records and players to a RecordStore under one run.
type StoreOutput struct {
	Store RecordStore
	RunID string
	Clock crawler.Clock
}

// WriteRecords stores the wanted records of the page.
func (o StoreOutput) WriteRecords(ctx context.Context, page *job.PageJob) error {
	return o.Store.StoreRecords(ctx, o.RunID, page.Account, page.Category, page.Records(), o.now())
}

// WritePlayer stores the looked-up player.
func (o StoreOutput) WritePlayer(ctx context.Context, j *job.LookupJob) error {
	return o.Store.StorePlayer(ctx, o.RunID, j.Account, j.Result())
}

func (o StoreOutput) now() time.Time {
	if o.Clock != nil {
		return o.Clock.Now()
	}
	return time.Now().UTC()
}

// StatsOutput aggregates records into category statistics.
type StatsOutput struct {
	Stats *hiscore.CategoryStats
}

// WriteRecords adds the wanted records of the page. Pages reach the drain
// one at a time.
func (o StatsOutput) WriteRecords(_ context.Context, page *job.PageJob) error {
	for _, rec := range page.Records() {
		o.Stats.Add(rec)
	}
	return nil
}
