package app_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/app"
	"github.com/JakeFAU/hiscore-crawler/internal/config"
	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/pipeline"
	memorypublisher "github.com/JakeFAU/hiscore-crawler/internal/publisher/memory"
	"github.com/JakeFAU/hiscore-crawler/internal/runner"
	"github.com/JakeFAU/hiscore-crawler/internal/sink"
)

const pageSize = 25

// board serves ranks 1..n of every leaderboard. Scores fall by 5 per rank
// and even ranks have 99 attack.
type board struct{ n int }

func (b board) FetchPage(ctx context.Context, req crawler.PageRequest) ([]hiscore.CategoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := (req.Page-1)*pageSize + 1
	if req.Page < 1 || start > b.n {
		return nil, nil
	}
	end := min(start+pageSize-1, b.n)
	out := make([]hiscore.CategoryRecord, 0, end-start+1)
	for r := start; r <= end; r++ {
		out = append(out, hiscore.CategoryRecord{Rank: r, Score: int64(1000 - 5*r), Username: fmt.Sprintf("player%d", r)})
	}
	return out, nil
}

func (b board) FetchUser(ctx context.Context, req crawler.UserRequest) (*hiscore.PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rank int
	if _, err := fmt.Sscanf(req.Username, "player%d", &rank); err != nil || rank > b.n {
		return nil, fmt.Errorf("user %s: %w", req.Username, crawler.ErrNotFound)
	}
	attack := 50
	if rank%2 == 0 {
		attack = 99
	}
	return &hiscore.PlayerRecord{
		Rank:     rank,
		Username: req.Username,
		Skills:   map[string]hiscore.SkillInfo{"attack": {Rank: rank, Level: attack}},
	}, nil
}

type fixture struct {
	app       *app.App
	cfg       config.Config
	publisher *memorypublisher.Publisher
}

func newFixture(t *testing.T, n int, opts ...func(*config.Config)) *fixture {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Crawler.PageWorkers = 2
	cfg.Crawler.LookupWorkers = 4
	cfg.Crawler.LookupQueueCapacity = 8
	cfg.Crawler.StaggerMs = 0
	cfg.Hiscores.MaxPages = 100
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Output.ErrorFile = filepath.Join(dir, "error_log")
	cfg.Storage.Backend = "local"
	cfg.Storage.BaseDir = filepath.Join(dir, "archive")
	cfg.DB.DSN = ""
	for _, opt := range opts {
		opt(&cfg)
	}

	pub := memorypublisher.New()
	a, err := app.BuildWith(context.Background(), cfg, app.Deps{
		Logger:    zap.NewNop(),
		Pages:     board{n: n},
		Users:     board{n: n},
		Publisher: pub,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return &fixture{app: a, cfg: cfg, publisher: pub}
}

func TestValidate(t *testing.T) {
	f := newFixture(t, 10)
	tests := []struct {
		name    string
		req     runner.Request
		wantErr bool
	}{
		{name: "scrape", req: runner.Request{Command: pipeline.CommandScrape, Category: "zulrah"}},
		{name: "filter scan", req: runner.Request{Command: pipeline.CommandFilter, Category: "attack", Filters: []string{"attack>=90"}}},
		{name: "filter input without category", req: runner.Request{Command: pipeline.CommandFilter, Input: "players.jsonl", Filters: []string{"attack>=90"}}},
		{name: "account type", req: runner.Request{Command: pipeline.CommandAnalyse, Category: "overall", Account: "im"}},
		{name: "unknown command", req: runner.Request{Command: "crawl", Category: "zulrah"}, wantErr: true},
		{name: "unknown category", req: runner.Request{Command: pipeline.CommandScrape, Category: "nope"}, wantErr: true},
		{name: "unranked category", req: runner.Request{Command: pipeline.CommandScrape, Category: "combat"}, wantErr: true},
		{name: "unknown account", req: runner.Request{Command: pipeline.CommandScrape, Category: "zulrah", Account: "nope"}, wantErr: true},
		{name: "reversed ranks", req: runner.Request{Command: pipeline.CommandScrape, Category: "zulrah", StartRank: 50, EndRank: 10}, wantErr: true},
		{name: "negative rank", req: runner.Request{Command: pipeline.CommandScrape, Category: "zulrah", StartRank: -1}, wantErr: true},
		{name: "bad filter", req: runner.Request{Command: pipeline.CommandFilter, Category: "attack", Filters: []string{"attack"}}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.app.Validate(tc.req)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestExecuteScrapeWritesArchivesAndPublishes(t *testing.T) {
	f := newFixture(t, 60)
	id := uuid.New()

	summary, err := f.app.Execute(context.Background(), id, runner.Request{
		Command:   pipeline.CommandScrape,
		Category:  "zulrah",
		StartRank: 5,
		EndRank:   34,
	})
	require.NoError(t, err)
	assert.Equal(t, id.String(), summary.RunID)
	assert.Equal(t, crawler.RunStatusSucceeded, summary.Status)
	assert.Equal(t, 30, summary.Items)
	assert.Equal(t, filepath.Join(f.cfg.Output.Dir, id.String()+".jsonl"), summary.Output)

	records, err := sink.ReadLinesFile[hiscore.CategoryRecord](summary.Output)
	require.NoError(t, err)
	require.Len(t, records, 30)
	for i, r := range records {
		assert.Equal(t, 5+i, r.Rank)
	}

	require.True(t, strings.HasPrefix(summary.ArchiveURI, "file://"), summary.ArchiveURI)
	archived, err := os.ReadFile(strings.TrimPrefix(summary.ArchiveURI, "file://"))
	require.NoError(t, err)
	original, err := os.ReadFile(summary.Output)
	require.NoError(t, err)
	assert.Equal(t, original, archived)
	assert.Len(t, summary.OutputSHA256, 64)

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, f.cfg.PubSub.TopicName, msgs[0].Topic)
	var published crawler.RunSummary
	require.NoError(t, msgs[0].Decode(&published))
	assert.Equal(t, id.String(), published.RunID)
	assert.Equal(t, 30, published.Items)
}

func TestExecuteFilterFromInputFile(t *testing.T) {
	f := newFixture(t, 60)
	input := filepath.Join(t.TempDir(), "players.jsonl")
	lines, err := sink.NewLines(input)
	require.NoError(t, err)
	for r := 1; r <= 10; r++ {
		require.NoError(t, lines.Write(context.Background(), hiscore.CategoryRecord{Rank: r, Username: fmt.Sprintf("player%d", r)}))
	}
	require.NoError(t, lines.Close())

	out := filepath.Join(t.TempDir(), "matches.jsonl")
	summary, err := f.app.Execute(context.Background(), uuid.New(), runner.Request{
		Command: pipeline.CommandFilter,
		Input:   input,
		Filters: []string{"attack>=90"},
		Output:  out,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Items)
	assert.Equal(t, out, summary.Output)

	matches, err := sink.ReadLinesFile[pipeline.PlayerLine](out)
	require.NoError(t, err)
	require.Len(t, matches, 5)
	for i, m := range matches {
		assert.Equal(t, 2*(i+1), m.Rank)
	}
}

func TestExecuteAnalyseWritesSummary(t *testing.T) {
	f := newFixture(t, 20)
	out := filepath.Join(t.TempDir(), "stats.jsonl")

	summary, err := f.app.Execute(context.Background(), uuid.New(), runner.Request{
		Command:  pipeline.CommandAnalyse,
		Category: "zulrah",
		Output:   out,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, summary.Items)

	stats, err := sink.ReadLinesFile[hiscore.StatsSummary](out)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "zulrah", stats[0].Name)
	assert.Equal(t, 20, stats[0].Count)
	assert.InDelta(t, 947.5, stats[0].Mean, 1e-9)
}

func TestExecuteRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t, 10)
	_, err := f.app.Execute(context.Background(), uuid.New(), runner.Request{Command: "crawl"})
	require.Error(t, err)
	assert.Empty(t, f.publisher.Messages())
}

func TestTrackerSeesFinishedRun(t *testing.T) {
	f := newFixture(t, 10)
	id := uuid.New()
	_, err := f.app.Execute(context.Background(), id, runner.Request{
		Command:  pipeline.CommandScrape,
		Category: "zulrah",
		Output:   filepath.Join(t.TempDir(), "out.jsonl"),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		run, ok := f.app.Tracker().Run(id.String())
		return ok && run.Status == crawler.RunStatusSucceeded && run.Items == 10
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMaxPageAndLookup(t *testing.T) {
	f := newFixture(t, 60)
	ctx := context.Background()

	report, err := f.app.MaxPage(ctx, "", "zulrah")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Page)
	assert.Equal(t, 60, report.Rank)

	_, err = f.app.MaxPage(ctx, "", "combat")
	require.ErrorIs(t, err, pipeline.ErrUnrankedCategory)

	rec, err := f.app.Lookup(ctx, "im", "player4")
	require.NoError(t, err)
	assert.Equal(t, 99, rec.Skills["attack"].Level)

	_, err = f.app.Lookup(ctx, "", "nobody")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestExecuteArchivesToMemoryBackend(t *testing.T) {
	f := newFixture(t, 10, func(c *config.Config) { c.Storage.Backend = "memory" })
	id := uuid.New()

	summary, err := f.app.Execute(context.Background(), id, runner.Request{
		Command:  pipeline.CommandScrape,
		Category: "overall",
	})
	require.NoError(t, err)
	assert.Equal(t, "memory://"+f.cfg.Storage.Prefix+"/"+id.String()+"/"+id.String()+".jsonl", summary.ArchiveURI)
}
