package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/finder"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/pipeline"
	"github.com/JakeFAU/hiscore-crawler/internal/runner"
)

type mockApp struct {
	mock.Mock
}

func (m *mockApp) Logger() *zap.Logger { return zap.NewNop() }

func (m *mockApp) Execute(ctx context.Context, id uuid.UUID, req runner.Request) (crawler.RunSummary, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(crawler.RunSummary), args.Error(1)
}

func (m *mockApp) MaxPage(ctx context.Context, account, category string) (pipeline.MaxPageReport, error) {
	args := m.Called(ctx, account, category)
	return args.Get(0).(pipeline.MaxPageReport), args.Error(1)
}

func (m *mockApp) Lookup(ctx context.Context, account, username string) (*hiscore.PlayerRecord, error) {
	args := m.Called(ctx, account, username)
	rec, _ := args.Get(0).(*hiscore.PlayerRecord)
	return rec, args.Error(1)
}

func (m *mockApp) Serve(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockApp) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func run(t *testing.T, fake *mockApp, args ...string) (string, error) {
	t.Helper()
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, string) (App, error) { return fake, nil }

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := execute(context.Background(), root)
	return out.String(), err
}

func TestScrapeCommandBuildsRequest(t *testing.T) {
	fake := &mockApp{}
	want := runner.Request{
		Command:   pipeline.CommandScrape,
		Account:   "im",
		Category:  "zulrah",
		StartRank: 10,
		EndRank:   99,
		Output:    "out.jsonl",
	}
	fake.On("Execute", mock.Anything, uuid.Nil, want).Return(crawler.RunSummary{RunID: "r1", Items: 90}, nil).Once()
	fake.On("Close", mock.Anything).Return(nil).Once()

	_, err := run(t, fake, "scrape", "-c", "zulrah", "-a", "im", "--start-rank", "10", "--end-rank", "99", "-o", "out.jsonl")
	require.NoError(t, err)
	fake.AssertExpectations(t)
}

func TestFilterCommandPassesFiltersAndInput(t *testing.T) {
	fake := &mockApp{}
	fake.On("Execute", mock.Anything, uuid.Nil, mock.MatchedBy(func(req runner.Request) bool {
		return req.Command == pipeline.CommandFilter &&
			req.Input == "players.jsonl" &&
			assert.ObjectsAreEqual([]string{"attack<60", "zulrah>=100"}, req.Filters) &&
			req.Output == "-"
	})).Return(crawler.RunSummary{}, nil).Once()
	fake.On("Close", mock.Anything).Return(nil).Once()

	_, err := run(t, fake, "filter", "-i", "players.jsonl", "-f", "attack<60", "-f", "zulrah>=100")
	require.NoError(t, err)
	fake.AssertExpectations(t)
}

func TestFilterCommandNeedsCategoryOrInput(t *testing.T) {
	fake := &mockApp{}
	fake.On("Close", mock.Anything).Return(nil).Maybe()

	_, err := run(t, fake, "filter", "-f", "attack<60")
	require.Error(t, err)
	fake.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunErrorIsReturned(t *testing.T) {
	fake := &mockApp{}
	fake.On("Execute", mock.Anything, uuid.Nil, mock.Anything).Return(crawler.RunSummary{}, errors.New("boom")).Once()
	fake.On("Close", mock.Anything).Return(nil).Once()

	_, err := run(t, fake, "analyse", "-c", "overall")
	require.ErrorContains(t, err, "boom")
	fake.AssertExpectations(t)
}

func TestMaxPageCommandPrintsReport(t *testing.T) {
	fake := &mockApp{}
	fake.On("MaxPage", mock.Anything, "", "zulrah").
		Return(pipeline.MaxPageReport{MaxPage: finder.MaxPage{Page: 12, Rank: 290}}, nil).Once()
	fake.On("Close", mock.Anything).Return(nil).Once()

	out, err := run(t, fake, "max-page", "-c", "zulrah")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.EqualValues(t, 12, got["max_page"])
	assert.EqualValues(t, 290, got["max_rank"])
	fake.AssertExpectations(t)
}

func TestLookupCommandPrintsRecord(t *testing.T) {
	fake := &mockApp{}
	fake.On("Lookup", mock.Anything, "hc", "Zezima").
		Return(&hiscore.PlayerRecord{Rank: 7, Username: "Zezima"}, nil).Once()
	fake.On("Close", mock.Anything).Return(nil).Once()

	out, err := run(t, fake, "lookup", "Zezima", "-a", "hc")
	require.NoError(t, err)
	assert.Contains(t, out, "Zezima")
	fake.AssertExpectations(t)
}

func TestLookupCommandRequiresUsername(t *testing.T) {
	_, err := run(t, &mockApp{}, "lookup")
	require.Error(t, err)
}

func TestAppInitFailure(t *testing.T) {
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("no config") }

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"max-page", "-c", "zulrah"})
	err := execute(context.Background(), root)
	require.ErrorContains(t, err, "failed to initialize application services")
}
