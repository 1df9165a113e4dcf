package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/finder"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/retry"
)

// MaxPageReport is the output of the max-page command.
type MaxPageReport struct {
	finder.MaxPage
	Timestamp time.Time `json:"timestamp"`
}

// MaxPage finds the last page of a leaderboard.
func (p *Pipeline) MaxPage(ctx context.Context, account hiscore.AccountType, category hiscore.Category) (MaxPageReport, error) {
	if !category.Ranked() {
		return MaxPageReport{}, fmt.Errorf("%s: %w", category, ErrUnrankedCategory)
	}
	mp, err := p.finder.FindMaxPage(ctx, account, category)
	if err != nil {
		return MaxPageReport{}, fmt.Errorf("find max page: %w", err)
	}
	return MaxPageReport{MaxPage: mp, Timestamp: p.now()}, nil
}

// Lookup fetches one player's stat sheet.
func (p *Pipeline) Lookup(ctx context.Context, account hiscore.AccountType, username string) (*hiscore.PlayerRecord, error) {
	call := retry.Call{Name: "fetch_user", Args: []any{username, account}}
	rec, err := retry.Do(ctx, p.deps.Retrier, call, func(ctx context.Context) (*hiscore.PlayerRecord, error) {
		return p.deps.Users.FetchUser(ctx, crawler.UserRequest{Account: account, Username: username})
	})
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", username, err)
	}
	return rec, nil
}

// Analyse scrapes a rank range and summarises its scores.
func (p *Pipeline) Analyse(ctx context.Context, req ScrapeRequest) (hiscore.StatsSummary, Result, error) {
	stats := hiscore.NewCategoryStats(req.Category.Name, p.now())
	res, err := p.scrape(ctx, CommandAnalyse, req, StatsOutput{Stats: stats})
	if err != nil {
		return hiscore.StatsSummary{}, res, err
	}
	return stats.Summary(), res, nil
}
