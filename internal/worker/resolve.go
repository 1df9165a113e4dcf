package worker

import (
	"context"
	"fmt"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/job"
	"github.com/JakeFAU/hiscore-crawler/internal/retry"
)

// PageResolver fetches leaderboard pages.
type PageResolver struct {
	Fetcher crawler.PageFetcher
}

// Call implements Resolver.
func (r PageResolver) Call(j *job.PageJob) retry.Call {
	return retry.Call{
		Name: "fetch_page",
		Args: []any{j.Account, j.Category.Name, j.Page},
	}
}

// Resolve implements Resolver.
func (r PageResolver) Resolve(ctx context.Context, j *job.PageJob) error {
	records, err := r.Fetcher.FetchPage(ctx, j.Request())
	if err != nil {
		return fmt.Errorf("fetch page %d: %w", j.Page, err)
	}
	j.SetResult(records)
	return nil
}

// LookupResolver fetches player stat sheets.
type LookupResolver struct {
	Fetcher crawler.UserFetcher
}

// Call implements Resolver.
func (r LookupResolver) Call(j *job.LookupJob) retry.Call {
	return retry.Call{
		Name: "fetch_user",
		Args: []any{j.Username, j.Account},
	}
}

// Resolve implements Resolver.
func (r LookupResolver) Resolve(ctx context.Context, j *job.LookupJob) error {
	rec, err := r.Fetcher.FetchUser(ctx, j.Request())
	if err != nil {
		return fmt.Errorf("fetch user %q: %w", j.Username, err)
	}
	if !j.SetResult(rec) {
		return fmt.Errorf("fetch user %q: empty record: %w", j.Username, crawler.ErrParsingFailed)
	}
	return nil
}
