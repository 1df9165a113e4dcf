// Package finder locates page boundaries on a leaderboard by binary search:
// the last page, and the pages holding the records that satisfy a filter.
package finder

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	"github.com/JakeFAU/hiscore-crawler/internal/retry"
)

// ErrNoRecords is returned when the leaderboard has no valid first page.
var ErrNoRecords = errors.New("leaderboard has no records")

const (
	defaultPageSize = 25
	defaultMaxPages = 80000
)

// Config bounds the search.
type Config struct {
	PageSize int
	MaxPages int
}

// MaxPage is the last page of a leaderboard and the rank of its last record.
type MaxPage struct {
	Page int `json:"max_page"`
	Rank int `json:"max_rank"`
}

// Range is an inclusive page and rank interval. The zero Range means no
// record matched.
type Range struct {
	StartPage int
	StartRank int
	EndPage   int
	EndRank   int
}

// Empty reports whether the range holds no records.
func (r Range) Empty() bool {
	return r == Range{}
}

// Intersect narrows r to the ranks it shares with o.
func (r Range) Intersect(o Range) Range {
	if r.Empty() || o.Empty() {
		return Range{}
	}
	out := r
	if o.StartRank > out.StartRank {
		out.StartPage, out.StartRank = o.StartPage, o.StartRank
	}
	if o.EndRank < out.EndRank {
		out.EndPage, out.EndRank = o.EndPage, o.EndRank
	}
	if out.StartRank > out.EndRank {
		return Range{}
	}
	return out
}

// Finder runs boundary searches against a PageFetcher.
type Finder struct {
	fetcher crawler.PageFetcher
	retrier *retry.Retrier
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Finder.
func New(fetcher crawler.PageFetcher, r *retry.Retrier, cfg Config, logger *zap.Logger) *Finder {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if r == nil {
		r = retry.New(retry.Config{}, nil, nil, logger)
	}
	return &Finder{fetcher: fetcher, retrier: r, cfg: cfg, logger: logger}
}

// FindMaxPage returns the largest page whose first record sits at the
// expected rank.
func (f *Finder) FindMaxPage(ctx context.Context, account hiscore.AccountType, category hiscore.Category) (MaxPage, error) {
	s := f.newSearch(account, category)
	return s.maxPage(ctx)
}

// FindFilteredRange returns the pages and exact ranks of the records that
// satisfy entry. Values must be sorted descending across the leaderboard.
func (f *Finder) FindFilteredRange(ctx context.Context, account hiscore.AccountType, entry hiscore.FilterEntry) (Range, error) {
	s := f.newSearch(account, entry.Category)
	s.entry = entry

	var startPage, endPage int
	switch entry.Comparator {
	case hiscore.Lt, hiscore.Le:
		start, err := s.bound(ctx, false)
		if err != nil || start == 0 {
			return Range{}, err
		}
		maxPage, err := s.maxPage(ctx)
		if err != nil {
			return Range{}, err
		}
		startPage, endPage = start, maxPage.Page
	case hiscore.Gt, hiscore.Ge:
		end, err := s.bound(ctx, true)
		if err != nil || end == 0 {
			return Range{}, err
		}
		startPage, endPage = 1, end
	case hiscore.Eq:
		start, err := s.bound(ctx, false)
		if err != nil || start == 0 {
			return Range{}, err
		}
		end, err := s.bound(ctx, true)
		if err != nil {
			return Range{}, err
		}
		startPage, endPage = start, end
	default:
		return Range{}, fmt.Errorf("unsupported comparator %s", entry.Comparator)
	}

	out := Range{StartPage: startPage, EndPage: endPage}
	first, err := s.page(ctx, startPage)
	if err != nil {
		return Range{}, err
	}
	for _, rec := range first {
		if s.match(rec) {
			out.StartRank = rec.Rank
			break
		}
	}
	last, err := s.page(ctx, endPage)
	if err != nil {
		return Range{}, err
	}
	for i := len(last) - 1; i >= 0; i-- {
		if s.match(last[i]) {
			out.EndRank = last[i].Rank
			break
		}
	}
	if out.StartRank == 0 || out.EndRank == 0 || out.StartRank > out.EndRank {
		return Range{}, nil
	}
	f.logger.Info("filtered range",
		zap.String("filter", entry.String()),
		zap.Int("start_page", out.StartPage),
		zap.Int("start_rank", out.StartRank),
		zap.Int("end_page", out.EndPage),
		zap.Int("end_rank", out.EndRank),
	)
	return out, nil
}

// search holds the state of one finder call. Pages are cached for the
// duration of the call.
type search struct {
	f        *Finder
	account  hiscore.AccountType
	category hiscore.Category
	entry    hiscore.FilterEntry
	cache    map[int][]hiscore.CategoryRecord
}

func (f *Finder) newSearch(account hiscore.AccountType, category hiscore.Category) *search {
	return &search{
		f:        f,
		account:  account,
		category: category,
		cache:    make(map[int][]hiscore.CategoryRecord),
	}
}

func (s *search) page(ctx context.Context, n int) ([]hiscore.CategoryRecord, error) {
	if recs, ok := s.cache[n]; ok {
		return recs, nil
	}
	req := crawler.PageRequest{Account: s.account, Category: s.category, Page: n}
	call := retry.Call{Name: "fetch_page", Args: []any{s.account, s.category.Name, n}}
	recs, err := retry.Do(ctx, s.f.retrier, call, func(ctx context.Context) ([]hiscore.CategoryRecord, error) {
		return s.f.fetcher.FetchPage(ctx, req)
	})
	if errors.Is(err, crawler.ErrNotFound) {
		recs, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("probe page %d: %w", n, err)
	}
	s.cache[n] = recs
	s.f.logger.Debug("probed page", zap.String("category", s.category.Name), zap.Int("page", n), zap.Int("records", len(recs)))
	return recs, nil
}

// valid reports whether recs is a real page n: non-empty and starting at the
// expected rank.
func (s *search) valid(n int, recs []hiscore.CategoryRecord) bool {
	return len(recs) > 0 && recs[0].Rank == (n-1)*s.f.cfg.PageSize+1
}

func (s *search) maxPage(ctx context.Context) (MaxPage, error) {
	l, r := 1, s.f.cfg.MaxPages
	var best MaxPage
	for l <= r {
		mid := l + (r-l)/2
		recs, err := s.page(ctx, mid)
		if err != nil {
			return MaxPage{}, err
		}
		if s.valid(mid, recs) {
			best = MaxPage{Page: mid, Rank: recs[len(recs)-1].Rank}
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	if best.Page == 0 {
		return MaxPage{}, fmt.Errorf("%s %s: %w", s.account, s.category.Name, ErrNoRecords)
	}
	return best, nil
}

func (s *search) match(rec hiscore.CategoryRecord) bool {
	return s.entry.Match(rec.Value(s.category))
}

// bound finds the first (or, right-biased, the last) page holding a
// matching record. Zero means no page matched.
func (s *search) bound(ctx context.Context, rightBiased bool) (int, error) {
	l, r := 1, s.f.cfg.MaxPages
	res := 0
	for l <= r {
		mid := l + (r-l)/2
		recs, err := s.page(ctx, mid)
		if err != nil {
			return 0, err
		}
		if !s.valid(mid, recs) {
			r = mid - 1
			continue
		}

		minValue := math.Inf(1)
		matched := false
		for _, rec := range recs {
			v := rec.Value(s.category)
			minValue = math.Min(minValue, v)
			if s.entry.Match(v) {
				matched = true
			}
		}

		switch {
		case matched:
			res = mid
			if rightBiased {
				l = mid + 1
			} else {
				r = mid - 1
			}
		case s.goRight(minValue):
			l = mid + 1
		default:
			r = mid - 1
		}
	}
	return res, nil
}

// goRight picks the direction away from a page with no matching record.
// Values fall as pages rise.
func (s *search) goRight(minValue float64) bool {
	switch s.entry.Comparator {
	case hiscore.Lt, hiscore.Le:
		return true
	case hiscore.Gt, hiscore.Ge:
		return false
	default:
		return minValue > s.entry.Threshold
	}
}
