package job

import (
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
)

// DefaultPageSize is the number of records on a full leaderboard page.
const DefaultPageSize = 25

// PageSpan describes the rank range a page stage should cover.
type PageSpan struct {
	Account  hiscore.AccountType
	Category hiscore.Category
	// StartRank is the first wanted rank; values below 1 mean 1.
	StartRank int
	// EndRank is the last wanted rank; values <= 0 or >= MaxRank mean the
	// end of the leaderboard.
	EndRank  int
	MaxRank  int
	PageSize int
}

// Jobs builds one PageJob per consecutive page of the span. An empty span
// yields no jobs.
func (s PageSpan) Jobs() []*PageJob {
	size := s.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	startRank := s.StartRank
	if startRank < 1 {
		startRank = 1
	}
	endRank := s.EndRank
	if endRank <= 0 || endRank >= s.MaxRank {
		endRank = s.MaxRank
	}
	if s.MaxRank <= 0 || startRank > endRank {
		return nil
	}

	startPage := (startRank-1)/size + 1
	endPage := (endRank-1)/size + 1
	jobs := make([]*PageJob, 0, endPage-startPage+1)
	for page := startPage; page <= endPage; page++ {
		j := &PageJob{
			Page:      page,
			StartRank: (page-1)*size + 1,
			EndRank:   page * size,
			StartIdx:  0,
			EndIdx:    size,
			Account:   s.Account,
			Category:  s.Category,
		}
		if page == startPage {
			j.StartRank = startRank
			j.StartIdx = (startRank - 1) % size
		}
		if page == endPage {
			j.EndRank = endRank
			j.EndIdx = (endRank-1)%size + 1
		}
		jobs = append(jobs, j)
	}
	return jobs
}

// RankCount is the number of ranks a job list covers.
func RankCount(jobs []*PageJob) int {
	if len(jobs) == 0 {
		return 0
	}
	return jobs[len(jobs)-1].EndRank - jobs[0].StartRank + 1
}

// LookupJobsFromRecords builds one LookupJob per record, ordered by input
// position.
func LookupJobsFromRecords(records []hiscore.CategoryRecord, account hiscore.AccountType) []*LookupJob {
	jobs := make([]*LookupJob, 0, len(records))
	for i, r := range records {
		jobs = append(jobs, &LookupJob{
			Seq:      i,
			Rank:     r.Rank,
			Username: r.Username,
			Account:  account,
		})
	}
	return jobs
}
