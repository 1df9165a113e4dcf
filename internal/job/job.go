// Package job defines the two job shapes the pipelines move around, the
// JobManager release cursor that sequences them, and the builders that turn
// a rank range into a contiguous job list.
package job

import (
	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
)

// Job is the shared capability of everything a worker can process.
type Job interface {
	// Priority is the ordering key; unique within a stage.
	Priority() int
	// Resolved reports whether the remote result has been assigned.
	Resolved() bool
}

// PageJob fetches one leaderboard page. StartIdx/EndIdx slice the page to the
// ranks actually wanted, which differs from the full page only on the first
// and last page of a range.
type PageJob struct {
	Page      int
	StartRank int
	EndRank   int
	StartIdx  int
	EndIdx    int
	Account   hiscore.AccountType
	Category  hiscore.Category

	result   []hiscore.CategoryRecord
	resolved bool
}

// Priority implements Job.
func (j *PageJob) Priority() int { return j.Page }

// Resolved implements Job.
func (j *PageJob) Resolved() bool { return j.resolved }

// SetResult assigns the fetched page once; later calls are ignored.
func (j *PageJob) SetResult(records []hiscore.CategoryRecord) bool {
	if j.resolved {
		return false
	}
	j.result = records
	j.resolved = true
	return true
}

// Result returns the full fetched page.
func (j *PageJob) Result() []hiscore.CategoryRecord { return j.result }

// Records returns the wanted slice of the fetched page.
func (j *PageJob) Records() []hiscore.CategoryRecord {
	start, end := j.StartIdx, j.EndIdx
	if end > len(j.result) {
		end = len(j.result)
	}
	if start > end {
		start = end
	}
	return j.result[start:end]
}

// Request returns the collaborator request for this page.
func (j *PageJob) Request() crawler.PageRequest {
	return crawler.PageRequest{Account: j.Account, Category: j.Category, Page: j.Page}
}

// LookupJob fetches one player's stat sheet.
type LookupJob struct {
	// Seq is the ordering key: the leaderboard rank, or the input position
	// when jobs are built from a file.
	Seq      int
	Rank     int
	Username string
	Account  hiscore.AccountType

	result *hiscore.PlayerRecord
}

// Priority implements Job.
func (j *LookupJob) Priority() int { return j.Seq }

// Resolved implements Job.
func (j *LookupJob) Resolved() bool { return j.result != nil }

// SetResult assigns the fetched player once; later calls are ignored.
func (j *LookupJob) SetResult(rec *hiscore.PlayerRecord) bool {
	if j.result != nil || rec == nil {
		return false
	}
	j.result = rec
	return true
}

// Result returns the fetched player, nil until resolved.
func (j *LookupJob) Result() *hiscore.PlayerRecord { return j.result }

// Request returns the collaborator request for this lookup.
func (j *LookupJob) Request() crawler.UserRequest {
	return crawler.UserRequest{Account: j.Account, Username: j.Username}
}
