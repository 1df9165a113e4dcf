package hiscore

import (
	"math"
	"sort"
	"time"
)

// CategoryStats aggregates leaderboard records of one category.
type CategoryStats struct {
	name   string
	ts     time.Time
	scores []float64
	top    *CategoryRecord
	bottom *CategoryRecord
	total  float64
}

// StatsSummary is the computed view of CategoryStats.
type StatsSummary struct {
	Name               string          `json:"name"`
	Timestamp          time.Time       `json:"timestamp"`
	Count              int             `json:"count"`
	Total              float64         `json:"total"`
	Mean               float64         `json:"mean"`
	Median             float64         `json:"median"`
	Q1                 float64         `json:"q1"`
	Q3                 float64         `json:"q3"`
	IQR                float64         `json:"iqr"`
	PopulationVariance float64         `json:"population_variance"`
	PopulationStdDev   float64         `json:"population_std_dev"`
	SampleVariance     float64         `json:"sample_variance"`
	SampleStdDev       float64         `json:"sample_std_dev"`
	Max                *CategoryRecord `json:"max,omitempty"`
	Min                *CategoryRecord `json:"min,omitempty"`
}

// NewCategoryStats creates an empty aggregate.
func NewCategoryStats(name string, ts time.Time) *CategoryStats {
	return &CategoryStats{name: name, ts: ts}
}

// Add records a leaderboard row. Not safe for concurrent use.
func (s *CategoryStats) Add(r CategoryRecord) {
	v := float64(r.Score)
	s.scores = append(s.scores, v)
	s.total += v
	if s.top == nil || r.Rank < s.top.Rank {
		rc := r
		s.top = &rc
	}
	if s.bottom == nil || r.Rank > s.bottom.Rank {
		rc := r
		s.bottom = &rc
	}
}

// Count is the number of records seen.
func (s *CategoryStats) Count() int { return len(s.scores) }

// Summary computes the statistics over everything added so far.
func (s *CategoryStats) Summary() StatsSummary {
	out := StatsSummary{Name: s.name, Timestamp: s.ts, Count: len(s.scores), Total: s.total, Max: s.top, Min: s.bottom}
	n := len(s.scores)
	if n == 0 {
		return out
	}
	sorted := append([]float64(nil), s.scores...)
	sort.Float64s(sorted)

	out.Mean = s.total / float64(n)
	out.Median = percentile(sorted, 50)
	out.Q1 = percentile(sorted, 25)
	out.Q3 = percentile(sorted, 75)
	out.IQR = out.Q3 - out.Q1

	var sq float64
	for _, v := range sorted {
		d := v - out.Mean
		sq += d * d
	}
	out.PopulationVariance = sq / float64(n)
	out.PopulationStdDev = math.Sqrt(out.PopulationVariance)
	if n > 1 {
		out.SampleVariance = sq / float64(n-1)
		out.SampleStdDev = math.Sqrt(out.SampleVariance)
	}
	return out
}

// percentile uses linear interpolation between closest ranks of an
// ascending slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
