package progress

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
)

// StageSnapshot is the latest known state of one stage of a run.
type StageSnapshot struct {
	Name     string `json:"name"`
	Cursor   int    `json:"cursor"`
	End      int    `json:"end"`
	Finished bool   `json:"finished"`
}

// RunSnapshot is the latest known state of a run.
type RunSnapshot struct {
	RunID      string            `json:"run_id"`
	Command    string            `json:"command"`
	Status     crawler.RunStatus `json:"status"`
	Items      int               `json:"items"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Stages     []StageSnapshot   `json:"stages"`
}

// Tracker is a Sink that folds events into per-run snapshots. It keeps at
// most limit finished runs; running runs are never evicted.
type Tracker struct {
	mu    sync.RWMutex
	runs  map[[16]byte]*RunSnapshot
	limit int
}

const defaultTrackerLimit = 100

// NewTracker creates a Tracker keeping up to limit finished runs.
func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = defaultTrackerLimit
	}
	return &Tracker{runs: make(map[[16]byte]*RunSnapshot), limit: limit}
}

// Consume implements Sink.
func (t *Tracker) Consume(_ context.Context, batch []Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range batch {
		t.apply(evt)
	}
	t.evictLocked()
	return nil
}

// Close implements Sink.
func (t *Tracker) Close(context.Context) error { return nil }

func (t *Tracker) apply(evt Event) {
	run, ok := t.runs[evt.RunID]
	if !ok {
		run = &RunSnapshot{
			RunID:     evt.RunUUID().String(),
			Status:    crawler.RunStatusRunning,
			StartedAt: evt.TS,
		}
		t.runs[evt.RunID] = run
	}
	switch evt.Kind {
	case KindRunStart:
		run.Command = evt.Command
		run.StartedAt = evt.TS
	case KindRunDone:
		run.Status = crawler.RunStatusSucceeded
		run.Items = evt.Items
		run.FinishedAt = timePtr(evt.TS)
	case KindRunError:
		run.Status = crawler.RunStatusFailed
		if evt.Status != "" {
			run.Status = evt.Status
		}
		run.Items = evt.Items
		run.Error = evt.Note
		run.FinishedAt = timePtr(evt.TS)
	case KindStageCursor, KindStageDone:
		stage := run.stage(evt.Stage)
		if evt.Cursor > stage.Cursor {
			stage.Cursor = evt.Cursor
		}
		stage.End = evt.End
		if evt.Kind == KindStageDone {
			stage.Finished = true
		}
	}
}

func (r *RunSnapshot) stage(name string) *StageSnapshot {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	r.Stages = append(r.Stages, StageSnapshot{Name: name})
	return &r.Stages[len(r.Stages)-1]
}

func (t *Tracker) evictLocked() {
	var finished []*RunSnapshot
	for _, run := range t.runs {
		if run.FinishedAt != nil {
			finished = append(finished, run)
		}
	}
	if len(finished) <= t.limit {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].FinishedAt.Before(*finished[j].FinishedAt)
	})
	for _, run := range finished[:len(finished)-t.limit] {
		id, err := ParseRunID(run.RunID)
		if err == nil {
			delete(t.runs, id)
		}
	}
}

// Run returns a copy of the snapshot for id.
func (t *Tracker) Run(id string) (RunSnapshot, bool) {
	key, err := ParseRunID(id)
	if err != nil {
		return RunSnapshot{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[key]
	if !ok {
		return RunSnapshot{}, false
	}
	return run.clone(), true
}

// Runs returns copies of every tracked run, newest first.
func (t *Tracker) Runs() []RunSnapshot {
	t.mu.RLock()
	out := make([]RunSnapshot, 0, len(t.runs))
	for _, run := range t.runs {
		out = append(out, run.clone())
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Active returns the stages of every running run.
func (t *Tracker) Active() []RunSnapshot {
	var out []RunSnapshot
	for _, run := range t.Runs() {
		if run.Status == crawler.RunStatusRunning {
			out = append(out, run)
		}
	}
	return out
}

func (r *RunSnapshot) clone() RunSnapshot {
	cp := *r
	cp.Stages = append([]StageSnapshot(nil), r.Stages...)
	if r.FinishedAt != nil {
		cp.FinishedAt = timePtr(*r.FinishedAt)
	}
	return cp
}

func timePtr(t time.Time) *time.Time {
	return &t
}
