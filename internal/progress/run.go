package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	"github.com/JakeFAU/hiscore-crawler/internal/job"
)

// Run reports the lifecycle of one pipeline run to an Emitter.
type Run struct {
	id      [16]byte
	command string
	emitter Emitter
	now     func() time.Time
	started time.Time
}

// StartRun emits RUN_START and returns the reporter for the run. A nil
// emitter discards everything; a nil clock uses time.Now.
func StartRun(emitter Emitter, clock crawler.Clock, id uuid.UUID, command string) *Run {
	if emitter == nil {
		emitter = Discard{}
	}
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	r := &Run{
		id:      UUIDToBytes(id),
		command: command,
		emitter: emitter,
		now:     now,
	}
	r.started = now()
	emitter.Emit(Event{RunID: r.id, TS: r.started, Kind: KindRunStart, Command: command})
	return r
}

// ID returns the string form of the run id.
func (r *Run) ID() string {
	return uuid.UUID(r.id).String()
}

// StartedAt returns when the run started.
func (r *Run) StartedAt() time.Time {
	return r.started
}

// Finish emits RUN_DONE, or RUN_ERROR when err is set, and returns the
// terminal status.
func (r *Run) Finish(items int, err error) crawler.RunStatus {
	ts := r.now()
	dur := ts.Sub(r.started)
	if dur < 0 {
		dur = 0
	}
	evt := Event{RunID: r.id, TS: ts, Kind: KindRunDone, Items: items, Dur: dur}
	status := crawler.RunStatusSucceeded
	if err != nil {
		status = crawler.RunStatusFailed
		if errors.Is(err, context.Canceled) {
			status = crawler.RunStatusCanceled
		}
		evt.Kind = KindRunError
		evt.Status = status
		evt.Note = err.Error()
	}
	r.emitter.Emit(evt)
	return status
}

// Watch reports every cursor change of a stage until the stage finishes or
// ctx ends. It never fails, so it can run beside the stage's workers.
func (r *Run) Watch(stage string, m *job.Manager) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for {
			changed := m.Changed()
			evt := Event{
				RunID:  r.id,
				TS:     r.now(),
				Kind:   KindStageCursor,
				Stage:  stage,
				Cursor: m.Value(),
				End:    m.End(),
			}
			if m.IsFinished() {
				evt.Kind = KindStageDone
				r.emitter.Emit(evt)
				return nil
			}
			r.emitter.Emit(evt)
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
			}
		}
	}
}
