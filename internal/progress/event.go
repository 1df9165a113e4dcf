package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
)

// Kind denotes the milestone an Event reports.
type Kind string

// Supported event kinds.
const (
	KindRunStart    Kind = "RUN_START"
	KindRunDone     Kind = "RUN_DONE"
	KindRunError    Kind = "RUN_ERROR"
	KindStageCursor Kind = "STAGE_CURSOR"
	KindStageDone   Kind = "STAGE_DONE"
)

// Event captures a single step of pipeline progress.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS   time.Time
	Kind Kind
	// Command names the pipeline; set on RUN_START.
	Command string
	// Stage names the stage for STAGE_* events ("pages", "lookups").
	Stage string
	// Cursor is the stage's release cursor; End its last priority.
	Cursor int
	End    int
	// Items is the number of output items a finished run produced.
	Items int
	// Dur is the run's wall time on RUN_DONE and RUN_ERROR.
	Dur time.Duration
	// Status overrides the terminal status of RUN_ERROR (canceled runs).
	Status crawler.RunStatus
	// Note carries the error text of RUN_ERROR.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindRunStart:
		if e.Command == "" {
			return errors.New("run start requires command")
		}
	case KindRunDone, KindRunError:
	case KindStageCursor, KindStageDone:
		if e.Stage == "" {
			return fmt.Errorf("%s requires stage", e.Kind)
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Items < 0 {
		return errors.New("items must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID parses the string form of a run id.
func ParseRunID(s string) ([16]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return UUIDToBytes(id), nil
}
