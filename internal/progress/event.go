package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StagePhaseDone  Stage = "PHASE_DONE"
	StageEntityDone Stage = "ENTITY_DONE"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
)

// lifecycle reports whether the stage starts or ends a run.
func (s Stage) lifecycle() bool {
	return s == StageRunStart || s.terminal()
}

// terminal reports whether the stage ends a run.
func (s Stage) terminal() bool {
	return s == StageRunDone || s == StageRunError
}

// Kind names the command that owns a run.
type Kind string

// Run kinds.
const (
	KindCrawl     Kind = "crawl"
	KindIngest    Kind = "ingest"
	KindWiden     Kind = "widen"
	KindAggregate Kind = "aggregate"
	KindImport    Kind = "import"
	KindExport    Kind = "export"
)

// Result classifies how one entity was handled.
type Result string

// Per-entity results.
const (
	ResultUpdated Result = "updated"
	ResultSkipped Result = "skipped"
	ResultFailed  Result = "failed"
)

// Counts are the running totals of a run.
type Counts struct {
	Processed int64 `json:"processed"`
	Updated   int64 `json:"updated"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

// Event captures a single milestone of a run.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Kind is the command that owns the run.
	Kind Kind
	// Stage denotes which milestone occurred.
	Stage Stage
	// Phase names a completed crawl phase.
	Phase string
	// Entity is the player id for ENTITY_DONE.
	Entity string
	// Result is the per-entity outcome.
	Result Result
	// Items is a phase size or a per-entity item count (matches appended, etc).
	Items int64
	// Counts carries run totals on RUN_DONE and RUN_ERROR.
	Counts Counts
	// Dur captures execution latency for entities, phases and runs.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
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
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StagePhaseDone:
		if e.Phase == "" {
			return errors.New("phase done requires phase")
		}
	case StageEntityDone:
		if e.Entity == "" {
			return errors.New("entity done requires entity")
		}
		if e.Result == "" {
			return errors.New("entity done requires result")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
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
