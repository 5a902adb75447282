package progress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Run emits the lifecycle events of one run and keeps its counters.
type Run struct {
	id      [16]byte
	kind    Kind
	emitter Emitter
	started time.Time

	processed atomic.Int64
	updated   atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
}

// StartRun emits RUN_START for runID and returns the recorder. A nil emitter
// still counts but emits nothing. All methods tolerate a nil *Run.
func StartRun(emitter Emitter, kind Kind, runID string) (*Run, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	r := &Run{id: UUIDToBytes(id), kind: kind, emitter: emitter, started: time.Now().UTC()}
	r.emit(Event{Stage: StageRunStart})
	return r, nil
}

// ID returns the run id.
func (r *Run) ID() string {
	if r == nil {
		return ""
	}
	return uuid.UUID(r.id).String()
}

// Phase records a completed phase and its size.
func (r *Run) Phase(name string, items int, dur time.Duration) {
	if r == nil {
		return
	}
	r.emit(Event{Stage: StagePhaseDone, Phase: name, Items: int64(items), Dur: dur})
}

// Entity records one processed entity.
func (r *Run) Entity(id string, result Result, items int, dur time.Duration, note string) {
	if r == nil {
		return
	}
	r.processed.Add(1)
	switch result {
	case ResultUpdated:
		r.updated.Add(1)
	case ResultSkipped:
		r.skipped.Add(1)
	case ResultFailed:
		r.failed.Add(1)
	}
	r.emit(Event{Stage: StageEntityDone, Entity: id, Result: result, Items: int64(items), Dur: dur, Note: note})
}

// Counts returns the current totals.
func (r *Run) Counts() Counts {
	if r == nil {
		return Counts{}
	}
	return Counts{
		Processed: r.processed.Load(),
		Updated:   r.updated.Load(),
		Skipped:   r.skipped.Load(),
		Failed:    r.failed.Load(),
	}
}

// Done emits RUN_DONE with the final counts.
func (r *Run) Done() Counts {
	c := r.Counts()
	if r == nil {
		return c
	}
	r.emit(Event{Stage: StageRunDone, Counts: c, Dur: time.Since(r.started)})
	return c
}

// Fail emits RUN_ERROR with the counts so far.
func (r *Run) Fail(err error) Counts {
	c := r.Counts()
	if r == nil {
		return c
	}
	note := ""
	if err != nil {
		note = err.Error()
	}
	r.emit(Event{Stage: StageRunError, Counts: c, Dur: time.Since(r.started), Note: note})
	return c
}

func (r *Run) emit(evt Event) {
	if r.emitter == nil {
		return
	}
	evt.RunID = r.id
	evt.Kind = r.kind
	evt.TS = time.Now().UTC()
	r.emitter.Emit(evt)
}
