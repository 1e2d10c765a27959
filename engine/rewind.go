package engine

import (
	"time"

	"github.com/keindproject/keind/infrastructure/metrics"
)

// engineSnapshot is a full copy of an Engine's state at a given step
// index. Entity values themselves are not deep-copied — they are treated
// as frozen by convention (§4.2) — only the map, RNG state and pending
// event log are copied,
// which is what makes the rewind ring affordable (P6).
type engineSnapshot struct {
	stepIndex   uint64
	entities    map[EntityID]Entity
	eventLog    map[uint64][]loggedEvent
	rngState    uint64
	nextEventID uint64
}

func (eng *Engine) snapshotState() engineSnapshot {
	entities := make(map[EntityID]Entity, len(eng.entities))
	for id, ent := range eng.entities {
		entities[id] = ent
	}

	eventLog := make(map[uint64][]loggedEvent, len(eng.eventLog))
	for step, evs := range eng.eventLog {
		cp := make([]loggedEvent, len(evs))
		copy(cp, evs)
		eventLog[step] = cp
	}

	return engineSnapshot{
		stepIndex:   eng.stepIndex,
		entities:    entities,
		eventLog:    eventLog,
		rngState:    eng.rng.Seed(),
		nextEventID: eng.nextEventID,
	}
}

func (eng *Engine) restoreState(s engineSnapshot) {
	entities := make(map[EntityID]Entity, len(s.entities))
	for id, ent := range s.entities {
		entities[id] = ent
	}
	eventLog := make(map[uint64][]loggedEvent, len(s.eventLog))
	for step, evs := range s.eventLog {
		cp := make([]loggedEvent, len(evs))
		copy(cp, evs)
		eventLog[step] = cp
	}

	eng.stepIndex = s.stepIndex
	eng.entities = entities
	eng.eventLog = eventLog
	eng.rng.state = s.rngState
	eng.nextEventID = s.nextEventID
	eng.fatalErr = nil
}

// RewindableEngine wraps an Engine with a bounded ring of past snapshots,
// giving RegisterEvent the ability to splice a late-arriving event into
// history and replay forward rather than reject it (§4.5). A
// trailingStateLen of 0 disables the ring entirely — every past-dated
// RegisterEvent then returns ErrHistoryTooShort, which is the zkVM guest's
// mode (§4.18): no out-of-order events are possible inside a single proof
// run, and the memory cost of a ring is pure waste there.
type RewindableEngine struct {
	eng              *Engine
	trailingStateLen int
	ring             []engineSnapshot // ring[0] is oldest retained
	metrics          *metrics.Metrics
}

// NewRewindableEngine constructs a rewindable engine. trailingStateLen
// bounds how many past steps can be rewound to; 0 disables rewind.
func NewRewindableEngine(seed uint64, worldWidth, worldHeight int32, trailingStateLen int, m *metrics.Metrics) (*RewindableEngine, error) {
	eng, err := NewEngine(seed, worldWidth, worldHeight)
	if err != nil {
		return nil, err
	}
	r := &RewindableEngine{eng: eng, trailingStateLen: trailingStateLen, metrics: m}
	if trailingStateLen > 0 {
		r.ring = append(r.ring, eng.snapshotState())
	}
	return r, nil
}

// NewRewindableEngineFromState wraps an already-decoded Engine (typically
// produced by DecodeEngineState when resuming from a persisted snapshot)
// instead of constructing a fresh one at step zero.
func NewRewindableEngineFromState(eng *Engine, trailingStateLen int, m *metrics.Metrics) *RewindableEngine {
	r := &RewindableEngine{eng: eng, trailingStateLen: trailingStateLen, metrics: m}
	if trailingStateLen > 0 {
		r.ring = append(r.ring, eng.snapshotState())
	}
	return r
}

// Engine exposes the wrapped stepper for callers that need direct access
// (e.g. tests constructing entities before the first step).
func (r *RewindableEngine) Engine() *Engine { return r.eng }

// StepIndex returns the index of the next step to be executed.
func (r *RewindableEngine) StepIndex() uint64 { return r.eng.StepIndex() }

// EntityCount returns the number of entities currently in the table.
func (r *RewindableEngine) EntityCount() int { return r.eng.EntityCount() }

// EntityByID looks up an entity in the current table.
func (r *RewindableEngine) EntityByID(id EntityID) (Entity, bool) { return r.eng.EntityByID(id) }

// EntitiesByKind returns every entity of the given kind, ascending by id.
func (r *RewindableEngine) EntitiesByKind(kind EntityKind) []Entity { return r.eng.EntitiesByKind(kind) }

// AllEntities returns every entity in the table, ascending by id.
func (r *RewindableEngine) AllEntities() []Entity { return r.eng.AllEntities() }

// SpawnEntityNow installs ent immediately, bypassing the event log.
func (r *RewindableEngine) SpawnEntityNow(ent Entity) { r.eng.SpawnEntityNow(ent) }

// GenerateID pulls a fresh id from the engine's RNG.
func (r *RewindableEngine) GenerateID() EntityID { return r.eng.GenerateID() }

// RNG exposes the shared generator.
func (r *RewindableEngine) RNG() *XorShiftRNG { return r.eng.RNG() }

// WorldSize returns the (width, height) bound used by movement clamping.
func (r *RewindableEngine) WorldSize() [2]int32 { return r.eng.WorldSize() }

// Err returns the engine's fatal assertion-failure error, if any.
func (r *RewindableEngine) Err() error { return r.eng.Err() }

// SetGameEventHandler installs the handler invoked with each step's
// collected game events.
func (r *RewindableEngine) SetGameEventHandler(h GameEventHandler) { r.eng.SetGameEventHandler(h) }

// StepTo advances the engine to target, one step at a time, snapshotting
// after every step so the ring stays gap-free, and recording per-step
// duration/entity-count metrics if a Metrics instance was supplied.
func (r *RewindableEngine) StepTo(target uint64) []GameEvent {
	var all []GameEvent
	for r.eng.StepIndex() < target {
		start := time.Now()
		events := r.eng.StepTo(r.eng.StepIndex() + 1)
		if r.metrics != nil {
			r.metrics.RecordStep(time.Since(start), r.eng.EntityCount())
		}
		all = append(all, events...)
		if r.eng.Err() != nil {
			break
		}
		r.pushSnapshot()
	}
	return all
}

func (r *RewindableEngine) pushSnapshot() {
	if r.trailingStateLen <= 0 {
		return
	}
	r.ring = append(r.ring, r.eng.snapshotState())
	if len(r.ring) > r.trailingStateLen {
		r.ring = r.ring[len(r.ring)-r.trailingStateLen:]
	}
}

// findSnapshotIndex returns the index of the newest retained snapshot
// whose stepIndex is <= step, or -1 if step precedes every retained
// snapshot.
func (r *RewindableEngine) findSnapshotIndex(step uint64) int {
	for i := len(r.ring) - 1; i >= 0; i-- {
		if r.ring[i].stepIndex <= step {
			return i
		}
	}
	return -1
}

// OldestRetainedStep returns the step index of the oldest snapshot still
// in the ring, used to report HistoryTooShort's detail fields.
func (r *RewindableEngine) OldestRetainedStep() (uint64, bool) {
	if len(r.ring) == 0 {
		return 0, false
	}
	return r.ring[0].stepIndex, true
}

// RegisterEvent queues event to apply at the start of step. If step is at
// or after the engine's current step index, this is a plain append to the
// log (no rewind needed). If step is in the past, the engine restores the
// newest retained snapshot at or before step, inserts event, and replays
// forward to the point it had reached before the call — the full
// rewind-insert-replay cycle of §4.5. Returns ErrHistoryTooShort if step
// precedes every retained snapshot (including when the ring is disabled).
func (r *RewindableEngine) RegisterEvent(step uint64, event EngineEvent) error {
	if step >= r.eng.StepIndex() {
		return r.eng.RegisterEvent(step, event)
	}

	idx := r.findSnapshotIndex(step)
	if idx < 0 {
		if r.metrics != nil {
			r.metrics.RecordHistoryTooShort()
		}
		return ErrHistoryTooShort
	}

	replayTarget := r.eng.StepIndex()
	r.eng.restoreState(r.ring[idx])
	r.ring = r.ring[:idx+1]

	if err := r.eng.RegisterEvent(step, event); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordRewind()
	}

	for r.eng.StepIndex() < replayTarget {
		start := time.Now()
		r.eng.StepTo(r.eng.StepIndex() + 1)
		if r.metrics != nil {
			r.metrics.RecordStep(time.Since(start), r.eng.EntityCount())
		}
		r.pushSnapshot()
	}
	return nil
}
