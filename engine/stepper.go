package engine

import (
	"fmt"
	"sort"
)

// Engine is the deterministic fixed-timestep stepper (§4). It owns the
// current entity table, the per-step event log, the shared RNG, and the
// game-event sink. Engine itself has no rewind ring or wall-clock
// awareness — those live in RewindableEngine and Ticker, which wrap an
// Engine rather than reimplement its dispatch loop.
type Engine struct {
	rng       *XorShiftRNG
	stepIndex uint64
	worldSize [2]int32

	entities map[EntityID]Entity
	eventLog map[uint64][]loggedEvent

	nextEventID uint64

	pendingRemovals map[EntityID]struct{}
	currentStepEvents []EngineEvent

	sink                GameEventSink
	collectedGameEvents []GameEvent

	fatalErr error
}

// NewEngine constructs an engine with a fresh RNG seeded by seed and an
// empty entity table. worldWidth/worldHeight bound AtomicMoveSystem's
// floor clamp (WorldSize); pass 0 for either to disable that clamp.
func NewEngine(seed uint64, worldWidth, worldHeight int32) (*Engine, error) {
	rng, err := NewXorShiftRNG(seed)
	if err != nil {
		return nil, err
	}
	return &Engine{
		rng:       rng,
		entities:  make(map[EntityID]Entity),
		eventLog:  make(map[uint64][]loggedEvent),
		worldSize: [2]int32{worldWidth, worldHeight},
	}, nil
}

// Err returns the fatal assertion-failure error recorded by fail, if any.
// Once set, the engine must not be stepped further (§7 AssertionFailure).
func (eng *Engine) Err() error {
	return eng.fatalErr
}

func (eng *Engine) fail(err error, message string, id EntityID) {
	if eng.fatalErr == nil {
		eng.fatalErr = fmt.Errorf("%s (entity %s): %w", message, id, err)
	}
}

// StepIndex returns the index of the next step to be executed.
func (eng *Engine) StepIndex() uint64 { return eng.stepIndex }

// WorldSize returns the (width, height) bound used by AtomicMoveSystem's
// floor clamp.
func (eng *Engine) WorldSize() [2]int32 { return eng.worldSize }

// EntityCount returns the number of entities currently in the table.
func (eng *Engine) EntityCount() int { return len(eng.entities) }

// CurrentStepEvents returns the events applied at the start of the step
// currently being executed, in insertion order. Only meaningful from
// within a system's Prestep/Step call; outside of stepping it reflects
// the most recently executed step.
func (eng *Engine) CurrentStepEvents() []EngineEvent { return eng.currentStepEvents }

// EntityByID looks up an entity in the current table.
func (eng *Engine) EntityByID(id EntityID) (Entity, bool) {
	ent, ok := eng.entities[id]
	return ent, ok
}

// EntitiesByKind returns every entity of the given kind, sorted ascending
// by id so callers that depend on iteration order (none currently do, but
// future systems might) get a stable result (P1).
func (eng *Engine) EntitiesByKind(kind EntityKind) []Entity {
	out := make([]Entity, 0)
	for _, ent := range eng.entities {
		if ent.Kind() == kind {
			out = append(out, ent)
		}
	}
	sortEntitiesByID(out)
	return out
}

// AllEntities returns every entity in the table, sorted ascending by id.
func (eng *Engine) AllEntities() []Entity {
	out := make([]Entity, 0, len(eng.entities))
	for _, ent := range eng.entities {
		out = append(out, ent)
	}
	sortEntitiesByID(out)
	return out
}

func sortEntitiesByID(entities []Entity) {
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID().Less(entities[j].ID())
	})
}

// RemoveEntity takes immediate effect: during a step, the entity is
// excluded from the table being built by this step's pass (even if its
// own prestep/step already ran, or hasn't run yet); outside of a step it
// removes the entity right away. This is distinct from a RemoveEntity
// EngineEvent registered via RegisterEvent, which is not applied until
// the start of its target step (§4.6, S3).
func (eng *Engine) RemoveEntity(id EntityID) {
	if eng.pendingRemovals != nil {
		eng.pendingRemovals[id] = struct{}{}
	}
	delete(eng.entities, id)
}

// SpawnEntityNow installs ent into the table immediately, bypassing the
// event log. Used to seed the initial world before any step runs.
func (eng *Engine) SpawnEntityNow(ent Entity) {
	eng.entities[ent.ID()] = ent
}

// GenerateID pulls a fresh id from the engine's RNG.
func (eng *Engine) GenerateID() EntityID {
	return GenerateID(eng.rng)
}

// RNG exposes the engine's shared generator to callers that need to roll
// against it directly (e.g. damage calculation invoked from outside a
// system, such as an ability-use handler).
func (eng *Engine) RNG() *XorShiftRNG {
	return eng.rng
}

// SetGameEventHandler installs the handler invoked with the game events
// collected from each step, once that step's entity pass completes.
func (eng *Engine) SetGameEventHandler(h GameEventHandler) {
	eng.sink.SetHandler(h)
}

// EmitGameEvent appends ev to the current step's game-event buffer.
func (eng *Engine) EmitGameEvent(ev GameEvent) {
	eng.sink.emit(ev)
}

// RegisterEvent appends event to the log applied at the start of step.
// step must be >= StepIndex(); registering an event for a past step
// returns ErrHistoryTooShort, since a bare Engine has no snapshot ring to
// rewind with (RewindableEngine overrides this to actually rewind).
func (eng *Engine) RegisterEvent(step uint64, event EngineEvent) error {
	if step < eng.stepIndex {
		return ErrHistoryTooShort
	}
	id := eng.nextEventID
	eng.nextEventID++
	eng.eventLog[step] = append(eng.eventLog[step], loggedEvent{id: id, event: event})
	return nil
}

// StepTo advances the engine from its current step index up to (but not
// including) target, applying each intervening step's events and running
// the full dispatch pass for each. It returns every game event collected
// across the advanced range, in step order. If the engine has recorded a
// fatal error (AssertionFailure), StepTo is a no-op and returns nil.
func (eng *Engine) StepTo(target uint64) []GameEvent {
	if eng.fatalErr != nil {
		return nil
	}
	eng.collectedGameEvents = nil
	for eng.stepIndex < target {
		eng.stepOnce()
		if eng.fatalErr != nil {
			break
		}
	}
	out := eng.collectedGameEvents
	eng.collectedGameEvents = nil
	return out
}

// stepOnce executes exactly one step: apply this step's queued events,
// run every entity's system+own-step pass over a stable ascending-id
// iteration, swap in the resulting draft table, drain game events, and
// advance the step index (§4.4).
func (eng *Engine) stepOnce() {
	eng.applyEventsForStep(eng.stepIndex)

	keys := make([]EntityID, 0, len(eng.entities))
	for id := range eng.entities {
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	eng.pendingRemovals = make(map[EntityID]struct{})
	next := make(map[EntityID]Entity, len(keys))

	for _, id := range keys {
		ent, ok := eng.entities[id]
		if !ok {
			continue
		}

		draft := ent.CloneDraft()
		systems := append([]System(nil), ent.Systems()...)
		sortSystemsByAttachStep(systems)

		updated := make([]System, 0, len(systems))
		for _, sys := range systems {
			if eng.fatalErr != nil {
				break
			}
			if sys.Prestep(eng, ent) {
				newSys, keep := sys.Step(eng, ent, draft)
				if keep {
					updated = append(updated, newSys)
				}
			} else {
				updated = append(updated, sys)
			}
		}
		draft.SetSystems(updated)

		if eng.fatalErr == nil && ent.Prestep(eng) {
			ent.StepInto(eng, draft)
		}

		if _, removed := eng.pendingRemovals[id]; removed {
			continue
		}
		next[id] = draft

		if eng.fatalErr != nil {
			break
		}
	}

	if eng.fatalErr != nil {
		eng.pendingRemovals = nil
		return
	}

	eng.entities = next
	eng.pendingRemovals = nil

	drained := eng.sink.drain(eng.stepIndex)
	eng.collectedGameEvents = append(eng.collectedGameEvents, drained...)

	eng.stepIndex++
}

// applyEventsForStep applies every event queued for step, in ascending
// insertion-id order (so rewind-time replays that re-inserted an event
// out of append order still apply in the order it was originally
// registered), and records them as CurrentStepEvents for the systems
// about to run this tick.
func (eng *Engine) applyEventsForStep(step uint64) {
	logged := eng.eventLog[step]
	delete(eng.eventLog, step)

	sort.Slice(logged, func(i, j int) bool { return logged[i].id < logged[j].id })

	events := make([]EngineEvent, 0, len(logged))
	for _, le := range logged {
		events = append(events, le.event)
		eng.applyEvent(le.event)
	}
	eng.currentStepEvents = events
}

func (eng *Engine) applyEvent(ev EngineEvent) {
	switch ev.Kind {
	case EventSpawnEntity:
		// A colliding id is a warning-level anomaly (ErrDuplicateEntityID),
		// not fatal: the later spawn simply wins.
		eng.entities[ev.Entity.ID()] = ev.Entity

	case EventRemoveEntity:
		// A missing target is a warning-level anomaly (ErrMissingEntity),
		// not fatal: the event becomes a no-op.
		delete(eng.entities, ev.EntityID)

	case EventInput:
		// No table mutation: InputSystem reads CurrentStepEvents directly.

	case EventSpawnSystem:
		if ent, ok := eng.entities[ev.EntityID]; ok {
			systems := append(cloneSystems(ent.Systems()), ev.System)
			eng.entities[ev.EntityID] = withSystems(ent, systems)
		}

	case EventRemoveSystem:
		if ent, ok := eng.entities[ev.EntityID]; ok {
			systems := ent.Systems()
			filtered := make([]System, 0, len(systems))
			for _, s := range systems {
				if s != ev.System {
					filtered = append(filtered, s)
				}
			}
			eng.entities[ev.EntityID] = withSystems(ent, filtered)
		}

	case EventNoop:
	}
}
