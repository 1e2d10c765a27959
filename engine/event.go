package engine

// EventKind tags which EngineEvent variant is populated, taking the place
// of the source's enum dispatch with a closed discriminated sum: static
// layout, cheap clone, no vtables.
type EventKind uint8

const (
	EventNoop EventKind = iota
	EventSpawnEntity
	EventRemoveEntity
	EventInput
	EventSpawnSystem
	EventRemoveSystem
)

// String renders the kind for logging and metrics labels.
func (k EventKind) String() string {
	switch k {
	case EventSpawnEntity:
		return "spawn_entity"
	case EventRemoveEntity:
		return "remove_entity"
	case EventInput:
		return "input"
	case EventSpawnSystem:
		return "spawn_system"
	case EventRemoveSystem:
		return "remove_system"
	default:
		return "noop"
	}
}

// EngineEvent is the closed sum of structural events the stepper applies
// at the start of a step (§4.4). Every variant carries IsNonDeterminism,
// which is metadata for the replay/echo protocol only — the stepper applies
// every event identically regardless of its value (§9).
type EngineEvent struct {
	Kind EventKind

	// IsNonDeterminism marks events originating locally at one replica
	// (e.g. local input prediction) that must be echoed by an authority
	// to become part of every replica's deterministic log.
	IsNonDeterminism bool

	// SpawnEntity
	Entity Entity

	// RemoveEntity, Input, SpawnSystem, RemoveSystem
	EntityID EntityID

	// Input
	Input InputValue

	// SpawnSystem, RemoveSystem
	System System
}

// InputValue is the payload of an Input event, latched into the target
// entity's InputSystem. Mirrors the source's small closed input enum.
type InputValue uint8

const (
	InputNone InputValue = iota
	InputMoveLeft
	InputMoveRight
	InputJump
	InputStopMoveX
	InputUseAbility
)

// NewSpawnEntityEvent builds a SpawnEntity event.
func NewSpawnEntityEvent(entity Entity, nonDeterministic bool) EngineEvent {
	return EngineEvent{Kind: EventSpawnEntity, Entity: entity, IsNonDeterminism: nonDeterministic}
}

// NewRemoveEntityEvent builds a RemoveEntity event.
func NewRemoveEntityEvent(id EntityID, nonDeterministic bool) EngineEvent {
	return EngineEvent{Kind: EventRemoveEntity, EntityID: id, IsNonDeterminism: nonDeterministic}
}

// NewInputEvent builds an Input event.
func NewInputEvent(id EntityID, input InputValue, nonDeterministic bool) EngineEvent {
	return EngineEvent{Kind: EventInput, EntityID: id, Input: input, IsNonDeterminism: nonDeterministic}
}

// NewSpawnSystemEvent builds a SpawnSystem event.
func NewSpawnSystemEvent(id EntityID, sys System, nonDeterministic bool) EngineEvent {
	return EngineEvent{Kind: EventSpawnSystem, EntityID: id, System: sys, IsNonDeterminism: nonDeterministic}
}

// NewRemoveSystemEvent builds a RemoveSystem event.
func NewRemoveSystemEvent(id EntityID, sys System, nonDeterministic bool) EngineEvent {
	return EngineEvent{Kind: EventRemoveSystem, EntityID: id, System: sys, IsNonDeterminism: nonDeterministic}
}

// loggedEvent pairs an event with the monotonic id assigned at insertion,
// used to fix replay-insertion order during rewind (§4.5: "insert the event
// into that step's event list at the position implied by event id ordering").
type loggedEvent struct {
	id    uint64
	event EngineEvent
}
