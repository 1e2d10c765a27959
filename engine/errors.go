package engine

import "errors"

// Sentinel errors for the six kinds in §7. The engine's hot path checks
// these with errors.Is rather than typed error structs, since the core has
// no HTTP/RPC surface of its own; infrastructure/errors.ServiceError wraps
// these only at the network adapter boundary (see cmd/gameserver).
var (
	// ErrHistoryTooShort is returned when register_event targets a step
	// older than the oldest snapshot retained by the rewind ring.
	ErrHistoryTooShort = errors.New("engine: history too short to rewind to requested step")

	// ErrDeserialization is returned when a binary-encoded engine or event
	// payload is malformed.
	ErrDeserialization = errors.New("engine: malformed serialized payload")

	// ErrDuplicateEntityID is logged as a warning (not returned) when a
	// SpawnEntity event collides with an existing id; the later spawn wins.
	ErrDuplicateEntityID = errors.New("engine: duplicate entity id")

	// ErrMissingEntity is logged as a warning (not returned) when an event
	// references an entity absent from the table.
	ErrMissingEntity = errors.New("engine: missing entity")

	// ErrAssertionFailure indicates a system contract violation (e.g. two
	// Attach systems on one entity). Fatal: the engine must not be reused.
	ErrAssertionFailure = errors.New("engine: assertion failure, engine state undefined")

	// ErrRNGSeedZero is returned at construction when the seed is zero.
	ErrRNGSeedZero = errors.New("engine: rng seed must be non-zero")
)
