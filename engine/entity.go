package engine

// EntityKind tags which Entity variant a handle holds — the closed
// discriminated sum described in §9 ("Polymorphic variants over
// inheritance"), used for the Kind() dispatch and for wire encoding.
type EntityKind uint8

const (
	EntityPlayer EntityKind = iota + 1
	EntityMob
	EntityMobSpawn
	EntityMobDamage
	EntityPlatform
	EntityPortal
	EntityItem
	EntityNpc
	EntityMessage
	EntityText
	EntityRect
	EntityEmoji
)

func (k EntityKind) String() string {
	switch k {
	case EntityPlayer:
		return "player"
	case EntityMob:
		return "mob"
	case EntityMobSpawn:
		return "mob_spawn"
	case EntityMobDamage:
		return "mob_damage"
	case EntityPlatform:
		return "platform"
	case EntityPortal:
		return "portal"
	case EntityItem:
		return "item"
	case EntityNpc:
		return "npc"
	case EntityMessage:
		return "message"
	case EntityText:
		return "text"
	case EntityRect:
		return "rect"
	case EntityEmoji:
		return "emoji"
	default:
		return "unknown"
	}
}

// Rectangle is an axis-aligned integer bounding box, derived from position
// and size. All physics is integer arithmetic (§9).
type Rectangle struct {
	X, Y, W, H int32
}

// Intersects reports whether two rectangles overlap.
func (r Rectangle) Intersects(other Rectangle) bool {
	return r.X < other.X+other.W && other.X < r.X+r.W &&
		r.Y < other.Y+other.H && other.Y < r.Y+r.H
}

// BaseEntityState is the common header every entity variant carries
// (§3). PlayerCreatorID is a pointer so it can represent "no creator"
// (Option<u128> in the source) without a sentinel value.
type BaseEntityState struct {
	ID              EntityID
	PositionX       int32
	PositionY       int32
	SizeX           int32
	SizeY           int32
	VelocityX       int32
	VelocityY       int32
	PlayerCreatorID *EntityID
	CreatedAtStep   uint64
}

// Rect returns the entity's current axis-aligned bounding box.
func (b BaseEntityState) Rect() Rectangle {
	return Rectangle{X: b.PositionX, Y: b.PositionY, W: b.SizeX, H: b.SizeY}
}

// Entity is the uniform read-only capability set every variant exposes
// (§3, §4.2). Values stored in the engine's entity table are frozen by
// convention: nothing holding an Entity reference mutates it in place.
// Producing a next-tick value means calling CloneDraft, mutating the
// draft, and installing it as the new table entry — the copy-on-write
// discipline that makes the rewind ring affordable.
type Entity interface {
	Kind() EntityKind
	ID() EntityID
	Base() BaseEntityState
	Position() (int32, int32)
	Velocity() (int32, int32)
	Size() (int32, int32)
	Rect() Rectangle
	Systems() []System

	// Prestep performs read-only inspection and reports whether StepInto
	// must run this tick.
	Prestep(eng *Engine) bool

	// StepInto fills in this entity's own per-tick changes on draft, which
	// already carries the output of the entity's stepped system list.
	StepInto(eng *Engine, draft EntityDraft)

	// CloneDraft returns a fresh, independently mutable copy of this
	// entity, used as the starting point for the next-tick value.
	CloneDraft() EntityDraft
}

// EntityDraft is the mutable view of an Entity used while stepping: the
// stepper builds one per entity per tick, lets systems and the entity's
// own StepInto mutate it in sequence, then freezes the result as the new
// Entity handle for the next-tick table.
type EntityDraft interface {
	Entity
	SetPosition(x, y int32)
	SetVelocity(x, y int32)
	SetSystems(systems []System)
}

// withSystems returns a copy of e with a new system list installed,
// without running prestep/step — used by SpawnSystem/RemoveSystem event
// application, which mutates the system list outside of the step pipeline.
func withSystems(e Entity, systems []System) Entity {
	draft := e.CloneDraft()
	draft.SetSystems(systems)
	return draft
}
