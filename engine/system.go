package engine

// SystemKind tags which System variant a handle holds (§9's closed sum,
// mirrored from EntityKind).
type SystemKind uint8

const (
	SystemGravity SystemKind = iota + 1
	SystemInput
	SystemAtomicMove
	SystemAttach
	SystemDisappear
	SystemWeightless
	SystemInvincible
	SystemPlayerExp
)

func (k SystemKind) String() string {
	switch k {
	case SystemGravity:
		return "gravity"
	case SystemInput:
		return "input"
	case SystemAtomicMove:
		return "atomic_move"
	case SystemAttach:
		return "attach"
	case SystemDisappear:
		return "disappear"
	case SystemWeightless:
		return "weightless"
	case SystemInvincible:
		return "invincible"
	case SystemPlayerExp:
		return "player_exp"
	default:
		return "unknown"
	}
}

// System is the uniform capability set every system variant exposes
// (§4.3). Systems do not own entities; back-references (Attach.AttachedTo)
// are EntityIDs resolved by lookup at step time (§9), never pointers.
//
// Systems on an entity run oldest-first (attached-step order), before the
// entity's own StepInto.
type System interface {
	Kind() SystemKind

	// AttachedAtStep records the step the system was installed, used to
	// enforce the oldest-systems-first ordering requirement (P5).
	AttachedAtStep() uint64

	// Prestep decides, with read-only access, whether Step must run this
	// tick. It may register engine events (e.g. a self RemoveSystem).
	Prestep(eng *Engine, ent Entity) bool

	// Step mutates draft in place and returns the system's next-tick
	// state, or (nil, false) to drop the system from the entity's list
	// without an explicit RemoveSystem event (§4.3).
	Step(eng *Engine, ent Entity, draft EntityDraft) (System, bool)
}

// sortSystemsByAttachStep sorts a system slice oldest-first, stable on ties
// (insertion order within the same step), satisfying P5.
func sortSystemsByAttachStep(systems []System) {
	// insertion sort: system lists are short (a handful per entity), and
	// stability matters more than asymptotic complexity here.
	for i := 1; i < len(systems); i++ {
		for j := i; j > 0 && systems[j].AttachedAtStep() < systems[j-1].AttachedAtStep(); j-- {
			systems[j], systems[j-1] = systems[j-1], systems[j]
		}
	}
}
