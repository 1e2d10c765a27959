package engine

import "math"

// hasSystemKind reports whether ent carries a system of the given kind,
// used by GravitySystem to detect an attached WeightlessSystem.
// AttachSystem's single-attach assertion uses countSystemKind instead.
func hasSystemKind(ent Entity, kind SystemKind) bool {
	for _, s := range ent.Systems() {
		if s.Kind() == kind {
			return true
		}
	}
	return false
}

func countSystemKind(ent Entity, kind SystemKind) int {
	n := 0
	for _, s := range ent.Systems() {
		if s.Kind() == kind {
			n++
		}
	}
	return n
}

// GravitySystem accelerates an entity downward by a fixed constant unless
// it rests on a platform or carries a WeightlessSystem, in which case
// velocity.y is clamped to at least zero (upward momentum is preserved,
// per the source's "only mutate velocity, not position" comment).
type GravitySystem struct {
	attachedAtStep uint64
}

// NewGravitySystem constructs a Gravity system attached at the given step.
func NewGravitySystem(attachedAtStep uint64) *GravitySystem {
	return &GravitySystem{attachedAtStep: attachedAtStep}
}

func (s *GravitySystem) Kind() SystemKind        { return SystemGravity }
func (s *GravitySystem) AttachedAtStep() uint64  { return s.attachedAtStep }
func (s *GravitySystem) Prestep(*Engine, Entity) bool { return true }

func (s *GravitySystem) Step(eng *Engine, ent Entity, draft EntityDraft) (System, bool) {
	platforms := eng.EntitiesByKind(EntityPlatform)
	_, vy := draft.Velocity()
	if OnPlatform(ent.Rect(), platforms) || hasSystemKind(ent, SystemWeightless) {
		if vy < 0 {
			vy = 0
		}
		vx, _ := draft.Velocity()
		draft.SetVelocity(vx, vy)
	} else {
		vx, _ := draft.Velocity()
		draft.SetVelocity(vx, vy-20)
	}
	return s, true
}

// InputSystem latches the most recent per-step input targeting its entity.
// Per the open-question resolution (§9), the behaviour is the older tree's:
// look up this step's Input event for the entity and remember it.
type InputSystem struct {
	attachedAtStep  uint64
	latestInputStep uint64
	latestInput     InputValue
}

// NewInputSystem constructs an Input system attached at the given step.
func NewInputSystem(attachedAtStep uint64) *InputSystem {
	return &InputSystem{attachedAtStep: attachedAtStep}
}

func (s *InputSystem) Kind() SystemKind       { return SystemInput }
func (s *InputSystem) AttachedAtStep() uint64 { return s.attachedAtStep }

// LatestInput returns the most recently latched (step, input) pair.
func (s *InputSystem) LatestInput() (uint64, InputValue) {
	return s.latestInputStep, s.latestInput
}

func (s *InputSystem) Prestep(*Engine, Entity) bool { return true }

func (s *InputSystem) Step(eng *Engine, ent Entity, draft EntityDraft) (System, bool) {
	next := *s
	for _, ev := range eng.CurrentStepEvents() {
		if ev.Kind == EventInput && ev.EntityID == ent.ID() {
			next.latestInputStep = eng.StepIndex()
			next.latestInput = ev.Input
		}
	}
	return &next, true
}

// AtomicMoveSystem translates an entity's position by its velocity each
// step, clamping velocity to the engine's speed limits and resolving
// platform collisions via MoveX/MoveY (actor.go), grounded on
// AtomicMoveSystem::step.
type AtomicMoveSystem struct {
	attachedAtStep uint64
}

// NewAtomicMoveSystem constructs an AtomicMove system attached at the given step.
func NewAtomicMoveSystem(attachedAtStep uint64) *AtomicMoveSystem {
	return &AtomicMoveSystem{attachedAtStep: attachedAtStep}
}

func (s *AtomicMoveSystem) Kind() SystemKind        { return SystemAtomicMove }
func (s *AtomicMoveSystem) AttachedAtStep() uint64  { return s.attachedAtStep }
func (s *AtomicMoveSystem) Prestep(*Engine, Entity) bool { return true }

func (s *AtomicMoveSystem) Step(eng *Engine, ent Entity, draft EntityDraft) (System, bool) {
	const (
		lowerX, lowerY = -250, -350
		upperX, upperY = 250, 700
	)
	vx, vy := draft.Velocity()
	vx = clampInt32(vx, lowerX, upperX)
	vy = clampInt32(vy, lowerY, upperY)
	draft.SetVelocity(vx, vy)

	oldVX, oldVY := ent.Velocity()
	body := ent.Rect()
	dispX := oldVX / StepsPerSecond
	dispY := oldVY / StepsPerSecond

	platforms := eng.EntitiesByKind(EntityPlatform)
	nextX := MoveX(body, dispX, platforms)
	nextY := MoveY(body, dispY, platforms, eng.WorldSize())
	draft.SetPosition(nextX, nextY)

	return s, true
}

func clampInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AttachSystem pins an entity's position to another entity's position plus
// a fixed offset. Only one AttachSystem per entity is permitted; a second
// one is an assertion failure (§7 AssertionFailure).
type AttachSystem struct {
	attachedAtStep uint64
	attachedTo     EntityID
	offsetX        int32
	offsetY        int32
}

// NewAttachSystem constructs an Attach system targeting attachedTo with the
// given offset, installed at attachedAtStep.
func NewAttachSystem(attachedAtStep uint64, attachedTo EntityID, offsetX, offsetY int32) *AttachSystem {
	return &AttachSystem{attachedAtStep: attachedAtStep, attachedTo: attachedTo, offsetX: offsetX, offsetY: offsetY}
}

func (s *AttachSystem) Kind() SystemKind       { return SystemAttach }
func (s *AttachSystem) AttachedAtStep() uint64 { return s.attachedAtStep }
func (s *AttachSystem) AttachedTo() EntityID   { return s.attachedTo }

func (s *AttachSystem) Prestep(eng *Engine, ent Entity) bool {
	if countSystemKind(ent, SystemAttach) != 1 {
		eng.fail(ErrAssertionFailure, "multiple attach systems on entity", ent.ID())
		return false
	}

	target, ok := eng.EntityByID(s.attachedTo)
	if !ok {
		return false
	}
	tx, ty := target.Position()
	ex, ey := ent.Position()
	return tx != ex || ty != ey
}

func (s *AttachSystem) Step(eng *Engine, ent Entity, draft EntityDraft) (System, bool) {
	target, ok := eng.EntityByID(s.attachedTo)
	if !ok {
		return s, true
	}
	tx, ty := target.Position()
	draft.SetPosition(tx+s.offsetX, ty+s.offsetY)
	return s, true
}

// DisappearSystem removes its entity from the table the instant
// step_index reaches at_step, via the engine's immediate remove_entity
// path rather than a next-step event, so the entity is already gone by
// the end of step at_step (S3). No RemoveEntity event is registered for
// the removal. Prestep always returns false, so this system's own Step
// never runs and the system stays attached; the entity's own prestep and
// step still run at at_step, but the entity is left out of the table
// that step produces.
type DisappearSystem struct {
	attachedAtStep uint64
	atStep         uint64
}

// NewDisappearSystem constructs a Disappear system that removes its entity
// at atStep.
func NewDisappearSystem(attachedAtStep, atStep uint64) *DisappearSystem {
	return &DisappearSystem{attachedAtStep: attachedAtStep, atStep: atStep}
}

func (s *DisappearSystem) Kind() SystemKind       { return SystemDisappear }
func (s *DisappearSystem) AttachedAtStep() uint64 { return s.attachedAtStep }
func (s *DisappearSystem) AtStep() uint64         { return s.atStep }

func (s *DisappearSystem) Prestep(eng *Engine, ent Entity) bool {
	if eng.StepIndex() == s.atStep {
		eng.RemoveEntity(ent.ID())
	}
	return false
}

func (s *DisappearSystem) Step(*Engine, Entity, EntityDraft) (System, bool) {
	return nil, false
}

// WeightlessSystem is a timed flag: once step_index reaches UntilStep it
// drops itself, matching the Invincible/Weightless contract in §4.3.
type WeightlessSystem struct {
	attachedAtStep uint64
	untilStep      uint64
	hasUntilStep   bool
}

// NewWeightlessSystem constructs a Weightless system that expires at
// untilStep. Pass hasUntilStep=false for an indefinite flag.
func NewWeightlessSystem(attachedAtStep, untilStep uint64, hasUntilStep bool) *WeightlessSystem {
	return &WeightlessSystem{attachedAtStep: attachedAtStep, untilStep: untilStep, hasUntilStep: hasUntilStep}
}

func (s *WeightlessSystem) Kind() SystemKind       { return SystemWeightless }
func (s *WeightlessSystem) AttachedAtStep() uint64 { return s.attachedAtStep }

func (s *WeightlessSystem) Prestep(eng *Engine, _ Entity) bool {
	until := s.untilStep
	if !s.hasUntilStep {
		until = math.MaxUint64
	}
	return eng.StepIndex() >= until
}

func (s *WeightlessSystem) Step(*Engine, Entity, EntityDraft) (System, bool) {
	return nil, false
}

// InvincibleSystem is the damage-immunity analogue of Weightless: a timed
// flag consulted by damage.go, dropping itself once expired.
type InvincibleSystem struct {
	attachedAtStep uint64
	untilStep      uint64
	hasUntilStep   bool
}

// NewInvincibleSystem constructs an Invincible system that expires at untilStep.
func NewInvincibleSystem(attachedAtStep, untilStep uint64, hasUntilStep bool) *InvincibleSystem {
	return &InvincibleSystem{attachedAtStep: attachedAtStep, untilStep: untilStep, hasUntilStep: hasUntilStep}
}

func (s *InvincibleSystem) Kind() SystemKind       { return SystemInvincible }
func (s *InvincibleSystem) AttachedAtStep() uint64 { return s.attachedAtStep }

func (s *InvincibleSystem) Prestep(eng *Engine, _ Entity) bool {
	until := s.untilStep
	if !s.hasUntilStep {
		until = math.MaxUint64
	}
	return eng.StepIndex() >= until
}

func (s *InvincibleSystem) Step(*Engine, Entity, EntityDraft) (System, bool) {
	return nil, false
}

// PlayerExpSystem applies one increment of experience toward Ability, then
// drops itself — it is re-spawned each time experience is awarded rather
// than persisting (mirrors the source's one-shot "Despawn" return).
type PlayerExpSystem struct {
	attachedAtStep uint64
	ability        string
	delta          int64
}

// NewPlayerExpSystem constructs a one-shot PlayerExp increment system.
func NewPlayerExpSystem(attachedAtStep uint64, ability string, delta int64) *PlayerExpSystem {
	return &PlayerExpSystem{attachedAtStep: attachedAtStep, ability: ability, delta: delta}
}

func (s *PlayerExpSystem) Kind() SystemKind       { return SystemPlayerExp }
func (s *PlayerExpSystem) AttachedAtStep() uint64 { return s.attachedAtStep }
func (s *PlayerExpSystem) Prestep(*Engine, Entity) bool { return true }

func (s *PlayerExpSystem) Step(eng *Engine, ent Entity, draft EntityDraft) (System, bool) {
	eng.EmitGameEvent(GameEvent{
		Kind:     GameEventPlayerExpChanged,
		EntityID: ent.ID(),
		Ability:  s.ability,
		Delta:    s.delta,
	})
	return nil, false
}
