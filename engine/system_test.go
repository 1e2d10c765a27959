package engine

import "testing"

// TestSystemOrderingOldestFirst covers P5: systems attached at an earlier
// step always run before systems attached at a later step on the same
// entity, regardless of the order they appear in the entity's system list.
func TestSystemOrderingOldestFirst(t *testing.T) {
	var order []SystemKind
	eng, err := NewEngine(5, 0, 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	id := eng.GenerateID()
	ent := NewPlayerEntity(id, BaseEntityState{}, "p", 10, 10)
	// Installed out of attach-step order: newest first, oldest last.
	ent.SetSystems([]System{
		&recordingSystem{kind: SystemKind(3), attachedAtStep: 5, order: &order},
		&recordingSystem{kind: SystemKind(1), attachedAtStep: 0, order: &order},
		&recordingSystem{kind: SystemKind(2), attachedAtStep: 2, order: &order},
	})
	eng.SpawnEntityNow(ent)

	eng.StepTo(1)
	if err := eng.Err(); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	want := []SystemKind{SystemKind(1), SystemKind(2), SystemKind(3)}
	if len(order) != len(want) {
		t.Fatalf("ran %d systems, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("system run order = %v, want %v", order, want)
		}
	}
}

// recordingSystem is a test-only System that appends its kind to order
// every time Step runs, used to observe dispatch order without depending
// on any production system's side effects.
type recordingSystem struct {
	kind           SystemKind
	attachedAtStep uint64
	order          *[]SystemKind
}

func (s *recordingSystem) Kind() SystemKind       { return s.kind }
func (s *recordingSystem) AttachedAtStep() uint64 { return s.attachedAtStep }
func (s *recordingSystem) Prestep(*Engine, Entity) bool { return true }
func (s *recordingSystem) Step(eng *Engine, ent Entity, draft EntityDraft) (System, bool) {
	*s.order = append(*s.order, s.kind)
	return s, true
}

// TestGravityDecrementsVelocity covers S4's Gravity half: an entity with no
// Weightless system and not resting on a platform loses 20 from velocity.y
// every step.
func TestGravityDecrementsVelocity(t *testing.T) {
	eng, err := NewEngine(5, 0, 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	id := eng.GenerateID()
	ent := NewPlayerEntity(id, BaseEntityState{PositionX: 0, PositionY: 1000, SizeX: 10, SizeY: 10}, "p", 10, 10)
	ent.SetSystems([]System{NewGravitySystem(0)})
	eng.SpawnEntityNow(ent)

	eng.StepTo(3)
	if err := eng.Err(); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	got, _ := eng.EntityByID(id)
	_, vy := got.Velocity()
	if vy != -60 {
		t.Fatalf("velocity.y after 3 steps of unclamped gravity = %d, want -60", vy)
	}
}

// TestWeightlessClampsVelocity covers S4's Weightless half: an entity
// carrying a Weightless system never has velocity.y driven below zero.
func TestWeightlessClampsVelocity(t *testing.T) {
	eng, err := NewEngine(5, 0, 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	id := eng.GenerateID()
	ent := NewPlayerEntity(id, BaseEntityState{PositionX: 0, PositionY: 1000, SizeX: 10, SizeY: 10}, "p", 10, 10)
	ent.SetSystems([]System{
		NewGravitySystem(0),
		NewWeightlessSystem(0, 0, false),
	})
	eng.SpawnEntityNow(ent)

	eng.StepTo(5)
	if err := eng.Err(); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	got, _ := eng.EntityByID(id)
	_, vy := got.Velocity()
	if vy < 0 {
		t.Fatalf("velocity.y = %d with Weightless attached, want >= 0", vy)
	}
}

// TestAttachRejectsSecondAttachSystem exercises the AssertionFailure
// invariant (§7): installing a second AttachSystem on the same entity must
// halt the engine rather than silently letting both run.
func TestAttachRejectsSecondAttachSystem(t *testing.T) {
	eng, err := NewEngine(5, 0, 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	anchor := eng.GenerateID()
	eng.SpawnEntityNow(NewPlatformEntity(anchor, BaseEntityState{PositionX: 0, PositionY: 0, SizeX: 10, SizeY: 10}))

	id := eng.GenerateID()
	ent := NewPlayerEntity(id, BaseEntityState{}, "p", 10, 10)
	ent.SetSystems([]System{
		NewAttachSystem(0, anchor, 0, 0),
		NewAttachSystem(1, anchor, 1, 1),
	})
	eng.SpawnEntityNow(ent)

	eng.StepTo(1)
	if eng.Err() == nil {
		t.Fatal("expected fatal assertion failure from a second AttachSystem, got nil")
	}
}
