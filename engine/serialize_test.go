package engine

import (
	"bytes"
	"testing"
)

// entityFixtures builds one instance of every concrete Entity variant,
// each carrying at least one system, so EncodeEntity/DecodeEntity is
// exercised against every branch of the kind switch.
func entityFixtures(t *testing.T) []Entity {
	t.Helper()
	creator := EntityID{Hi: 9, Lo: 9}

	player := NewPlayerEntity(EntityID{Hi: 1, Lo: 1}, BaseEntityState{PositionX: 1, PositionY: 2, SizeX: 16, SizeY: 16, PlayerCreatorID: &creator, CreatedAtStep: 4}, "alice", 80, 100)
	player.SetSystems([]System{
		NewGravitySystem(0),
		NewInputSystem(0),
		NewAtomicMoveSystem(1),
		NewAttachSystem(2, creator, 3, -3),
		NewDisappearSystem(3, 500),
		NewWeightlessSystem(4, 50, true),
		NewInvincibleSystem(5, 0, false),
		NewPlayerExpSystem(6, "fireball", 10),
	})

	mob := NewMobEntity(EntityID{Hi: 2, Lo: 1}, BaseEntityState{PositionX: 5, PositionY: 5, SizeX: 8, SizeY: 8}, 3, 40)
	mob.SetSystems([]System{NewGravitySystem(0)})

	spawner := NewMobSpawnEntity(EntityID{Hi: 3, Lo: 1}, BaseEntityState{}, 3, 30)
	damage := NewMobDamageEntity(EntityID{Hi: 4, Lo: 1}, BaseEntityState{}, EntityID{Hi: 2, Lo: 1}, 12)
	platform := NewPlatformEntity(EntityID{Hi: 5, Lo: 1}, BaseEntityState{PositionX: 0, PositionY: 0, SizeX: 200, SizeY: 25})
	portal := NewPortalEntity(EntityID{Hi: 6, Lo: 1}, BaseEntityState{}, "map-2")
	item := NewItemEntity(EntityID{Hi: 7, Lo: 1}, BaseEntityState{}, 42)
	npc := NewNpcEntity(EntityID{Hi: 8, Lo: 1}, BaseEntityState{}, 7)
	message := NewMessageEntity(BaseEntityState{}, EntityID{Hi: 1, Lo: 1}, 100, "hello world")
	text := NewTextEntity(EntityID{Hi: 9, Lo: 2}, BaseEntityState{}, "floating label", 200)
	rect := NewRectEntity(EntityID{Hi: 10, Lo: 1}, BaseEntityState{}, 0xff00ff)
	emoji := NewEmojiEntity(EntityID{Hi: 11, Lo: 1}, BaseEntityState{}, 5, 150)

	return []Entity{player, mob, spawner, damage, platform, portal, item, npc, message, text, rect, emoji}
}

// TestEntityRoundTripAllKinds covers P3 for every EntityKind variant: each
// must decode to a value that re-encodes identically.
func TestEntityRoundTripAllKinds(t *testing.T) {
	for _, ent := range entityFixtures(t) {
		encoded := EncodeEntity(ent)
		decoded, err := DecodeEntity(encoded)
		if err != nil {
			t.Fatalf("DecodeEntity(%s): %v", ent.Kind(), err)
		}
		if decoded.Kind() != ent.Kind() {
			t.Fatalf("decoded kind = %v, want %v", decoded.Kind(), ent.Kind())
		}
		if !bytes.Equal(encoded, EncodeEntity(decoded)) {
			t.Fatalf("%s: round-trip not stable", ent.Kind())
		}
	}
}

// TestEventRoundTripAllKinds covers P3 for every EventKind variant.
func TestEventRoundTripAllKinds(t *testing.T) {
	id := EntityID{Hi: 1, Lo: 1}
	ent := NewPlayerEntity(id, BaseEntityState{}, "p", 10, 10)

	events := []EngineEvent{
		NewSpawnEntityEvent(ent, true),
		NewRemoveEntityEvent(id, false),
		NewInputEvent(id, InputUseAbility, true),
		NewSpawnSystemEvent(id, NewGravitySystem(3), false),
		NewRemoveSystemEvent(id, NewGravitySystem(3), false),
		{Kind: EventNoop},
	}

	for _, ev := range events {
		encoded := EncodeEvent(ev)
		decoded, err := DecodeEvent(encoded)
		if err != nil {
			t.Fatalf("DecodeEvent(%v): %v", ev.Kind, err)
		}
		if !bytes.Equal(encoded, EncodeEvent(decoded)) {
			t.Fatalf("%v: event round-trip not stable", ev.Kind)
		}
	}
}

// TestEventStreamRoundTrip covers the zkVM guest's input format: encoding
// then decoding a step count and an ordered list of StepEvents must be the
// identity.
func TestEventStreamRoundTrip(t *testing.T) {
	id := EntityID{Hi: 4, Lo: 4}
	events := []StepEvent{
		{Step: 0, Event: NewInputEvent(id, InputMoveRight, true)},
		{Step: 3, Event: NewInputEvent(id, InputJump, true)},
		{Step: 3, Event: NewInputEvent(id, InputStopMoveX, true)},
	}

	encoded := EncodeEventStream(10, events)
	stepCount, decoded, err := DecodeEventStream(encoded)
	if err != nil {
		t.Fatalf("DecodeEventStream: %v", err)
	}
	if stepCount != 10 {
		t.Fatalf("stepCount = %d, want 10", stepCount)
	}
	if len(decoded) != len(events) {
		t.Fatalf("decoded %d events, want %d", len(decoded), len(events))
	}
	for i, se := range decoded {
		if se.Step != events[i].Step {
			t.Fatalf("event %d: step = %d, want %d", i, se.Step, events[i].Step)
		}
	}
}

// TestDecodeEntityRejectsTruncatedInput covers the deserialization failure
// path (§7 Deserialization): a truncated buffer must fail rather than
// silently returning a zero-valued entity.
func TestDecodeEntityRejectsTruncatedInput(t *testing.T) {
	full := EncodeEntity(NewPlatformEntity(EntityID{Hi: 1}, BaseEntityState{PositionX: 1, PositionY: 1, SizeX: 1, SizeY: 1}))
	if _, err := DecodeEntity(full[:len(full)-1]); err != ErrDeserialization {
		t.Fatalf("DecodeEntity(truncated) = %v, want ErrDeserialization", err)
	}
}
