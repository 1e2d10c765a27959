package engine

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Package-level binary format: little-endian, length-prefixed strings and
// byte blobs, a fixed field order per variant (§9's "deterministic binary
// serialization" requirement). Every replica — server, client, zkVM guest
// — that encodes the same value produces the same bytes, and decoding
// round-trips exactly (P3).

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) bytesOf(b []byte) { e.buf.Write(b) }

func (e *encoder) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf.Write(tmp[:])
}

func (e *encoder) u64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf.Write(tmp[:])
}

func (e *encoder) i32(v int32) { e.u32(uint32(v)) }
func (e *encoder) i64(v int64) { e.u64(uint64(v)) }
func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) entityID(id EntityID) {
	b := id.Bytes()
	e.bytesOf(b[:])
}

type decoder struct {
	r   *bytes.Reader
	err error
}

func newDecoder(data []byte) *decoder {
	return &decoder{r: bytes.NewReader(data)}
}

func (d *decoder) fail() {
	if d.err == nil {
		d.err = ErrDeserialization
	}
}

func (d *decoder) u8() uint8 {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.fail()
		return 0
	}
	return b
}

func (d *decoder) readN(n int) []byte {
	if d.err != nil {
		return nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(d.r, out); err != nil {
		d.fail()
		return nil
	}
	return out
}

func (d *decoder) u32() uint32 {
	b := d.readN(4)
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.readN(8)
	if d.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) i32() int32 { return int32(d.u32()) }
func (d *decoder) i64() int64 { return int64(d.u64()) }

func (d *decoder) boolean() bool { return d.u8() != 0 }

func (d *decoder) str() string {
	n := d.u32()
	if d.err != nil {
		return ""
	}
	b := d.readN(int(n))
	if d.err != nil {
		return ""
	}
	return string(b)
}

func (d *decoder) entityID() EntityID {
	b := d.readN(16)
	if d.err != nil {
		return ZeroEntityID
	}
	return entityIDFromBytes(b)
}

func encodeBase(e *encoder, b BaseEntityState) {
	e.entityID(b.ID)
	e.i32(b.PositionX)
	e.i32(b.PositionY)
	e.i32(b.SizeX)
	e.i32(b.SizeY)
	e.i32(b.VelocityX)
	e.i32(b.VelocityY)
	if b.PlayerCreatorID != nil {
		e.boolean(true)
		e.entityID(*b.PlayerCreatorID)
	} else {
		e.boolean(false)
	}
	e.u64(b.CreatedAtStep)
}

func decodeBase(d *decoder) BaseEntityState {
	var b BaseEntityState
	b.ID = d.entityID()
	b.PositionX = d.i32()
	b.PositionY = d.i32()
	b.SizeX = d.i32()
	b.SizeY = d.i32()
	b.VelocityX = d.i32()
	b.VelocityY = d.i32()
	if d.boolean() {
		id := d.entityID()
		b.PlayerCreatorID = &id
	}
	b.CreatedAtStep = d.u64()
	return b
}

func encodeSystem(e *encoder, sys System) {
	e.u8(uint8(sys.Kind()))
	e.u64(sys.AttachedAtStep())
	switch s := sys.(type) {
	case *GravitySystem, *AtomicMoveSystem:
		// no extra fields
	case *InputSystem:
		e.u64(s.latestInputStep)
		e.u8(uint8(s.latestInput))
	case *AttachSystem:
		e.entityID(s.attachedTo)
		e.i32(s.offsetX)
		e.i32(s.offsetY)
	case *DisappearSystem:
		e.u64(s.atStep)
	case *WeightlessSystem:
		e.boolean(s.hasUntilStep)
		e.u64(s.untilStep)
	case *InvincibleSystem:
		e.boolean(s.hasUntilStep)
		e.u64(s.untilStep)
	case *PlayerExpSystem:
		e.str(s.ability)
		e.i64(s.delta)
	}
}

func decodeSystem(d *decoder) System {
	kind := SystemKind(d.u8())
	attachedAtStep := d.u64()
	switch kind {
	case SystemGravity:
		return NewGravitySystem(attachedAtStep)
	case SystemInput:
		sys := NewInputSystem(attachedAtStep)
		sys.latestInputStep = d.u64()
		sys.latestInput = InputValue(d.u8())
		return sys
	case SystemAtomicMove:
		return NewAtomicMoveSystem(attachedAtStep)
	case SystemAttach:
		attachedTo := d.entityID()
		offsetX := d.i32()
		offsetY := d.i32()
		return NewAttachSystem(attachedAtStep, attachedTo, offsetX, offsetY)
	case SystemDisappear:
		atStep := d.u64()
		return NewDisappearSystem(attachedAtStep, atStep)
	case SystemWeightless:
		hasUntil := d.boolean()
		untilStep := d.u64()
		return NewWeightlessSystem(attachedAtStep, untilStep, hasUntil)
	case SystemInvincible:
		hasUntil := d.boolean()
		untilStep := d.u64()
		return NewInvincibleSystem(attachedAtStep, untilStep, hasUntil)
	case SystemPlayerExp:
		ability := d.str()
		delta := d.i64()
		return NewPlayerExpSystem(attachedAtStep, ability, delta)
	default:
		d.fail()
		return nil
	}
}

func encodeSystems(e *encoder, systems []System) {
	e.u32(uint32(len(systems)))
	for _, s := range systems {
		encodeSystem(e, s)
	}
}

func decodeSystems(d *decoder) []System {
	n := d.u32()
	if d.err != nil {
		return nil
	}
	out := make([]System, 0, n)
	for i := uint32(0); i < n; i++ {
		s := decodeSystem(d)
		if d.err != nil {
			return nil
		}
		out = append(out, s)
	}
	return out
}

func encodeEntityInto(e *encoder, ent Entity) {
	e.u8(uint8(ent.Kind()))
	encodeBase(e, ent.Base())
	switch v := ent.(type) {
	case *PlayerEntity:
		e.str(v.Name)
		e.i64(v.Health)
		e.i64(v.MaxHealth)
	case *MobEntity:
		e.i32(v.MobType)
		e.i64(v.Health)
	case *MobSpawnEntity:
		e.i32(v.MobType)
		e.i32(v.MaxCount)
	case *MobDamageEntity:
		e.entityID(v.TargetID)
		e.i64(v.Amount)
	case *PlatformEntity:
		// no extra fields
	case *PortalEntity:
		e.str(v.DestinationMap)
	case *ItemEntity:
		e.i32(v.ItemID)
	case *NpcEntity:
		e.i32(v.NpcID)
	case *MessageEntity:
		e.entityID(v.CreatorID)
		e.str(v.Text)
		e.u64(v.DisappearsAtStep)
	case *TextEntity:
		e.str(v.Text)
		e.u64(v.DisappearsAtStep)
	case *RectEntity:
		e.u32(v.Color)
	case *EmojiEntity:
		e.i32(v.EmojiID)
		e.u64(v.DisappearsAtStep)
	}
	encodeSystems(e, ent.Systems())
}

func decodeEntityFrom(d *decoder) Entity {
	kind := EntityKind(d.u8())
	base := decodeBase(d)

	var ent Entity
	switch kind {
	case EntityPlayer:
		name := d.str()
		health := d.i64()
		maxHealth := d.i64()
		ent = NewPlayerEntity(base.ID, base, name, health, maxHealth)
	case EntityMob:
		mobType := d.i32()
		health := d.i64()
		ent = NewMobEntity(base.ID, base, mobType, health)
	case EntityMobSpawn:
		mobType := d.i32()
		maxCount := d.i32()
		ent = NewMobSpawnEntity(base.ID, base, mobType, maxCount)
	case EntityMobDamage:
		target := d.entityID()
		amount := d.i64()
		ent = NewMobDamageEntity(base.ID, base, target, amount)
	case EntityPlatform:
		ent = NewPlatformEntity(base.ID, base)
	case EntityPortal:
		dest := d.str()
		ent = NewPortalEntity(base.ID, base, dest)
	case EntityItem:
		itemID := d.i32()
		ent = NewItemEntity(base.ID, base, itemID)
	case EntityNpc:
		npcID := d.i32()
		ent = NewNpcEntity(base.ID, base, npcID)
	case EntityMessage:
		creator := d.entityID()
		text := d.str()
		disappearsAtStep := d.u64()
		me := &MessageEntity{entityCore: entityCore{kind: EntityMessage, base: base}, CreatorID: creator, Text: text, DisappearsAtStep: disappearsAtStep}
		ent = me
	case EntityText:
		text := d.str()
		disappearsAtStep := d.u64()
		ent = NewTextEntity(base.ID, base, text, disappearsAtStep)
	case EntityRect:
		color := d.u32()
		ent = NewRectEntity(base.ID, base, color)
	case EntityEmoji:
		emojiID := d.i32()
		disappearsAtStep := d.u64()
		ent = NewEmojiEntity(base.ID, base, emojiID, disappearsAtStep)
	default:
		d.fail()
		return nil
	}

	systems := decodeSystems(d)
	if d.err != nil {
		return nil
	}
	if setter, ok := ent.(interface{ SetSystems([]System) }); ok {
		setter.SetSystems(systems)
	}
	return ent
}

// EncodeEntity renders ent in the engine's deterministic binary format.
func EncodeEntity(ent Entity) []byte {
	e := &encoder{}
	encodeEntityInto(e, ent)
	return e.buf.Bytes()
}

// DecodeEntity parses an entity previously produced by EncodeEntity.
func DecodeEntity(data []byte) (Entity, error) {
	d := newDecoder(data)
	ent := decodeEntityFrom(d)
	if d.err != nil {
		return nil, d.err
	}
	return ent, nil
}

func encodeEventInto(e *encoder, ev EngineEvent) {
	e.u8(uint8(ev.Kind))
	e.boolean(ev.IsNonDeterminism)
	switch ev.Kind {
	case EventSpawnEntity:
		encodeEntityInto(e, ev.Entity)
	case EventRemoveEntity:
		e.entityID(ev.EntityID)
	case EventInput:
		e.entityID(ev.EntityID)
		e.u8(uint8(ev.Input))
	case EventSpawnSystem, EventRemoveSystem:
		e.entityID(ev.EntityID)
		encodeSystem(e, ev.System)
	case EventNoop:
	}
}

func decodeEventFrom(d *decoder) EngineEvent {
	var ev EngineEvent
	ev.Kind = EventKind(d.u8())
	ev.IsNonDeterminism = d.boolean()
	switch ev.Kind {
	case EventSpawnEntity:
		ev.Entity = decodeEntityFrom(d)
	case EventRemoveEntity:
		ev.EntityID = d.entityID()
	case EventInput:
		ev.EntityID = d.entityID()
		ev.Input = InputValue(d.u8())
	case EventSpawnSystem, EventRemoveSystem:
		ev.EntityID = d.entityID()
		ev.System = decodeSystem(d)
	case EventNoop:
	}
	return ev
}

// EncodeEvent renders ev in the engine's deterministic binary format.
func EncodeEvent(ev EngineEvent) []byte {
	e := &encoder{}
	encodeEventInto(e, ev)
	return e.buf.Bytes()
}

// DecodeEvent parses an event previously produced by EncodeEvent.
func DecodeEvent(data []byte) (EngineEvent, error) {
	d := newDecoder(data)
	ev := decodeEventFrom(d)
	if d.err != nil {
		return EngineEvent{}, d.err
	}
	return ev, nil
}

// StepEvent pairs an event with the step it is registered against, the
// unit the zkVM guest's input stream and the network replay log are both
// built from.
type StepEvent struct {
	Step  uint64
	Event EngineEvent
}

// EncodeEventStream renders the zkVM guest's input format: a step count
// followed by every event to apply before reaching it, each tagged with
// its target step (§4.18).
func EncodeEventStream(stepCount uint64, events []StepEvent) []byte {
	e := &encoder{}
	e.u64(stepCount)
	e.u32(uint32(len(events)))
	for _, se := range events {
		e.u64(se.Step)
		encodeEventInto(e, se.Event)
	}
	return e.buf.Bytes()
}

// DecodeEventStream parses a buffer produced by EncodeEventStream.
func DecodeEventStream(data []byte) (uint64, []StepEvent, error) {
	d := newDecoder(data)
	stepCount := d.u64()
	n := d.u32()
	if d.err != nil {
		return 0, nil, d.err
	}
	out := make([]StepEvent, 0, n)
	for i := uint32(0); i < n; i++ {
		step := d.u64()
		ev := decodeEventFrom(d)
		if d.err != nil {
			return 0, nil, d.err
		}
		out = append(out, StepEvent{Step: step, Event: ev})
	}
	return stepCount, out, nil
}

// EncodeEngineState renders a full, deterministic snapshot of eng: its
// step index, RNG state, world bounds, entity table (sorted ascending by
// id), and every not-yet-applied queued event. Used by the persistence
// backend to save/restore a running engine across process restarts.
func EncodeEngineState(eng *Engine) []byte {
	e := &encoder{}
	e.u64(eng.stepIndex)
	e.u64(eng.rng.Seed())
	e.i32(eng.worldSize[0])
	e.i32(eng.worldSize[1])
	e.u64(eng.nextEventID)

	entities := eng.AllEntities()
	e.u32(uint32(len(entities)))
	for _, ent := range entities {
		encodeEntityInto(e, ent)
	}

	steps := make([]uint64, 0, len(eng.eventLog))
	for step := range eng.eventLog {
		steps = append(steps, step)
	}
	sortUint64s(steps)

	e.u32(uint32(len(steps)))
	for _, step := range steps {
		e.u64(step)
		evs := eng.eventLog[step]
		e.u32(uint32(len(evs)))
		for _, le := range evs {
			e.u64(le.id)
			encodeEventInto(e, le.event)
		}
	}

	return e.buf.Bytes()
}

// DecodeEngineState parses a buffer produced by EncodeEngineState into a
// live, runnable Engine.
func DecodeEngineState(data []byte) (*Engine, error) {
	d := newDecoder(data)

	stepIndex := d.u64()
	seed := d.u64()
	width := d.i32()
	height := d.i32()
	nextEventID := d.u64()

	if d.err != nil {
		return nil, d.err
	}

	eng, err := NewEngine(seed, width, height)
	if err != nil {
		return nil, err
	}
	eng.stepIndex = stepIndex
	eng.nextEventID = nextEventID

	entityCount := d.u32()
	for i := uint32(0); i < entityCount; i++ {
		ent := decodeEntityFrom(d)
		if d.err != nil {
			return nil, d.err
		}
		eng.entities[ent.ID()] = ent
	}

	stepCount := d.u32()
	for i := uint32(0); i < stepCount; i++ {
		step := d.u64()
		evCount := d.u32()
		logged := make([]loggedEvent, 0, evCount)
		for j := uint32(0); j < evCount; j++ {
			id := d.u64()
			ev := decodeEventFrom(d)
			if d.err != nil {
				return nil, d.err
			}
			logged = append(logged, loggedEvent{id: id, event: ev})
		}
		eng.eventLog[step] = logged
	}

	if d.err != nil {
		return nil, d.err
	}
	return eng, nil
}

func sortUint64s(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
