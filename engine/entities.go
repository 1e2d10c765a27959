package engine

// entityCore implements the common Entity accessors and mutators shared by
// every concrete variant below, and supplies the default Prestep/StepInto
// behaviour (no-op: most of this game's logic lives in attached systems,
// not in entity-level step code, mirroring the source's default trait
// methods). Variants embed entityCore and override Prestep/StepInto only
// where they carry their own behaviour.
type entityCore struct {
	kind    EntityKind
	base    BaseEntityState
	systems []System
}

func (c *entityCore) Kind() EntityKind         { return c.kind }
func (c *entityCore) ID() EntityID             { return c.base.ID }
func (c *entityCore) Base() BaseEntityState    { return c.base }
func (c *entityCore) Position() (int32, int32) { return c.base.PositionX, c.base.PositionY }
func (c *entityCore) Velocity() (int32, int32) { return c.base.VelocityX, c.base.VelocityY }
func (c *entityCore) Size() (int32, int32)     { return c.base.SizeX, c.base.SizeY }
func (c *entityCore) Rect() Rectangle          { return c.base.Rect() }
func (c *entityCore) Systems() []System        { return c.systems }

func (c *entityCore) SetPosition(x, y int32) { c.base.PositionX, c.base.PositionY = x, y }
func (c *entityCore) SetVelocity(x, y int32) { c.base.VelocityX, c.base.VelocityY = x, y }
func (c *entityCore) SetSystems(s []System)  { c.systems = s }

func (c *entityCore) Prestep(*Engine) bool              { return false }
func (c *entityCore) StepInto(*Engine, EntityDraft) {}

func cloneSystems(systems []System) []System {
	return append([]System(nil), systems...)
}

// PlayerEntity is a player-controlled avatar.
type PlayerEntity struct {
	entityCore
	Name      string
	Health    int64
	MaxHealth int64
}

// NewPlayerEntity constructs a player entity.
func NewPlayerEntity(id EntityID, base BaseEntityState, name string, health, maxHealth int64) *PlayerEntity {
	base.ID = id
	return &PlayerEntity{entityCore: entityCore{kind: EntityPlayer, base: base}, Name: name, Health: health, MaxHealth: maxHealth}
}

func (e *PlayerEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// MobEntity is a hostile creature, keyed by a manifest mob type id.
type MobEntity struct {
	entityCore
	MobType int32
	Health  int64
}

// NewMobEntity constructs a mob entity.
func NewMobEntity(id EntityID, base BaseEntityState, mobType int32, health int64) *MobEntity {
	base.ID = id
	return &MobEntity{entityCore: entityCore{kind: EntityMob, base: base}, MobType: mobType, Health: health}
}

func (e *MobEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// MobSpawnEntity periodically spawns mobs of MobType up to MaxCount; the
// spawning policy itself lives outside the core (external collaborator),
// the entity is a passive configuration marker consulted by that policy.
type MobSpawnEntity struct {
	entityCore
	MobType  int32
	MaxCount int32
}

// NewMobSpawnEntity constructs a mob spawner entity.
func NewMobSpawnEntity(id EntityID, base BaseEntityState, mobType, maxCount int32) *MobSpawnEntity {
	base.ID = id
	return &MobSpawnEntity{entityCore: entityCore{kind: EntityMobSpawn, base: base}, MobType: mobType, MaxCount: maxCount}
}

func (e *MobSpawnEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// MobDamageEntity is a transient marker entity representing one damage
// instance dealt to a target, consumed by client-side damage-number
// rendering (out of scope) and otherwise inert in the core.
type MobDamageEntity struct {
	entityCore
	TargetID EntityID
	Amount   int64
}

// NewMobDamageEntity constructs a mob-damage marker entity.
func NewMobDamageEntity(id EntityID, base BaseEntityState, target EntityID, amount int64) *MobDamageEntity {
	base.ID = id
	return &MobDamageEntity{entityCore: entityCore{kind: EntityMobDamage, base: base}, TargetID: target, Amount: amount}
}

func (e *MobDamageEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// PlatformEntity is static, solid terrain consulted by AtomicMove/Gravity.
type PlatformEntity struct {
	entityCore
}

// NewPlatformEntity constructs a platform entity.
func NewPlatformEntity(id EntityID, base BaseEntityState) *PlatformEntity {
	base.ID = id
	return &PlatformEntity{entityCore: entityCore{kind: EntityPlatform, base: base}}
}

func (e *PlatformEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// PortalEntity teleports a player to another map on overlap; the actual
// transition is handled by a GameEvent handler (PlayerEnterPortal), the
// entity itself just carries the destination.
type PortalEntity struct {
	entityCore
	DestinationMap string
}

// NewPortalEntity constructs a portal entity.
func NewPortalEntity(id EntityID, base BaseEntityState, destinationMap string) *PortalEntity {
	base.ID = id
	return &PortalEntity{entityCore: entityCore{kind: EntityPortal, base: base}, DestinationMap: destinationMap}
}

func (e *PortalEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// ItemEntity is a pickup keyed by a manifest item id.
type ItemEntity struct {
	entityCore
	ItemID int32
}

// NewItemEntity constructs an item entity.
func NewItemEntity(id EntityID, base BaseEntityState, itemID int32) *ItemEntity {
	base.ID = id
	return &ItemEntity{entityCore: entityCore{kind: EntityItem, base: base}, ItemID: itemID}
}

func (e *ItemEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// NpcEntity is a non-player character keyed by a manifest npc id.
type NpcEntity struct {
	entityCore
	NpcID int32
}

// NewNpcEntity constructs an npc entity.
func NewNpcEntity(id EntityID, base BaseEntityState, npcID int32) *NpcEntity {
	base.ID = id
	return &NpcEntity{entityCore: entityCore{kind: EntityNpc, base: base}, NpcID: npcID}
}

func (e *NpcEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// MessageEntity is a chat message placed in the world, whose id is derived
// via DeriveMessageID so two replicas that independently construct the same
// (creator, step, text) message agree on its identity (S6).
type MessageEntity struct {
	entityCore
	CreatorID        EntityID
	Text             string
	DisappearsAtStep uint64
}

// NewMessageEntity constructs a message entity, deriving its id from
// (creator, step, text) rather than pulling one from the RNG.
func NewMessageEntity(base BaseEntityState, creator EntityID, step uint64, text string) *MessageEntity {
	base.ID = DeriveMessageID(creator, step, text)
	base.CreatedAtStep = step
	return &MessageEntity{
		entityCore:       entityCore{kind: EntityMessage, base: base},
		CreatorID:        creator,
		Text:             text,
		DisappearsAtStep: step + 90,
	}
}

func (e *MessageEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// TextEntity is a floating world-space label, optionally attached to
// another entity via an AttachSystem.
type TextEntity struct {
	entityCore
	Text             string
	DisappearsAtStep uint64
}

// NewTextEntity constructs a text entity that disappears at disappearsAtStep.
func NewTextEntity(id EntityID, base BaseEntityState, text string, disappearsAtStep uint64) *TextEntity {
	base.ID = id
	return &TextEntity{entityCore: entityCore{kind: EntityText, base: base}, Text: text, DisappearsAtStep: disappearsAtStep}
}

func (e *TextEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// RectEntity is an opaque coloured rectangle, used for debug overlays and
// simple scenery.
type RectEntity struct {
	entityCore
	Color uint32
}

// NewRectEntity constructs a rect entity.
func NewRectEntity(id EntityID, base BaseEntityState, color uint32) *RectEntity {
	base.ID = id
	return &RectEntity{entityCore: entityCore{kind: EntityRect, base: base}, Color: color}
}

func (e *RectEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}

// EmojiEntity is a transient emote bubble above a player or npc.
type EmojiEntity struct {
	entityCore
	EmojiID          int32
	DisappearsAtStep uint64
}

// NewEmojiEntity constructs an emoji entity that disappears at disappearsAtStep.
func NewEmojiEntity(id EntityID, base BaseEntityState, emojiID int32, disappearsAtStep uint64) *EmojiEntity {
	base.ID = id
	return &EmojiEntity{entityCore: entityCore{kind: EntityEmoji, base: base}, EmojiID: emojiID, DisappearsAtStep: disappearsAtStep}
}

func (e *EmojiEntity) CloneDraft() EntityDraft {
	cp := *e
	cp.systems = cloneSystems(e.systems)
	return &cp
}
