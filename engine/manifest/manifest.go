// Package manifest loads the static game-data tables (mob types, item
// types, npc types) that entity payloads reference by integer id. The
// manifest itself is not part of the deterministic replay log — it is
// side-loaded data every replica is expected to hold an identical copy of
// out of band, the same way the source's map/mob/item definitions ship
// alongside the simulation binary rather than inside it (§4.13).
package manifest

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// MobDef is the static definition of one mob type.
type MobDef struct {
	ID            int32
	Name          string
	MaxHealth     int64
	Accuracy      int64
	Avoidability  int64
	Level         int64
}

// ItemDef is the static definition of one item type.
type ItemDef struct {
	ID   int32
	Name string
	Kind string
}

// NpcDef is the static definition of one npc type.
type NpcDef struct {
	ID         int32
	Name       string
	DialogueID int32
}

// Manifest is the fully parsed game-data table, keyed by id for O(1)
// lookup during stepping.
type Manifest struct {
	Mobs  map[int32]MobDef
	Items map[int32]ItemDef
	Npcs  map[int32]NpcDef
}

// Parse reads a manifest from raw JSON of the form:
//
//	{
//	  "mobs":  [{"id":1,"name":"slime","max_health":10,"accuracy":5,"avoidability":2,"level":1}],
//	  "items": [{"id":1,"name":"potion","kind":"consumable"}],
//	  "npcs":  [{"id":1,"name":"elder","dialogue_id":1}]
//	}
//
// gjson is used rather than encoding/json so malformed or partially-present
// sections degrade to empty tables instead of failing the whole parse —
// manifests are authored by hand and a missing section is common during
// content iteration.
func Parse(raw []byte) (*Manifest, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("manifest: invalid json")
	}
	root := gjson.ParseBytes(raw)

	m := &Manifest{
		Mobs:  make(map[int32]MobDef),
		Items: make(map[int32]ItemDef),
		Npcs:  make(map[int32]NpcDef),
	}

	root.Get("mobs").ForEach(func(_, v gjson.Result) bool {
		id := int32(v.Get("id").Int())
		m.Mobs[id] = MobDef{
			ID:           id,
			Name:         v.Get("name").String(),
			MaxHealth:    v.Get("max_health").Int(),
			Accuracy:     v.Get("accuracy").Int(),
			Avoidability: v.Get("avoidability").Int(),
			Level:        v.Get("level").Int(),
		}
		return true
	})

	root.Get("items").ForEach(func(_, v gjson.Result) bool {
		id := int32(v.Get("id").Int())
		m.Items[id] = ItemDef{
			ID:   id,
			Name: v.Get("name").String(),
			Kind: v.Get("kind").String(),
		}
		return true
	})

	root.Get("npcs").ForEach(func(_, v gjson.Result) bool {
		id := int32(v.Get("id").Int())
		m.Npcs[id] = NpcDef{
			ID:         id,
			Name:       v.Get("name").String(),
			DialogueID: int32(v.Get("dialogue_id").Int()),
		}
		return true
	})

	return m, nil
}

// Mob looks up a mob definition by id.
func (m *Manifest) Mob(id int32) (MobDef, bool) {
	def, ok := m.Mobs[id]
	return def, ok
}

// Item looks up an item definition by id.
func (m *Manifest) Item(id int32) (ItemDef, bool) {
	def, ok := m.Items[id]
	return def, ok
}

// Npc looks up an npc definition by id.
func (m *Manifest) Npc(id int32) (NpcDef, bool) {
	def, ok := m.Npcs[id]
	return def, ok
}
