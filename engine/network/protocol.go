// Package network defines the wire protocol a transport adapter (such as
// cmd/gameserver's WebSocket server) uses to carry engine state and events
// between an authoritative server and its clients (§6, §4.14). The core
// engine package only consumes RemoteEngineEvent/EngineState; everything
// else here exists so the protocol enumeration has a single, complete,
// runnable home, recovered from
// original_source/packages/game_common/src/network.rs.
package network

import (
	"fmt"

	"github.com/keindproject/keind/engine"
)

// ActionKind tags which Action variant is populated: a message a client
// sends to the server.
type ActionKind uint8

const (
	ActionCreatePlayer ActionKind = iota + 1
	ActionLoginPlayer
	ActionLogoutPlayer
	ActionRemoteEngineEvent
	ActionRequestEngineReload
	ActionPing
)

func (k ActionKind) String() string {
	switch k {
	case ActionCreatePlayer:
		return "create_player"
	case ActionLoginPlayer:
		return "login_player"
	case ActionLogoutPlayer:
		return "logout_player"
	case ActionRemoteEngineEvent:
		return "remote_engine_event"
	case ActionRequestEngineReload:
		return "request_engine_reload"
	case ActionPing:
		return "ping"
	default:
		return "unknown"
	}
}

// Action is a message sent from a client to the server.
type Action struct {
	Kind ActionKind `json:"kind"`

	// CreatePlayer, LoginPlayer
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// RemoteEngineEvent
	Step             uint64         `json:"step,omitempty"`
	Event            *RemoteEvent   `json:"event,omitempty"`
	IsNonDeterminism bool           `json:"is_non_determinism,omitempty"`

	// RequestEngineReload
	MapInstanceID string `json:"map_instance_id,omitempty"`
}

// ResponseKind tags which Response variant is populated: a message the
// server sends to a client.
type ResponseKind uint8

const (
	ResponseEngineState ResponseKind = iota + 1
	ResponseRemoteEngineEvents
	ResponseEngineStats
	ResponseTick
	ResponsePlayerLoggedIn
	ResponsePlayerState
	ResponsePlayerInventoryRecord
	ResponsePlayerExitMap
	ResponseLoginError
	ResponsePong
	ResponseRemoteEventRejected
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseEngineState:
		return "engine_state"
	case ResponseRemoteEngineEvents:
		return "remote_engine_events"
	case ResponseEngineStats:
		return "engine_stats"
	case ResponseTick:
		return "tick"
	case ResponsePlayerLoggedIn:
		return "player_logged_in"
	case ResponsePlayerState:
		return "player_state"
	case ResponsePlayerInventoryRecord:
		return "player_inventory_record"
	case ResponsePlayerExitMap:
		return "player_exit_map"
	case ResponseLoginError:
		return "login_error"
	case ResponsePong:
		return "pong"
	case ResponseRemoteEventRejected:
		return "remote_event_rejected"
	default:
		return "unknown"
	}
}

// RemoteEvent is the wire representation of an engine.EngineEvent: unlike
// the core type, it carries a JSON-friendly shape rather than embedding
// Entity/System interface values directly, since those encode via the
// engine's binary format, not JSON.
type RemoteEvent struct {
	Kind             string `json:"kind"`
	IsNonDeterminism bool   `json:"is_non_determinism"`
	EntityID         string `json:"entity_id,omitempty"`
	EntityBinary     []byte `json:"entity_binary,omitempty"`
	SystemBinary     []byte `json:"system_binary,omitempty"`
	Input            uint8  `json:"input,omitempty"`
}

// EncodeRemoteEvent renders an engine.EngineEvent as its wire form.
func EncodeRemoteEvent(ev engine.EngineEvent) RemoteEvent {
	out := RemoteEvent{Kind: ev.Kind.String(), IsNonDeterminism: ev.IsNonDeterminism}
	switch ev.Kind {
	case engine.EventSpawnEntity:
		out.EntityBinary = engine.EncodeEntity(ev.Entity)
	case engine.EventRemoveEntity:
		out.EntityID = ev.EntityID.String()
	case engine.EventInput:
		out.EntityID = ev.EntityID.String()
		out.Input = uint8(ev.Input)
	case engine.EventSpawnSystem, engine.EventRemoveSystem:
		out.EntityID = ev.EntityID.String()
		// Systems aren't independently addressable over the wire in this
		// protocol version; RemoteEngineEvent carrying a system change is
		// accepted but left for a future protocol revision to fill in
		// SystemBinary via a dedicated encoder.
	}
	return out
}

// DecodeRemoteEvent converts a wire RemoteEvent back into an
// engine.EngineEvent, the inverse of EncodeRemoteEvent. SpawnEntity events
// carry the entity binary payload, decoded via engine.DecodeEntity;
// RemoveEntity, SpawnSystem and RemoveSystem events carry only the target
// EntityID, parsed from its hex string form, and Input events carry that
// EntityID plus the input value.
func DecodeRemoteEvent(ev RemoteEvent) (engine.EngineEvent, error) {
	kind, err := parseEventKind(ev.Kind)
	if err != nil {
		return engine.EngineEvent{}, err
	}

	out := engine.EngineEvent{Kind: kind, IsNonDeterminism: ev.IsNonDeterminism}

	switch kind {
	case engine.EventSpawnEntity:
		ent, err := engine.DecodeEntity(ev.EntityBinary)
		if err != nil {
			return engine.EngineEvent{}, err
		}
		out.Entity = ent
	case engine.EventRemoveEntity:
		id, err := engine.ParseEntityID(ev.EntityID)
		if err != nil {
			return engine.EngineEvent{}, err
		}
		out.EntityID = id
	case engine.EventInput:
		id, err := engine.ParseEntityID(ev.EntityID)
		if err != nil {
			return engine.EngineEvent{}, err
		}
		out.EntityID = id
		out.Input = engine.InputValue(ev.Input)
	case engine.EventSpawnSystem, engine.EventRemoveSystem:
		id, err := engine.ParseEntityID(ev.EntityID)
		if err != nil {
			return engine.EngineEvent{}, err
		}
		out.EntityID = id
	}
	return out, nil
}

func parseEventKind(s string) (engine.EventKind, error) {
	switch s {
	case "spawn_entity":
		return engine.EventSpawnEntity, nil
	case "remove_entity":
		return engine.EventRemoveEntity, nil
	case "input":
		return engine.EventInput, nil
	case "spawn_system":
		return engine.EventSpawnSystem, nil
	case "remove_system":
		return engine.EventRemoveSystem, nil
	case "noop", "":
		return engine.EventNoop, nil
	default:
		return 0, fmt.Errorf("network: unknown event kind %q", s)
	}
}

// Response is a message sent from the server to a client.
type Response struct {
	Kind ResponseKind `json:"kind"`

	// EngineState
	EngineBinary []byte `json:"engine_binary,omitempty"`

	// EngineState: the VRF-derived seed commitment for this map instance
	// (§4.16) — Seed is the 32-bit value actually fed to the engine's RNG,
	// SeedProofBeta/SeedProofPi let a client independently verify it via
	// crypto.VerifyVRFProof before trusting it.
	Seed          uint64 `json:"seed,omitempty"`
	SeedProofBeta []byte `json:"seed_proof_beta,omitempty"`
	SeedProofPi   []byte `json:"seed_proof_pi,omitempty"`

	// RemoteEngineEvents
	Step   uint64        `json:"step,omitempty"`
	Events []RemoteEvent `json:"events,omitempty"`

	// EngineStats
	EntityCount int    `json:"entity_count,omitempty"`
	StepIndex   uint64 `json:"step_index,omitempty"`

	// Tick
	TickStep uint64 `json:"tick_step,omitempty"`

	// PlayerLoggedIn
	SessionToken string `json:"session_token,omitempty"`
	PlayerID     string `json:"player_id,omitempty"`

	// PlayerState
	PlayerBinary []byte `json:"player_binary,omitempty"`

	// PlayerInventoryRecord
	InventoryJSON string `json:"inventory_json,omitempty"`

	// PlayerExitMap
	DestinationMap string `json:"destination_map,omitempty"`

	// LoginError, RemoteEventRejected
	Reason string `json:"reason,omitempty"`

	// RemoteEventRejected: the infrastructure/errors.ErrorCode the rejection
	// was classified under, so a client can distinguish a transient
	// HistoryTooShort (resync and retry) from a permanent AssertionFailure.
	Code string `json:"code,omitempty"`
}
