package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keindproject/keind/engine"
	"github.com/keindproject/keind/engine/network"
	"github.com/keindproject/keind/infrastructure/crypto"
	slmetrics "github.com/keindproject/keind/infrastructure/metrics"
)

// mapInstance owns one RewindableEngine and the Ticker driving it. Per §5,
// the engine itself has no internal locking; mu is the one mutex guarding
// every call into eng/ticker from this adapter's connection-handling
// goroutines and its own tick loop.
type mapInstance struct {
	mu sync.Mutex

	id     string
	eng    *engine.RewindableEngine
	ticker *engine.Ticker

	seed      uint64
	proofBeta []byte
	proofPi   []byte

	subscribers map[*connWriter]struct{}

	stop chan struct{}
}

// snapshotKey is the PersistenceBackend key a map instance's state is
// saved/loaded under.
func snapshotKey(mapID string) string { return "snapshot/" + mapID }

// newMapInstance derives the VRF seed commitment for mapID, hydrates the
// engine from a persisted snapshot when one exists, and starts the
// instance's own tick loop (§4.16, §4.17).
func (s *gameServer) newMapInstance(ctx context.Context, mapID string) (*mapInstance, error) {
	proof, err := crypto.GenerateVRFProof(s.vrfKey, []byte(mapID))
	if err != nil {
		return nil, fmt.Errorf("gameserver: vrf proof for %q: %w", mapID, err)
	}
	seed := deriveSeed(proof.Beta)

	eng, startStep, startTime, err := s.hydrateEngine(ctx, mapID, seed)
	if err != nil {
		return nil, err
	}

	inst := &mapInstance{
		id:          mapID,
		eng:         eng,
		ticker:      engine.NewTickerFromStep(eng, s.stepsPerSecond, startTime, startStep),
		seed:        seed,
		proofBeta:   proof.Beta,
		proofPi:     crypto.SerializeVRFProof(proof.Pi),
		subscribers: make(map[*connWriter]struct{}),
		stop:        make(chan struct{}),
	}

	eng.SetGameEventHandler(func(step uint64, evs []engine.GameEvent) {
		inst.broadcastGameEvents(evs)
	})

	go inst.tickLoop(s.metrics)
	return inst, nil
}

// hydrateEngine loads a persisted snapshot for mapID if the store has one,
// otherwise constructs a fresh engine at the VRF-derived seed.
func (s *gameServer) hydrateEngine(ctx context.Context, mapID string, seed uint64) (*engine.RewindableEngine, uint64, time.Time, error) {
	if s.store != nil {
		if data, err := s.loadFromStore(ctx, snapshotKey(mapID)); err == nil {
			eng, err := engine.DecodeEngineState(data)
			if err != nil {
				return nil, 0, time.Time{}, fmt.Errorf("gameserver: decode snapshot for %q: %w", mapID, err)
			}
			rewindable := engine.NewRewindableEngineFromState(eng, s.trailingStateLen, s.metrics)
			return rewindable, eng.StepIndex(), engine.Now(), nil
		}
	}

	rewindable, err := engine.NewRewindableEngine(seed, s.worldWidth, s.worldHeight, s.trailingStateLen, s.metrics)
	if err != nil {
		return nil, 0, time.Time{}, fmt.Errorf("gameserver: construct engine for %q: %w", mapID, err)
	}
	return rewindable, 0, engine.Now(), nil
}

// deriveSeed turns a VRF beta output into the 32-bit engine seed, per
// §4.16. A zero result is bumped to 1 since the engine rejects a zero RNG
// seed (ErrRNGSeedZero).
func deriveSeed(beta []byte) uint64 {
	if len(beta) < 4 {
		return 1
	}
	seed := uint64(binary.BigEndian.Uint32(beta[:4]))
	if seed == 0 {
		seed = 1
	}
	return seed
}

// tickLoop advances the instance's engine on its own schedule until stop
// is closed, independent of any connection's read loop.
func (inst *mapInstance) tickLoop(metrics *slmetrics.Metrics) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-inst.stop:
			return
		case now := <-ticker.C:
			inst.mu.Lock()
			inst.ticker.Tick(now)
			step := inst.eng.StepIndex()
			inst.mu.Unlock()
			inst.broadcastTick(step)
		}
	}
}

func (inst *mapInstance) broadcastTick(step uint64) {
	resp := network.Response{Kind: network.ResponseTick, TickStep: step}
	inst.broadcast(resp)
}

func (inst *mapInstance) broadcastGameEvents(evs []engine.GameEvent) {
	if len(evs) == 0 {
		return
	}
	// Game events are domain-level notifications (§3); this demonstration
	// adapter only needs to nudge subscribers that state changed, which
	// ResponseEngineStats already conveys without a dedicated wire type
	// per event kind.
	inst.mu.Lock()
	stats := network.Response{
		Kind:        network.ResponseEngineStats,
		EntityCount: inst.eng.EntityCount(),
		StepIndex:   inst.eng.StepIndex(),
	}
	inst.mu.Unlock()
	inst.broadcast(stats)
}

func (inst *mapInstance) broadcast(resp network.Response) {
	inst.mu.Lock()
	subs := make([]*connWriter, 0, len(inst.subscribers))
	for c := range inst.subscribers {
		subs = append(subs, c)
	}
	inst.mu.Unlock()

	for _, c := range subs {
		_ = c.WriteJSON(resp)
	}
}

func (inst *mapInstance) subscribe(c *connWriter) {
	inst.mu.Lock()
	inst.subscribers[c] = struct{}{}
	inst.mu.Unlock()
}

func (inst *mapInstance) unsubscribe(c *connWriter) {
	inst.mu.Lock()
	delete(inst.subscribers, c)
	inst.mu.Unlock()
}

// registerEvent decodes and registers a RemoteEngineEvent against this
// instance's engine, under mu.
func (inst *mapInstance) registerEvent(step uint64, wire network.RemoteEvent) error {
	ev, err := network.DecodeRemoteEvent(wire)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.eng.RegisterEvent(step, ev)
}

// oldestRetainedStep reports the oldest step this instance's rewind ring
// can still replay to, used to annotate a rejected RemoteEngineEvent with
// how far it missed the window by.
func (inst *mapInstance) oldestRetainedStep() (uint64, bool) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.eng.OldestRetainedStep()
}

// connWriter serializes concurrent writes to a single websocket
// connection: gorilla/websocket forbids concurrent writers, but both a
// connection's own read loop and every map instance's broadcast goroutine
// may need to write to it.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connWriter) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}
