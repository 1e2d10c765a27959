package main

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/keindproject/keind/engine"
	"github.com/keindproject/keind/engine/manifest"
	"github.com/keindproject/keind/engine/network"
	slcrypto "github.com/keindproject/keind/infrastructure/crypto"
	svcerrors "github.com/keindproject/keind/infrastructure/errors"
	"github.com/keindproject/keind/infrastructure/logging"
	slmetrics "github.com/keindproject/keind/infrastructure/metrics"
	"github.com/keindproject/keind/infrastructure/resilience"
	"github.com/keindproject/keind/infrastructure/service"
	"github.com/keindproject/keind/infrastructure/state"

	"crypto/ecdsa"
)

// gameServerConfig configures a gameServer's dependencies; all fields are
// optional except Logger, which is always present via logging.NewFromEnv.
type gameServerConfig struct {
	Store    state.PersistenceBackend
	Manifest *manifest.Manifest

	VRFKey    *ecdsa.PrivateKey
	JWTSecret []byte

	// StateEncryptionKey, if 32 bytes, seals every value passed through
	// saveToStore/loadFromStore with infrastructure/crypto's AES-GCM
	// envelope before it reaches the PersistenceBackend (§4.15). Left nil,
	// the store sees plaintext, matching a local MemoryBackend deployment.
	StateEncryptionKey []byte

	Logger  *logging.Logger
	Metrics *slmetrics.Metrics

	StepsPerSecond   int64
	TrailingStateLen int
	WorldWidth       int32
	WorldHeight      int32

	SnapshotCron string
}

// gameServer is the process-wide WebSocket adapter: one *mapInstance per
// active map, each independently ticking and each guarded by its own
// mutex, plus the player record store and session-issuing auth bits
// (§4.14).
type gameServer struct {
	mu        sync.RWMutex
	instances map[string]*mapInstance

	store    state.PersistenceBackend
	manifest *manifest.Manifest
	vrfKey   *ecdsa.PrivateKey
	jwtKey   []byte
	stateKey []byte

	logger  *logging.Logger
	metrics *slmetrics.Metrics

	stepsPerSecond   int64
	trailingStateLen int
	worldWidth       int32
	worldHeight      int32

	upgrader websocket.Upgrader
	cron     *cron.Cron

	storeBreaker *resilience.CircuitBreaker

	base *service.BaseService
}

func newGameServer(cfg gameServerConfig) *gameServer {
	s := &gameServer{
		instances:        make(map[string]*mapInstance),
		store:            cfg.Store,
		manifest:         cfg.Manifest,
		vrfKey:           cfg.VRFKey,
		jwtKey:           cfg.JWTSecret,
		stateKey:         cfg.StateEncryptionKey,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		stepsPerSecond:   cfg.StepsPerSecond,
		trailingStateLen: cfg.TrailingStateLen,
		worldWidth:       cfg.WorldWidth,
		worldHeight:      cfg.WorldHeight,
		upgrader:         websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		storeBreaker:     resilience.New(resilience.DefaultServiceCBConfig(cfg.Logger)),
	}

	s.base = service.NewBase(&service.BaseConfig{
		ID:      "gameserver",
		Name:    "keind-gameserver",
		Version: "dev",
		Engine:  &multiInstanceHealth{server: s},
		Logger:  cfg.Logger,
	})
	s.base.WithStats(s.statistics)
	s.registerRoutes(s.base.Router())

	if cfg.Store != nil && cfg.SnapshotCron != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(cfg.SnapshotCron, s.flushAllSnapshots); err != nil {
			s.logger.WithError(err).Errorf("gameserver: invalid snapshot schedule %q", cfg.SnapshotCron)
			s.cron = nil
		}
	}

	return s
}

// stateEnvelopeInfo binds every sealed store value to this deployment's
// purpose, so a master key reused elsewhere can't be replayed against the
// gameserver's store.
const stateEnvelopeInfo = "keind-gameserver-state"

// saveToStore persists data under key through the store circuit breaker,
// retrying transient failures with exponential backoff before the breaker
// counts the call as a failure (§4.15: the store is an external dependency
// map instances must tolerate hiccups in, not a fatal-assertion source).
// When a StateEncryptionKey is configured, data is sealed with
// infrastructure/crypto's AES-GCM envelope (keyed to key as the AAD
// subject) before it ever reaches the backend.
func (s *gameServer) saveToStore(ctx context.Context, key string, data []byte) error {
	if len(s.stateKey) == 32 {
		sealed, err := slcrypto.EncryptEnvelope(s.stateKey, []byte(key), stateEnvelopeInfo, data)
		if err != nil {
			return fmt.Errorf("seal store value for %q: %w", key, err)
		}
		data = sealed
	}
	return s.storeBreaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			return s.store.Save(ctx, key, data)
		})
	})
}

// loadFromStore mirrors saveToStore for reads, opening the envelope sealed
// by saveToStore when a StateEncryptionKey is configured.
func (s *gameServer) loadFromStore(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.storeBreaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			d, err := s.store.Load(ctx, key)
			if err != nil {
				return err
			}
			data = d
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(s.stateKey) == 32 {
		opened, err := slcrypto.DecryptEnvelope(s.stateKey, []byte(key), stateEnvelopeInfo, data)
		if err != nil {
			return nil, fmt.Errorf("open store value for %q: %w", key, err)
		}
		return opened, nil
	}
	return data, nil
}

func (s *gameServer) registerRoutes(router *mux.Router) {
	router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	if slmetrics.Enabled() {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

func (s *gameServer) statistics() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	instanceStats := make(map[string]any, len(s.instances))
	for id, inst := range s.instances {
		inst.mu.Lock()
		instanceStats[id] = map[string]any{
			"step_index":   inst.eng.StepIndex(),
			"entity_count": inst.eng.EntityCount(),
			"seed":         inst.seed,
		}
		inst.mu.Unlock()
	}
	return map[string]any{"map_instances": instanceStats}
}

func (s *gameServer) flushAllSnapshots() {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.mu.RLock()
	instances := make([]*mapInstance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.mu.RUnlock()

	for _, inst := range instances {
		inst.mu.Lock()
		data := engine.EncodeEngineState(inst.eng.Engine())
		inst.mu.Unlock()
		if err := s.saveToStore(ctx, snapshotKey(inst.id), data); err != nil {
			s.logger.WithContext(ctx).WithError(err).Errorf("gameserver: snapshot flush failed for %q", inst.id)
		}
	}
}

// getOrCreateInstance returns the existing map instance for mapID, or
// builds and registers a fresh one under the VRF seed commitment for that
// id (§4.16).
func (s *gameServer) getOrCreateInstance(ctx context.Context, mapID string) (*mapInstance, error) {
	s.mu.RLock()
	inst, ok := s.instances[mapID]
	s.mu.RUnlock()
	if ok {
		return inst, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.instances[mapID]; ok {
		return inst, nil
	}

	inst, err := s.newMapInstance(ctx, mapID)
	if err != nil {
		return nil, err
	}
	s.instances[mapID] = inst
	return inst, nil
}

// Run starts the HTTP server, serving the WebSocket endpoint and the
// standard health/metrics surface, until SIGINT/SIGTERM.
func (s *gameServer) Run(ctx context.Context, port string) error {
	if err := s.base.Start(ctx); err != nil {
		return fmt.Errorf("gameserver: start: %w", err)
	}
	if s.cron != nil {
		s.cron.Start()
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.base.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		s.logger.Infof("gameserver listening on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		s.logger.WithContext(ctx).Info("shutting down")
	case <-ctx.Done():
	case err := <-serveErrCh:
		s.logger.WithContext(ctx).WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.WithContext(shutdownCtx).WithError(err).Error("shutdown error")
	}
	if s.cron != nil {
		cronCtx := s.cron.Stop()
		<-cronCtx.Done()
	}
	s.flushAllSnapshots()
	s.stopAllInstances()
	return s.base.Stop()
}

func (s *gameServer) stopAllInstances() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.instances {
		close(inst.stop)
	}
}

// connState is the per-connection state carried across an entire
// WebSocket session: which player (if any) is logged in, which map
// instance (if any) it is subscribed to, and its own rate limiter.
type connState struct {
	writer   *connWriter
	limiter  *rate.Limiter
	username string
	mapID    string
	instance *mapInstance
}

func (s *gameServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithContext(r.Context()).WithError(err).Error("gameserver: websocket upgrade failed")
		return
	}
	defer conn.Close()

	cs := &connState{
		writer:  &connWriter{conn: conn},
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
	defer func() {
		if cs.instance != nil {
			cs.instance.unsubscribe(cs.writer)
		}
	}()

	for {
		var action network.Action
		if err := conn.ReadJSON(&action); err != nil {
			return
		}
		s.dispatch(r.Context(), cs, action)
	}
}

func (s *gameServer) dispatch(ctx context.Context, cs *connState, action network.Action) {
	switch action.Kind {
	case network.ActionCreatePlayer:
		s.handleCreatePlayer(ctx, cs, action)
	case network.ActionLoginPlayer:
		s.handleLoginPlayer(ctx, cs, action)
	case network.ActionLogoutPlayer:
		cs.username = ""
	case network.ActionRequestEngineReload:
		s.handleRequestEngineReload(ctx, cs, action)
	case network.ActionRemoteEngineEvent:
		s.handleRemoteEngineEvent(cs, action)
	case network.ActionPing:
		_ = cs.writer.WriteJSON(network.Response{Kind: network.ResponsePong})
	}
}

func (s *gameServer) handleCreatePlayer(ctx context.Context, cs *connState, action network.Action) {
	if s.store == nil || action.Username == "" || action.Password == "" {
		s.writeLoginError(cs, "missing credentials")
		return
	}
	key := "player/" + action.Username
	if _, err := s.loadFromStore(ctx, key); err == nil {
		s.writeLoginError(cs, "username taken")
		return
	}
	hash, err := hashPassword(action.Password)
	if err != nil {
		s.writeLoginError(cs, "could not create account")
		return
	}
	rec := playerRecord{Username: action.Username, PasswordHash: hash}
	data, _ := json.Marshal(rec)
	if err := s.saveToStore(ctx, key, data); err != nil {
		s.writeLoginError(cs, "could not create account")
		return
	}
	s.completeLogin(cs, action.Username)
}

func (s *gameServer) handleLoginPlayer(ctx context.Context, cs *connState, action network.Action) {
	if s.store == nil {
		s.writeLoginError(cs, "no player store configured")
		return
	}
	data, err := s.loadFromStore(ctx, "player/"+action.Username)
	if err != nil {
		s.writeLoginError(cs, "invalid credentials")
		return
	}
	var rec playerRecord
	if err := json.Unmarshal(data, &rec); err != nil || !checkPassword(rec.PasswordHash, action.Password) {
		s.writeLoginError(cs, "invalid credentials")
		return
	}
	s.completeLogin(cs, action.Username)
}

func (s *gameServer) completeLogin(cs *connState, username string) {
	cs.username = username
	token, err := issueSessionToken(s.jwtKey, username, 24*time.Hour)
	if err != nil {
		s.writeLoginError(cs, "could not issue session")
		return
	}
	_ = cs.writer.WriteJSON(network.Response{
		Kind:         network.ResponsePlayerLoggedIn,
		SessionToken: token,
		PlayerID:     username,
	})
}

func (s *gameServer) writeLoginError(cs *connState, reason string) {
	_ = cs.writer.WriteJSON(network.Response{Kind: network.ResponseLoginError, Reason: reason})
}

func (s *gameServer) handleRequestEngineReload(ctx context.Context, cs *connState, action network.Action) {
	if action.MapInstanceID == "" {
		s.writeLoginError(cs, "missing map_instance_id")
		return
	}
	inst, err := s.getOrCreateInstance(ctx, action.MapInstanceID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("gameserver: create instance %q", action.MapInstanceID)
		s.writeLoginError(cs, "could not load map")
		return
	}

	if cs.instance != nil && cs.instance != inst {
		cs.instance.unsubscribe(cs.writer)
	}
	cs.instance = inst
	cs.mapID = action.MapInstanceID
	inst.subscribe(cs.writer)

	inst.mu.Lock()
	binary := engine.EncodeEngineState(inst.eng.Engine())
	seed, beta, pi := inst.seed, inst.proofBeta, inst.proofPi
	inst.mu.Unlock()

	_ = cs.writer.WriteJSON(network.Response{
		Kind:          network.ResponseEngineState,
		EngineBinary:  binary,
		Seed:          seed,
		SeedProofBeta: beta,
		SeedProofPi:   pi,
	})
}

func (s *gameServer) handleRemoteEngineEvent(cs *connState, action network.Action) {
	if cs.instance == nil || action.Event == nil {
		return
	}
	if !cs.limiter.Allow() {
		if s.metrics != nil {
			s.metrics.RecordRemoteEventRejected("rate_limited")
		}
		return
	}
	if err := cs.instance.registerEvent(action.Step, *action.Event); err != nil {
		svcErr := s.classifyRemoteEventError(cs.instance, action.Step, err)
		if s.metrics != nil {
			s.metrics.RecordRemoteEventRejected(string(svcErr.Code))
		}
		_ = cs.writer.WriteJSON(network.Response{
			Kind:   network.ResponseRemoteEventRejected,
			Code:   string(svcErr.Code),
			Reason: svcErr.Error(),
		})
		return
	}
	if s.metrics != nil {
		s.metrics.RecordRemoteEvent(action.Event.Kind)
	}
}

// classifyRemoteEventError wraps a rejected RemoteEngineEvent's error into a
// ServiceError so the client gets a stable code to branch on instead of a
// free-form message: HistoryTooShort means "resync from a fresh snapshot and
// retry", AssertionFailure means the map instance's engine is now wedged.
func (s *gameServer) classifyRemoteEventError(inst *mapInstance, atStep uint64, err error) *svcerrors.ServiceError {
	switch {
	case goerrors.Is(err, engine.ErrHistoryTooShort):
		oldest, _ := inst.oldestRetainedStep()
		return svcerrors.HistoryTooShort(atStep, oldest)
	case goerrors.Is(err, engine.ErrDeserialization):
		return svcerrors.DeserializationError("remote engine event", err)
	case goerrors.Is(err, engine.ErrAssertionFailure):
		return svcerrors.AssertionFailure(err.Error())
	default:
		return svcerrors.Internal("failed to register remote engine event", err)
	}
}

// multiInstanceHealth adapts a gameServer's set of map instances to the
// single-engine EngineHealth interface BaseService expects: unhealthy if
// any instance's engine has hit its fatal-assertion error.
type multiInstanceHealth struct {
	server *gameServer
}

func (h *multiInstanceHealth) Err() error {
	h.server.mu.RLock()
	defer h.server.mu.RUnlock()
	for id, inst := range h.server.instances {
		inst.mu.Lock()
		err := inst.eng.Err()
		inst.mu.Unlock()
		if err != nil {
			return fmt.Errorf("map %q: %w", id, err)
		}
	}
	return nil
}

func (h *multiInstanceHealth) StepIndex() uint64 {
	h.server.mu.RLock()
	defer h.server.mu.RUnlock()
	var max uint64
	for _, inst := range h.server.instances {
		inst.mu.Lock()
		step := inst.eng.StepIndex()
		inst.mu.Unlock()
		if step > max {
			max = step
		}
	}
	return max
}
