// Package service provides the common runner scaffolding shared by the
// game server and any auxiliary engine-backed services.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/keindproject/keind/infrastructure/logging"
)

// BaseConfig describes the identity and dependencies a BaseService is
// constructed from.
type BaseConfig struct {
	ID      string
	Name    string
	Version string

	// Engine reports whether the wrapped engine is in a fatal, unusable
	// state (engine.Engine.Err() != nil). Required.
	Engine EngineHealth

	Logger *logging.Logger
}

// EngineHealth is the minimal surface BaseService needs from the engine it
// wraps in order to answer health probes. *engine.RewindableEngine and
// *engine.Engine both satisfy it directly.
type EngineHealth interface {
	Err() error
	StepIndex() uint64
}

// BaseService is the shared lifecycle/health/HTTP scaffolding for any
// process built around a *engine.RewindableEngine: the authoritative game
// server, a read-only spectator relay, or a snapshot-archival worker. It
// does not itself own an engine instance — callers embed BaseService and
// supply engine health through BaseConfig.Engine so the same scaffolding
// serves services with different engine lifetimes.
type BaseService struct {
	id      string
	name    string
	version string

	engine EngineHealth
	logger *logging.Logger
	router *mux.Router

	stopCh   chan struct{}
	stopOnce sync.Once

	hydrate func(context.Context) error
	statsFn func() map[string]any
	workers []func(context.Context)

	healthMu        sync.RWMutex
	engineHealthy   bool
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService. Panics if cfg.Engine is nil, mirroring
// the construction-time validation the rest of this package's idioms use
// for required dependencies.
func NewBase(cfg *BaseConfig) *BaseService {
	if cfg.Engine == nil {
		panic("service: BaseConfig.Engine is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewFromEnv(cfg.Name)
	}
	return &BaseService{
		id:            cfg.ID,
		name:          cfg.Name,
		version:       cfg.Version,
		engine:        cfg.Engine,
		logger:        logger,
		router:        mux.NewRouter(),
		stopCh:        make(chan struct{}),
		engineHealthy: true,
	}
}

func (b *BaseService) ID() string              { return b.id }
func (b *BaseService) Name() string            { return b.name }
func (b *BaseService) Version() string         { return b.version }
func (b *BaseService) Router() *mux.Router     { return b.router }
func (b *BaseService) Logger() *logging.Logger { return b.logger }

// StopChan returns the channel closed when Stop is called, for workers that
// select on it directly instead of using AddTickerWorker.
func (b *BaseService) StopChan() <-chan struct{} { return b.stopCh }

// WithHydrate registers a function called once during Start, after the
// router is ready but before background workers launch. Typically used to
// restore an engine snapshot from the persistent record store.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats registers the function backing the /info endpoint's
// "statistics" field.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddWorker registers a background goroutine started by Start and expected
// to exit when StopChan is closed.
func (b *BaseService) AddWorker(fn func(context.Context)) {
	b.workers = append(b.workers, fn)
}

// tickerWorkerConfig configures AddTickerWorker.
type tickerWorkerConfig struct {
	name      string
	immediate bool
}

// TickerWorkerOption configures an AddTickerWorker call.
type TickerWorkerOption func(*tickerWorkerConfig)

// WithTickerWorkerName names a ticker worker for log output.
func WithTickerWorkerName(name string) TickerWorkerOption {
	return func(c *tickerWorkerConfig) { c.name = name }
}

// WithTickerWorkerImmediate runs fn once before the first tick fires.
func WithTickerWorkerImmediate() TickerWorkerOption {
	return func(c *tickerWorkerConfig) { c.immediate = true }
}

// AddTickerWorker registers a background worker that calls fn every
// interval until StopChan closes. Used for periodic jobs that aren't
// expressed as robfig/cron schedules — a metrics refresh, a health
// re-evaluation sweep.
func (b *BaseService) AddTickerWorker(interval time.Duration, fn func(ctx context.Context) error, opts ...TickerWorkerOption) {
	cfg := tickerWorkerConfig{name: "ticker-worker"}
	for _, o := range opts {
		o(&cfg)
	}

	b.AddWorker(func(ctx context.Context) {
		if cfg.immediate {
			if err := fn(ctx); err != nil {
				b.Logger().WithContext(ctx).WithError(err).Errorf("%s: tick failed", cfg.name)
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					b.Logger().WithContext(ctx).WithError(err).Errorf("%s: tick failed", cfg.name)
				}
			}
		}
	})
}

// Start runs hydrate (if registered) and launches all registered workers as
// goroutines. It does not block; callers own the HTTP listener and the
// blocking wait for shutdown signal (see Run in runner.go).
func (b *BaseService) Start(ctx context.Context) error {
	b.startTime = time.Now()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return fmt.Errorf("service: hydrate: %w", err)
		}
	}

	for _, w := range b.workers {
		go w(ctx)
	}

	b.healthMu.Lock()
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()

	return nil
}

// Stop closes StopChan exactly once, signaling all workers to exit.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() { close(b.stopCh) })
	return nil
}

// WorkerCount returns the number of registered background workers.
func (b *BaseService) WorkerCount() int { return len(b.workers) }

// CheckHealth re-evaluates engine health and caches the result for
// HealthStatus/HealthDetails. Safe to call from a ticker worker or an
// inline probe handler.
func (b *BaseService) CheckHealth(ctx context.Context) {
	healthy := b.engine.Err() == nil

	b.healthMu.Lock()
	b.engineHealthy = healthy
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus implements HealthChecker.
func (b *BaseService) HealthStatus() string {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthStatusLocked()
}

func (b *BaseService) healthStatusLocked() string {
	if !b.engineHealthy {
		return "unhealthy"
	}
	return "healthy"
}

// HealthDetails implements HealthChecker.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	return map[string]any{
		"engine_healthy":    b.engineHealthy,
		"step_index":        b.engine.StepIndex(),
		"last_health_check": b.lastHealthCheck,
		"uptime":            time.Since(b.startTime).String(),
	}
}

var _ EngineService = (*BaseService)(nil)
var _ HealthChecker = (*BaseService)(nil)
