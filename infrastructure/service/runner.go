package service

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/keindproject/keind/engine"
	slmetrics "github.com/keindproject/keind/infrastructure/metrics"
	"github.com/keindproject/keind/infrastructure/state"
)

// RunnerConfig configures a Runner: the engine-backed process wiring a
// RewindableEngine and Ticker to an HTTP surface, periodic snapshot
// persistence, and metrics (§4.17).
type RunnerConfig struct {
	ID      string
	Name    string
	Version string

	Engine *engine.RewindableEngine
	Ticker *engine.Ticker

	// Store, if non-nil, receives a snapshot of the engine every
	// SnapshotCron fire. SnapshotKey identifies the row/object written.
	Store        state.PersistenceBackend
	SnapshotCron string // robfig/cron schedule, e.g. "@every 30s"
	SnapshotKey  string

	Metrics *slmetrics.Metrics
}

// Runner is the unified entry point for an engine-backed service: it steps
// the engine on its Ticker's schedule, serves /healthz, /readyz, /info,
// and (when metrics are enabled) /metrics, periodically flushes a snapshot
// to Store via robfig/cron, and shuts down gracefully on SIGINT/SIGTERM.
type Runner struct {
	*BaseService

	engine  *engine.RewindableEngine
	ticker  *engine.Ticker
	store   state.PersistenceBackend
	snapKey string
	metrics *slmetrics.Metrics

	cron      *cron.Cron
	startedAt time.Time
}

// NewRunner builds a Runner and registers its standard HTTP surface.
func NewRunner(cfg RunnerConfig) *Runner {
	base := NewBase(&BaseConfig{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Version: cfg.Version,
		Engine:  cfg.Engine,
	})

	r := &Runner{
		BaseService: base,
		engine:      cfg.Engine,
		ticker:      cfg.Ticker,
		store:       cfg.Store,
		snapKey:     cfg.SnapshotKey,
		metrics:     cfg.Metrics,
	}

	r.WithStats(r.statistics)
	r.registerRoutes(base.Router())

	if cfg.Store != nil && cfg.SnapshotCron != "" {
		r.cron = cron.New()
		if _, err := r.cron.AddFunc(cfg.SnapshotCron, r.flushSnapshot); err != nil {
			base.Logger().WithError(err).Errorf("runner: invalid snapshot schedule %q", cfg.SnapshotCron)
			r.cron = nil
		}
	}

	// Step the engine on its ticker's schedule. A 1ms poll interval is far
	// finer than any realistic steps-per-second configuration; Ticker.Tick
	// itself is a no-op when wall clock hasn't advanced a full step.
	r.AddTickerWorker(time.Millisecond, r.tick, WithTickerWorkerName("engine-tick"))
	r.AddTickerWorker(5*time.Second, r.refreshHealth, WithTickerWorkerName("health-refresh"), WithTickerWorkerImmediate())

	return r
}

func (r *Runner) tick(ctx context.Context) error {
	r.ticker.Tick(engine.Now())
	if r.metrics != nil {
		r.metrics.UpdateUptime(r.startedAt)
	}
	return nil
}

func (r *Runner) refreshHealth(ctx context.Context) error {
	r.CheckHealth(ctx)
	return nil
}

func (r *Runner) flushSnapshot() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data := engine.EncodeEngineState(r.engine.Engine())
	if err := r.store.Save(ctx, r.snapKey, data); err != nil {
		r.Logger().WithContext(ctx).WithError(err).Error("runner: snapshot flush failed")
	}
}

func (r *Runner) statistics() map[string]any {
	stats := map[string]any{
		"step_index":   r.engine.StepIndex(),
		"entity_count": r.engine.EntityCount(),
	}
	if oldest, ok := r.engine.OldestRetainedStep(); ok {
		stats["oldest_retained_step"] = oldest
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		stats["cpu_percent"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["memory_used_bytes"] = vm.Used
		stats["memory_total_bytes"] = vm.Total
	}
	return stats
}

func (r *Runner) registerRoutes(router *mux.Router) {
	probes := NewProbeManager(30 * time.Second)
	probes.RegisterProbeRoutesOnMuxRouter(router)

	router.HandleFunc("/info", InfoHandler(r.BaseService)).Methods(http.MethodGet)

	if slmetrics.Enabled() {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
}

// Run starts the runner's background workers, its cron scheduler (if
// configured), and an HTTP server on port, blocking until SIGINT or
// SIGTERM, then shuts everything down gracefully.
func (r *Runner) Run(ctx context.Context, port string) error {
	r.startedAt = time.Now()
	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("runner: start: %w", err)
	}
	if r.cron != nil {
		r.cron.Start()
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           r.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		r.Logger().Infof("%s listening on port %s", r.Name(), port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		r.Logger().WithContext(ctx).Info("shutting down")
	case err := <-serveErrCh:
		r.Logger().WithContext(ctx).WithError(err).Error("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		r.Logger().WithContext(ctx).WithError(err).Error("shutdown error")
	}
	if r.cron != nil {
		cronCtx := r.cron.Stop()
		<-cronCtx.Done()
	}
	if r.store != nil && r.snapKey != "" {
		r.flushSnapshot()
	}
	return r.Stop()
}
