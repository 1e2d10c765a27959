package engine

import (
	"time"
)

// Stepper is the subset of RewindableEngine (or a bare Engine) the ticker
// needs: advance to a target step and report the current one.
type Stepper interface {
	StepIndex() uint64
	StepTo(target uint64) []GameEvent
}

// Ticker converts wall-clock time into step advances, at a fixed
// steps-per-second rate (§4.8). It never sleeps or blocks: Tick computes
// the step index implied by elapsed wall-clock time and steps the engine
// up to it, so callers embed it in whatever scheduling loop they prefer
// (a time.Ticker, a WebSocket read loop, a cron job).
type Ticker struct {
	stepper         Stepper
	stepsPerSecond  int64
	start           time.Time
	startStep       uint64
	maxStepsPerTick uint64

	onOverload func(requested, applied uint64)
}

// NewTicker constructs a ticker that treats stepper's current step index as
// step zero occurring at start.
func NewTicker(stepper Stepper, stepsPerSecond int64, start time.Time) *Ticker {
	return NewTickerFromStep(stepper, stepsPerSecond, start, stepper.StepIndex())
}

// NewTickerFromStep constructs a ticker resuming a persisted engine: start
// is the wall-clock time at which the engine was at startStep, letting a
// freshly-restored engine compute the right expected step immediately
// instead of replaying from wall-clock zero.
func NewTickerFromStep(stepper Stepper, stepsPerSecond int64, start time.Time, startStep uint64) *Ticker {
	return &Ticker{
		stepper:         stepper,
		stepsPerSecond:  stepsPerSecond,
		start:           start,
		startStep:       startStep,
		maxStepsPerTick: 0,
	}
}

// SetMaxStepsPerTick caps how many steps a single Tick call will execute,
// guarding against a long stall (GC pause, debugger breakpoint, suspended
// process) demanding an enormous catch-up burst. 0 means unbounded. When
// the cap is hit, onOverload (if set) is invoked with the steps that would
// have been required versus the steps actually applied.
func (t *Ticker) SetMaxStepsPerTick(max uint64) {
	t.maxStepsPerTick = max
}

// SetOverloadHandler installs the callback invoked when a tick's expected
// step count exceeds maxStepsPerTick.
func (t *Ticker) SetOverloadHandler(h func(requested, applied uint64)) {
	t.onOverload = h
}

// expectedStep computes the step index implied by elapsed wall-clock time
// since the ticker's epoch: startStep + floor(elapsed_seconds * stepsPerSecond).
func (t *Ticker) expectedStep(now time.Time) uint64 {
	elapsed := now.Sub(t.start)
	if elapsed < 0 {
		return t.startStep
	}
	advanced := uint64(elapsed.Seconds() * float64(t.stepsPerSecond))
	return t.startStep + advanced
}

// Tick advances the engine to the step implied by now, returning the game
// events collected along the way. Calling Tick with a now earlier than or
// equal to the time of the last call is a harmless no-op.
func (t *Ticker) Tick(now time.Time) []GameEvent {
	target := t.expectedStep(now)
	current := t.stepper.StepIndex()
	if target <= current {
		return nil
	}

	if t.maxStepsPerTick > 0 && target-current > t.maxStepsPerTick {
		requested := target
		target = current + t.maxStepsPerTick
		if t.onOverload != nil {
			t.onOverload(requested, target)
		}
	}

	return t.stepper.StepTo(target)
}

// Now is a small seam so tests can supply a fixed clock instead of
// time.Now; production callers just pass time.Now() to Tick directly.
func Now() time.Time { return time.Now() }
