package engine

import (
	"github.com/keindproject/keind/infrastructure/config"
)

// Default tuning values (§4.11): 60 steps per second and a 300-step
// (5 second) rewind ring.
const (
	DefaultStepsPerSecond    = 60
	DefaultTrailingStateLen  = 300
)

// Config is the engine's tunable construction parameters, loaded from the
// environment by FromEnv or built directly by callers (tests, the zkVM
// guest) that need exact control.
type Config struct {
	Seed             uint64
	StepsPerSecond   int64
	TrailingStateLen int
	WorldWidth       int32
	WorldHeight      int32
	ZKMode           bool
}

// FromEnv loads engine configuration from the process environment, the way
// every other service in this codebase reads its tunables (§4.11):
//
//	KEIND_SEED               int, converted to uint64; unset or unparsable gives 0, which is invalid
//	KEIND_STEPS_PER_SECOND    int, default 60
//	KEIND_TRAILING_STATE_LEN int, default 300; 0 disables rewind
//	KEIND_WORLD_WIDTH        int, default 0 (no floor clamp)
//	KEIND_WORLD_HEIGHT       int, default 0 (no floor clamp)
//	KEIND_ZK_MODE            bool, default false
//
// In ZK mode the trailing state length is forced to 0 regardless of the
// configured value: the zkVM guest replays a single, already-ordered event
// stream and never needs to rewind (§4.18).
func FromEnv() Config {
	seed, _ := config.ParseEnvInt("KEIND_SEED")
	stepsPerSecond := config.GetEnvInt("KEIND_STEPS_PER_SECOND", DefaultStepsPerSecond)
	trailingStateLen := config.GetEnvInt("KEIND_TRAILING_STATE_LEN", DefaultTrailingStateLen)
	worldWidth := config.GetEnvInt("KEIND_WORLD_WIDTH", 0)
	worldHeight := config.GetEnvInt("KEIND_WORLD_HEIGHT", 0)
	zkMode := config.GetEnvBool("KEIND_ZK_MODE", false)

	if zkMode {
		trailingStateLen = 0
	}

	return Config{
		Seed:             uint64(seed),
		StepsPerSecond:   int64(stepsPerSecond),
		TrailingStateLen: trailingStateLen,
		WorldWidth:       int32(worldWidth),
		WorldHeight:      int32(worldHeight),
		ZKMode:           zkMode,
	}
}
