// Command zkguest is the zkVM guest entry point (§4.18): it reads a
// deterministic event stream from stdin, replays it against a fresh
// RewindableEngine with rewinding disabled, and commits a digest of the
// resulting state to stdout. No logging, metrics, or persistence — the
// guest environment has none of those and every extra syscall costs proof
// cycles.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/keindproject/keind/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	raw := os.Getenv("KEIND_SEED")
	if raw == "" {
		return fmt.Errorf("zkguest: KEIND_SEED is required")
	}
	seed, err := parseUint64(raw)
	if err != nil {
		return fmt.Errorf("zkguest: KEIND_SEED: %w", err)
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("zkguest: read stdin: %w", err)
	}

	stepCount, events, err := engine.DecodeEventStream(input)
	if err != nil {
		return fmt.Errorf("zkguest: decode event stream: %w", err)
	}

	eng, err := engine.NewRewindableEngine(seed, 0, 0, 0, nil)
	if err != nil {
		return fmt.Errorf("zkguest: construct engine: %w", err)
	}

	for _, se := range events {
		if err := eng.RegisterEvent(se.Step, se.Event); err != nil {
			return fmt.Errorf("zkguest: register event at step %d: %w", se.Step, err)
		}
	}

	eng.StepTo(stepCount)
	if err := eng.Err(); err != nil {
		return fmt.Errorf("zkguest: engine fatal: %w", err)
	}

	digest, err := commitDigest(eng)
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(digest)
	return err
}

// commitDigest renders the value the guest commits as its public output.
// KEIND_ZK_DIGEST=count commits only the entity count, a cheap smoke-test
// mode; the default commits a blake3 hash of the full binary-encoded
// engine state, matching what the server and clients can independently
// reproduce from the same event log (P3).
func commitDigest(eng *engine.RewindableEngine) ([]byte, error) {
	if os.Getenv("KEIND_ZK_DIGEST") == "count" {
		return []byte(fmt.Sprintf("%d\n", eng.EntityCount())), nil
	}

	state := engine.EncodeEngineState(eng.Engine())
	sum := blake3.Sum256(state)
	return sum[:], nil
}

func parseUint64(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}
