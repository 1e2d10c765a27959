package main

import (
	"bytes"
	"testing"

	"github.com/zeebo/blake3"

	"github.com/keindproject/keind/engine"
)

// TestCommitDigestMatchesServerEncoding is the S1 zkVM-digest-matches-
// server-digest check: the guest's default commit mode must derive the
// same bytes a server-side replica would get from blake3-hashing the same
// engine's EncodeEngineState output, since both sides need to agree on a
// single public commitment for the same replayed event log.
func TestCommitDigestMatchesServerEncoding(t *testing.T) {
	eng, err := engine.NewRewindableEngine(17, 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewRewindableEngine: %v", err)
	}

	platform := engine.NewPlatformEntity(engine.EntityID{Hi: 0, Lo: 1}, engine.BaseEntityState{PositionX: 200, PositionY: 200, SizeX: 200, SizeY: 25})
	spawner := engine.NewMobSpawnEntity(engine.EntityID{Hi: 0, Lo: 2}, engine.BaseEntityState{PositionX: 200, PositionY: 245, SizeX: 200, SizeY: 20}, 1, 30)

	if err := eng.RegisterEvent(0, engine.NewSpawnEntityEvent(platform, true)); err != nil {
		t.Fatalf("RegisterEvent(platform): %v", err)
	}
	if err := eng.RegisterEvent(0, engine.NewSpawnEntityEvent(spawner, true)); err != nil {
		t.Fatalf("RegisterEvent(spawner): %v", err)
	}

	eng.StepTo(3)
	if err := eng.Err(); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}
	if eng.EntityCount() != 2 {
		t.Fatalf("EntityCount() = %d, want 2", eng.EntityCount())
	}

	got, err := commitDigest(eng)
	if err != nil {
		t.Fatalf("commitDigest: %v", err)
	}

	want := blake3.Sum256(engine.EncodeEngineState(eng.Engine()))
	if !bytes.Equal(got, want[:]) {
		t.Fatalf("commitDigest produced a different digest than an independently blake3-hashed EncodeEngineState")
	}
}

// TestCommitDigestCountMode covers the cheap KEIND_ZK_DIGEST=count path,
// used as a smoke test independent of the binary encoding format.
func TestCommitDigestCountMode(t *testing.T) {
	t.Setenv("KEIND_ZK_DIGEST", "count")

	eng, err := engine.NewRewindableEngine(5, 0, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewRewindableEngine: %v", err)
	}
	eng.SpawnEntityNow(engine.NewPlatformEntity(engine.EntityID{Hi: 1}, engine.BaseEntityState{}))
	eng.SpawnEntityNow(engine.NewPlatformEntity(engine.EntityID{Hi: 2}, engine.BaseEntityState{}))

	digest, err := commitDigest(eng)
	if err != nil {
		t.Fatalf("commitDigest: %v", err)
	}
	if string(digest) != "2\n" {
		t.Fatalf("commitDigest(count mode) = %q, want %q", digest, "2\n")
	}
}

func TestParseUint64(t *testing.T) {
	v, err := parseUint64("42")
	if err != nil {
		t.Fatalf("parseUint64: %v", err)
	}
	if v != 42 {
		t.Fatalf("parseUint64(\"42\") = %d, want 42", v)
	}

	if _, err := parseUint64("not-a-number"); err == nil {
		t.Fatal("parseUint64 accepted non-numeric input")
	}
}
