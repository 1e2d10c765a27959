package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"
)

// EntityID is a 128-bit globally unique identifier, represented as two
// 64-bit words (high, low) rather than [16]byte so ascending-id ordering
// (§4.4's stable iteration requirement) is a plain two-word comparison.
type EntityID struct {
	Hi uint64
	Lo uint64
}

// ZeroEntityID is the id's zero value; never assigned to a real entity.
var ZeroEntityID = EntityID{}

// Less reports whether id orders before other under the total order fixed
// by §4.4 (ascending EntityId iteration).
func (id EntityID) Less(other EntityID) bool {
	if id.Hi != other.Hi {
		return id.Hi < other.Hi
	}
	return id.Lo < other.Lo
}

// String renders the id as a fixed-width hex pair, stable and log-friendly.
func (id EntityID) String() string {
	return fmt.Sprintf("%016x%016x", id.Hi, id.Lo)
}

// ParseEntityID parses the hex form produced by String back into an
// EntityID, used by transport adapters decoding wire references.
func ParseEntityID(s string) (EntityID, error) {
	if len(s) != 32 {
		return ZeroEntityID, fmt.Errorf("engine: invalid entity id length %d", len(s))
	}
	var hi, lo uint64
	if _, err := fmt.Sscanf(s[:16], "%016x", &hi); err != nil {
		return ZeroEntityID, fmt.Errorf("engine: invalid entity id: %w", err)
	}
	if _, err := fmt.Sscanf(s[16:], "%016x", &lo); err != nil {
		return ZeroEntityID, fmt.Errorf("engine: invalid entity id: %w", err)
	}
	return EntityID{Hi: hi, Lo: lo}, nil
}

// Bytes returns the big-endian 16-byte encoding of the id.
func (id EntityID) Bytes() [16]byte {
	var out [16]byte
	binary.BigEndian.PutUint64(out[0:8], id.Hi)
	binary.BigEndian.PutUint64(out[8:16], id.Lo)
	return out
}

// entityIDFromBytes is the inverse of Bytes, used by serialize.go.
func entityIDFromBytes(b []byte) EntityID {
	return EntityID{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

// GenerateID pulls a fresh EntityID from the engine RNG, concatenating two
// successive NextU64 calls to form the 128-bit value, exactly as the source
// generates entity ids (§4.1).
func GenerateID(rng *XorShiftRNG) EntityID {
	return EntityID{Hi: rng.NextU64(), Lo: rng.NextU64()}
}

// DeriveMessageID derives a reproducible EntityID for entities whose identity
// must match across replicas regardless of which one created them (message
// entities, per S6). It is blake3(creatorID ∥ step ∥ text), truncated to the
// first 16 bytes, split into (hi, lo) big-endian words.
func DeriveMessageID(creator EntityID, step uint64, text string) EntityID {
	h := blake3.New()
	creatorBytes := creator.Bytes()
	h.Write(creatorBytes[:])

	var stepBytes [8]byte
	binary.BigEndian.PutUint64(stepBytes[:], step)
	h.Write(stepBytes[:])

	h.Write([]byte(text))

	sum := h.Sum(nil)
	return entityIDFromBytes(sum[:16])
}
