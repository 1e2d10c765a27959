package engine

// ComputeDamage is a port of damage_calc.rs's compute_damage:
// accuracy/avoidability drive a hit-or-miss roll whose odds are computed
// in float64, then an integer hit amount is
// rolled in a range derived from the attacker/defender level gap. Every
// roll is pulled from the engine RNG, so the same seed and the same call
// order always produce the same damage, the same way a hit-or-miss roll and
// a subsequent hit-amount roll do in the source.
//
// accuracy and avoidability are in the same units as the source's ability
// accuracy/avoidability figures; attackerLevel/defenderLevel gate the hit
// amount's range.
func ComputeDamage(rng *XorShiftRNG, accuracy, avoidability int64, attackerLevel, defenderLevel int64) uint64 {
	const accCurve = 30.0

	var isHit bool
	switch {
	case accuracy > avoidability:
		diff := float64(accuracy - avoidability)
		odds := clampFloat(diff/accCurve, 0, 1) / 2
		isHit = rng.RandomBool(0.5 + odds)
	case accuracy < avoidability:
		diff := float64(avoidability - accuracy)
		odds := clampFloat(diff/accCurve, 0, 1) / 2
		isHit = rng.RandomBool(0.5 - odds)
	default:
		isHit = rng.RandomBool(0.5)
	}

	if !isHit {
		return 0
	}

	relativeLevel := attackerLevel - minInt64(defenderLevel, attackerLevel)
	minHit := relativeLevel*2 + 1
	maxHit := relativeLevel*3 + 3
	if maxHit <= minHit {
		maxHit = minHit + 1
	}

	hit := rng.RandomRange(minHit, maxHit)
	if hit < 0 {
		return 0
	}
	return uint64(hit)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
