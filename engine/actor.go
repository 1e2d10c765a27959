package engine

// StepsPerSecond is the fixed tick rate physics displacement is scaled by.
// Displacement per step is velocity / StepsPerSecond with truncation toward
// zero (§9's integer-arithmetic rule); it is a compile-time constant, not a
// ticker configuration value, since changing it would change every replay's
// numerics.
const StepsPerSecond = 60

// platformEdge describes the side of a platform an actor is resting on.
type platformEdge struct {
	rect Rectangle
}

// MoveX translates body.X by dispX, stopping short of any platform the body
// would otherwise run into horizontally. Grounded on AtomicMoveSystem's
// `actor::move_x`: a pure function of the body's current rect, the intended
// displacement, and the set of platforms.
func MoveX(body Rectangle, dispX int32, platforms []Entity) int32 {
	if dispX == 0 {
		return body.X
	}

	next := body.X + dispX
	for _, p := range platforms {
		pr := p.Rect()
		if !rectYOverlap(body, pr) {
			continue
		}
		if dispX > 0 && body.X+body.W <= pr.X && next+body.W > pr.X {
			next = pr.X - body.W
		} else if dispX < 0 && body.X >= pr.X+pr.W && next < pr.X+pr.W {
			next = pr.X + pr.W
		}
	}
	return next
}

// MoveY translates body.Y by dispY, stopping an actor that would fall
// through a platform at the platform's top edge, and stopping an actor that
// would rise through a platform's underside. worldSize is the world bounds used
// to clamp against the floor when no platform is present underfoot.
func MoveY(body Rectangle, dispY int32, platforms []Entity, worldSize [2]int32) int32 {
	next := body.Y + dispY

	for _, p := range platforms {
		pr := p.Rect()
		if !rectXOverlap(body, pr) {
			continue
		}
		if dispY > 0 && body.Y+body.H <= pr.Y && next+body.H > pr.Y {
			next = pr.Y - body.H
		} else if dispY < 0 && body.Y >= pr.Y+pr.H && next < pr.Y+pr.H {
			next = pr.Y + pr.H
		}
	}

	if worldSize[1] > 0 && next+body.H > worldSize[1] {
		next = worldSize[1] - body.H
	}
	return next
}

// OnPlatform reports whether body currently rests directly on top of any of
// the given platforms, used by GravitySystem to decide whether to clamp
// velocity.y instead of applying gravity.
func OnPlatform(body Rectangle, platforms []Entity) bool {
	for _, p := range platforms {
		pr := p.Rect()
		if !rectXOverlap(body, pr) {
			continue
		}
		if body.Y+body.H == pr.Y {
			return true
		}
	}
	return false
}

func rectXOverlap(a, b Rectangle) bool {
	return a.X < b.X+b.W && b.X < a.X+a.W
}

func rectYOverlap(a, b Rectangle) bool {
	return a.Y < b.Y+b.H && b.Y < a.Y+a.H
}
