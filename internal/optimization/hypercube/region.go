package hypercube

import (
	"math"
	"math/rand"

	"github.com/mihirnimgade/hypercube-optimization/internal/optimization"
)

// Region is the hypercube search window: a center point with a scalar radius
// shared by every dimension, inside the global bounds [Lower, Upper]. The
// cube may extend past the global bounds; sampling clips it per dimension.
// Invariants: every center coordinate lies within [Lower, Upper], and the
// radius is strictly positive.
type Region struct {
	Center optimization.Point
	Radius float64
	Lower  float64
	Upper  float64
}

// Sample draws n fresh points from the region, each coordinate independently
// uniform over [max(Lower, center-Radius), min(Upper, center+Radius)]. Draw
// order is fixed, so a seeded generator reproduces the same points.
func (r Region) Sample(rng *rand.Rand, n int) []optimization.Point {
	points := make([]optimization.Point, n)
	for i := range points {
		p := make(optimization.Point, len(r.Center))
		for j, c := range r.Center {
			lo := math.Max(r.Lower, c-r.Radius)
			hi := math.Min(r.Upper, c+r.Radius)
			p[j] = lo + rng.Float64()*(hi-lo)
		}
		points[i] = p
	}
	return points
}

// Update applies the displace-and-shrink rule to one round of evaluations
// and returns the next region, the new incumbent, and whether the round
// improved on it.
//
// The round's candidate is its highest-valued evaluation, ties broken by
// first occurrence. On a strict improvement the center extrapolates one
// displacement step past the candidate, clipped back into the global bounds,
// and the radius shrinks by onImprove; on a stall the region re-centers on
// the incumbent and the radius shrinks by the more aggressive onStall. The
// radius never drops below floor, which keeps sampling well-defined.
func (r Region) Update(best optimization.Evaluation, round []optimization.Evaluation, onImprove, onStall, floor float64) (Region, optimization.Evaluation, bool) {
	candidate := round[0]
	for _, e := range round[1:] {
		if e.Value > candidate.Value {
			candidate = e
		}
	}

	improved := candidate.Value > best.Value

	next := r
	if improved {
		step := candidate.Point.Sub(best.Point)
		next.Center = candidate.Point.Add(step).Clip(r.Lower, r.Upper)
		next.Radius = math.Max(r.Radius*onImprove, floor)
		best = candidate
	} else {
		next.Center = best.Point.Clone()
		next.Radius = math.Max(r.Radius*onStall, floor)
	}

	return next, best, improved
}
