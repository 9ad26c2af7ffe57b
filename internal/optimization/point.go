package optimization

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Point is an ordered sequence of coordinates of fixed length n, the problem
// dimensionality. Points are treated as immutable: every operation returns a
// fresh point and leaves its receiver untouched. Operations on points of
// different lengths panic, as the underlying vector routines do.
type Point []float64

// NewPoint returns a point holding a copy of the given coordinates.
func NewPoint(coords []float64) Point {
	return append(Point(nil), coords...)
}

// Fill returns an n-dimensional point with every coordinate set to v.
func Fill(n int, v float64) Point {
	p := make(Point, n)
	for i := range p {
		p[i] = v
	}
	return p
}

// RandomPoint returns an n-dimensional point with each coordinate drawn
// uniformly from [lower, upper].
func RandomPoint(rng *rand.Rand, n int, lower, upper float64) Point {
	p := make(Point, n)
	for i := range p {
		p[i] = lower + rng.Float64()*(upper-lower)
	}
	return p
}

// Clone returns an independent copy of the point.
func (p Point) Clone() Point {
	return append(Point(nil), p...)
}

// Add returns the elementwise sum p + q.
func (p Point) Add(q Point) Point {
	out := make(Point, len(p))
	floats.AddTo(out, p, q)
	return out
}

// Sub returns the elementwise difference p - q.
func (p Point) Sub(q Point) Point {
	out := make(Point, len(p))
	floats.SubTo(out, p, q)
	return out
}

// Scale returns the point multiplied elementwise by c.
func (p Point) Scale(c float64) Point {
	out := make(Point, len(p))
	floats.ScaleTo(out, c, p)
	return out
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return floats.Distance(p, q, 2)
}

// Norm returns the Euclidean norm of the point.
func (p Point) Norm() float64 {
	return floats.Norm(p, 2)
}

// Clip returns a copy of the point with every coordinate clamped to
// [lower, upper].
func (p Point) Clip(lower, upper float64) Point {
	out := make(Point, len(p))
	for i, v := range p {
		out[i] = math.Max(lower, math.Min(v, upper))
	}
	return out
}
