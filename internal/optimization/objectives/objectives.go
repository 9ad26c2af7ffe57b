// Package objectives provides standard benchmark functions for exercising
// the optimizer, plus a name registry for callers that select objectives at
// runtime. All functions accept points of any dimensionality and follow the
// usual convention of a known global minimum.
package objectives

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/mihirnimgade/hypercube-optimization/internal/optimization"
)

// Sphere is the sum of squared coordinates. Global minimum 0 at the origin.
func Sphere(p optimization.Point) float64 {
	return floats.Dot(p, p)
}

// Rastrigin is a highly multimodal function with a regular lattice of local
// minima. Global minimum 0 at the origin.
func Rastrigin(p optimization.Point) float64 {
	sum := 10.0 * float64(len(p))
	for _, x := range p {
		sum += x*x - 10.0*math.Cos(2.0*math.Pi*x)
	}
	return sum
}

// Rosenbrock is the classic banana-valley function. Global minimum 0 at
// (1, ..., 1).
func Rosenbrock(p optimization.Point) float64 {
	sum := 0.0
	for i := 0; i < len(p)-1; i++ {
		a := p[i+1] - p[i]*p[i]
		b := 1.0 - p[i]
		sum += 100.0*a*a + b*b
	}
	return sum
}

// Ackley is a multimodal function with a nearly flat outer region and a deep
// central basin. Global minimum 0 at the origin.
func Ackley(p optimization.Point) float64 {
	n := float64(len(p))
	sumSq := 0.0
	sumCos := 0.0
	for _, x := range p {
		sumSq += x * x
		sumCos += math.Cos(2.0 * math.Pi * x)
	}
	return -20.0*math.Exp(-0.2*math.Sqrt(sumSq/n)) - math.Exp(sumCos/n) + 20.0 + math.E
}

// StyblinskiTang has its global minimum of about -39.166*n at
// x_i = -2.903534 in every dimension.
func StyblinskiTang(p optimization.Point) float64 {
	sum := 0.0
	for _, x := range p {
		sum += x*x*x*x - 16.0*x*x + 5.0*x
	}
	return sum / 2.0
}

var registry = map[string]optimization.Objective{
	"sphere":          Sphere,
	"rastrigin":       Rastrigin,
	"rosenbrock":      Rosenbrock,
	"ackley":          Ackley,
	"styblinski-tang": StyblinskiTang,
}

// Lookup returns the objective registered under the given name. Names are
// case-insensitive.
func Lookup(name string) (optimization.Objective, bool) {
	fn, ok := registry[strings.ToLower(name)]
	return fn, ok
}

// Names returns the registered objective names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
