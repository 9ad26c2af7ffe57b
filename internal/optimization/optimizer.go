package optimization

import (
	"context"
	"time"
)

// Objective is the black-box function being optimized. It receives a point
// of the configured dimensionality and returns a scalar score. Non-finite
// return values are tolerated: the optimizer treats them as the worst
// possible outcome and moves on.
type Objective func(Point) float64

// Optimizer defines the interface for optimization algorithms
type Optimizer interface {
	// Maximize searches for a point with the highest objective value
	Maximize(ctx context.Context, objective Objective) (*Result, error)

	// Minimize searches for a point with the lowest objective value
	Minimize(ctx context.Context, objective Objective) (*Result, error)
}

// TerminationReason identifies why a run stopped.
type TerminationReason string

const (
	// ReasonConverged means successive best points fell within both tolerances.
	ReasonConverged TerminationReason = "converged"

	// ReasonMaxEvaluations means the objective-call budget was exhausted.
	ReasonMaxEvaluations TerminationReason = "max_evaluations"

	// ReasonMaxLoops means the iteration budget was exhausted.
	ReasonMaxLoops TerminationReason = "max_loops"

	// ReasonMaxTime means the wall-clock budget was exhausted.
	ReasonMaxTime TerminationReason = "max_time"
)

// Evaluation is a single objective-function call result. Evaluations are
// never mutated after creation.
type Evaluation struct {
	Point Point
	Value float64
}

// IterationRecord summarizes one completed iteration of a run. Radius is the
// region radius after the update rule was applied. PopulationMean and
// PopulationStdDev are computed over the round's finite values; the mean is
// zero when there were none, the deviation when there were fewer than two.
type IterationRecord struct {
	Iteration        int
	BestValue        float64
	Radius           float64
	Improved         bool
	Evaluations      int
	PopulationMean   float64
	PopulationStdDev float64
}

// Result contains the outcome of an optimization run. It is created once at
// loop exit and shares no memory with the run's internal state, so callers
// may retain it after the optimizer is discarded.
type Result struct {
	BestPoint   Point
	BestValue   float64
	Evaluations int
	Iterations  int
	Elapsed     time.Duration
	Reason      TerminationReason
	History     []IterationRecord
}
