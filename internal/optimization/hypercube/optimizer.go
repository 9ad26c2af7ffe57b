package hypercube

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/mihirnimgade/hypercube-optimization/internal/optimization"
)

// Default tuning values applied when the configuration leaves them unset.
const (
	defaultShrinkImproved = 0.9
	defaultShrinkStalled  = 0.5
	defaultMinRadius      = 1e-12

	populationPerDim = 10
	minPopulation    = 10
)

// errNilObjective guards Maximize and Minimize against a missing objective.
var errNilObjective = errors.New("hypercube: objective function is nil")

// Config contains configuration for one optimizer. The first block is
// mandatory and validated at construction; the second block is optional
// tuning that falls back to defaults when unset.
type Config struct {
	// InitialPoint is the starting location. Its length fixes the problem
	// dimensionality. Every coordinate must lie within [Lower, Upper].
	InitialPoint optimization.Point

	// Lower and Upper are the global search bounds, shared by every
	// dimension. Lower must be strictly below Upper.
	Lower float64
	Upper float64

	// InputTolerance is the convergence threshold on the distance between
	// successive best points.
	InputTolerance float64

	// OutputTolerance is the convergence threshold on the change between
	// successive best values.
	OutputTolerance float64

	// MaxLoops bounds the number of search iterations.
	MaxLoops int

	// MaxEvaluations bounds the number of objective-function calls.
	MaxEvaluations int

	// MaxTime bounds the wall-clock duration of a run.
	MaxTime time.Duration

	// PopulationSize is the number of fresh points sampled per iteration.
	// Defaults to 10 per dimension, with a floor of 10.
	PopulationSize int

	// ShrinkImproved is the radius factor applied after an improving
	// iteration. Must be in (0, 1); defaults to 0.9.
	ShrinkImproved float64

	// ShrinkStalled is the radius factor applied after a stalled iteration.
	// Must be in (0, 1); defaults to 0.5.
	ShrinkStalled float64

	// MinRadius is the floor the region radius can never shrink below.
	// Defaults to 1e-12.
	MinRadius float64

	// RandomSeed makes runs reproducible. Each run derives a fresh generator
	// from it, so repeated runs with the same seed are bit-identical. Zero
	// means a time-derived seed.
	RandomSeed int64

	// Logger receives run progress. Nil means no logging.
	Logger *zap.Logger

	// OnIteration, when set, is called synchronously with each iteration's
	// record as the run progresses.
	OnIteration func(optimization.IterationRecord)
}

// Optimizer performs derivative-free global search by repeatedly sampling a
// population from a hypercube region, displacing the region toward
// improvements, and shrinking it as the search narrows. The objective is
// treated as an opaque black box.
type Optimizer struct {
	config Config
	logger *zap.Logger
}

// New creates a hypercube optimizer from the given configuration. All
// constraints are checked eagerly: a configuration violating any of them
// yields a *optimization.ConfigError naming each offending field, and no
// optimizer.
func New(config Config) (*Optimizer, error) {
	if err := validate(config); err != nil {
		return nil, err
	}

	config.InitialPoint = config.InitialPoint.Clone()

	if config.PopulationSize < 1 {
		config.PopulationSize = defaultPopulation(len(config.InitialPoint))
	}
	if !(config.ShrinkImproved > 0 && config.ShrinkImproved < 1) {
		config.ShrinkImproved = defaultShrinkImproved
	}
	if !(config.ShrinkStalled > 0 && config.ShrinkStalled < 1) {
		config.ShrinkStalled = defaultShrinkStalled
	}
	if !(config.MinRadius > 0) {
		config.MinRadius = defaultMinRadius
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Optimizer{
		config: config,
		logger: logger.Named("hypercube"),
	}, nil
}

// Maximize searches for a point with the highest objective value.
func (o *Optimizer) Maximize(ctx context.Context, objective optimization.Objective) (*optimization.Result, error) {
	return o.run(ctx, objective, false)
}

// Minimize searches for a point with the lowest objective value. It runs the
// same search against the negated objective, so internally higher is always
// better; the result is reported in the caller's frame.
func (o *Optimizer) Minimize(ctx context.Context, objective optimization.Objective) (*optimization.Result, error) {
	return o.run(ctx, objective, true)
}

// state is the working memory of one run: private to a single Maximize or
// Minimize call, mutated once per iteration, discarded when the call
// returns.
type state struct {
	region    Region
	best      optimization.Evaluation
	iteration int
	evals     int
	start     time.Time
}

func (o *Optimizer) run(ctx context.Context, objective optimization.Objective, negate bool) (*optimization.Result, error) {
	if objective == nil {
		return nil, errNilObjective
	}

	// eval maps every objective call into the internal maximizing frame and
	// absorbs misbehavior: a non-finite value becomes -Inf, the worst
	// possible outcome, so it is never selected and never moves the region.
	eval := func(p optimization.Point) float64 {
		v := objective(p)
		if negate {
			v = -v
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return math.Inf(-1)
		}
		return v
	}

	seed := o.config.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	s := state{
		region: Region{
			Center: o.config.InitialPoint.Clone(),
			Radius: (o.config.Upper - o.config.Lower) / 2,
			Lower:  o.config.Lower,
			Upper:  o.config.Upper,
		},
		start: time.Now(),
	}
	s.best = optimization.Evaluation{
		Point: o.config.InitialPoint.Clone(),
		Value: eval(o.config.InitialPoint),
	}
	s.evals = 1

	history := make([]optimization.IterationRecord, 0, min(o.config.MaxLoops, 1024))

	var reason optimization.TerminationReason
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if s.evals >= o.config.MaxEvaluations {
			reason = optimization.ReasonMaxEvaluations
			break
		}
		if s.iteration >= o.config.MaxLoops {
			reason = optimization.ReasonMaxLoops
			break
		}
		if time.Since(s.start) >= o.config.MaxTime {
			reason = optimization.ReasonMaxTime
			break
		}

		// Never call the objective past the evaluation budget: the final
		// round may be a partial batch.
		population := o.config.PopulationSize
		if remaining := o.config.MaxEvaluations - s.evals; population > remaining {
			population = remaining
		}

		points := s.region.Sample(rng, population)
		round := make([]optimization.Evaluation, 0, len(points)+1)
		finite := make([]float64, 0, len(points))
		for _, p := range points {
			v := eval(p)
			round = append(round, optimization.Evaluation{Point: p, Value: v})
			if !math.IsInf(v, -1) {
				finite = append(finite, callerValue(v, negate))
			}
		}
		s.evals += len(points)

		// The incumbent joins every round without costing an evaluation.
		round = append(round, s.best)

		prev := s.best
		region, best, improved := s.region.Update(s.best, round, o.config.ShrinkImproved, o.config.ShrinkStalled, o.config.MinRadius)

		record := optimization.IterationRecord{
			Iteration:   s.iteration,
			BestValue:   callerValue(best.Value, negate),
			Radius:      region.Radius,
			Improved:    improved,
			Evaluations: s.evals,
		}
		if len(finite) > 0 {
			record.PopulationMean = stat.Mean(finite, nil)
		}
		if len(finite) > 1 {
			record.PopulationStdDev = stat.StdDev(finite, nil)
		}
		history = append(history, record)
		if o.config.OnIteration != nil {
			o.config.OnIteration(record)
		}

		o.logger.Debug("iteration complete",
			zap.Int("iteration", s.iteration),
			zap.Float64("best_value", record.BestValue),
			zap.Float64("radius", region.Radius),
			zap.Bool("improved", improved),
			zap.Int("evaluations", s.evals),
		)

		// An improvement small enough to fall within both tolerances means
		// the search has settled; a stall keeps going with a tighter region.
		converged := improved &&
			best.Point.Distance(prev.Point) < o.config.InputTolerance &&
			math.Abs(best.Value-prev.Value) < o.config.OutputTolerance

		s.region = region
		s.best = best
		s.iteration++

		if converged {
			reason = optimization.ReasonConverged
			break
		}
	}

	result := &optimization.Result{
		BestPoint:   s.best.Point.Clone(),
		BestValue:   callerValue(s.best.Value, negate),
		Evaluations: s.evals,
		Iterations:  s.iteration,
		Elapsed:     time.Since(s.start),
		Reason:      reason,
		History:     history,
	}

	o.logger.Info("run complete",
		zap.String("reason", string(reason)),
		zap.Float64("best_value", result.BestValue),
		zap.Int("evaluations", result.Evaluations),
		zap.Int("iterations", result.Iterations),
		zap.Duration("elapsed", result.Elapsed),
	)

	return result, nil
}

// callerValue maps an internal maximizing-frame value back into the frame
// the caller asked for.
func callerValue(v float64, negate bool) float64 {
	if negate {
		return -v
	}
	return v
}

func defaultPopulation(dimension int) int {
	population := populationPerDim * dimension
	if population < minPopulation {
		population = minPopulation
	}
	return population
}

func validate(config Config) error {
	var violations []optimization.FieldViolation

	if !(config.Lower < config.Upper) {
		violations = append(violations, optimization.FieldViolation{
			Field:   "Bounds",
			Kind:    optimization.InvalidBounds,
			Message: fmt.Sprintf("lower bound %v must be strictly below upper bound %v", config.Lower, config.Upper),
		})
	}
	if !(config.InputTolerance > 0) {
		violations = append(violations, optimization.FieldViolation{
			Field:   "InputTolerance",
			Kind:    optimization.InvalidTolerance,
			Message: fmt.Sprintf("must be positive, got %v", config.InputTolerance),
		})
	}
	if !(config.OutputTolerance > 0) {
		violations = append(violations, optimization.FieldViolation{
			Field:   "OutputTolerance",
			Kind:    optimization.InvalidTolerance,
			Message: fmt.Sprintf("must be positive, got %v", config.OutputTolerance),
		})
	}
	if config.MaxLoops <= 0 {
		violations = append(violations, optimization.FieldViolation{
			Field:   "MaxLoops",
			Kind:    optimization.InvalidBudget,
			Message: fmt.Sprintf("must be positive, got %d", config.MaxLoops),
		})
	}
	if config.MaxEvaluations <= 0 {
		violations = append(violations, optimization.FieldViolation{
			Field:   "MaxEvaluations",
			Kind:    optimization.InvalidBudget,
			Message: fmt.Sprintf("must be positive, got %d", config.MaxEvaluations),
		})
	}
	if config.MaxTime <= 0 {
		violations = append(violations, optimization.FieldViolation{
			Field:   "MaxTime",
			Kind:    optimization.InvalidBudget,
			Message: fmt.Sprintf("must be positive, got %v", config.MaxTime),
		})
	}
	if len(config.InitialPoint) == 0 {
		violations = append(violations, optimization.FieldViolation{
			Field:   "InitialPoint",
			Kind:    optimization.InitialPointOutOfBounds,
			Message: "must contain at least one coordinate",
		})
	} else if config.Lower < config.Upper {
		for i, c := range config.InitialPoint {
			if !(c >= config.Lower && c <= config.Upper) {
				violations = append(violations, optimization.FieldViolation{
					Field:   "InitialPoint",
					Kind:    optimization.InitialPointOutOfBounds,
					Message: fmt.Sprintf("coordinate %d (%v) is outside [%v, %v]", i, c, config.Lower, config.Upper),
				})
				break
			}
		}
	}

	if len(violations) == 0 {
		return nil
	}
	return &optimization.ConfigError{Violations: violations}
}
