package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mihirnimgade/hypercube-optimization/internal/logging"
	"github.com/mihirnimgade/hypercube-optimization/internal/optimization"
	"github.com/mihirnimgade/hypercube-optimization/internal/optimization/hypercube"
	"github.com/mihirnimgade/hypercube-optimization/internal/optimization/objectives"
)

var (
	runObjective  string
	runDimensions int
	runLower      float64
	runUpper      float64
	runInitial    []float64
	runFill       float64
	runInputTol   float64
	runOutputTol  float64
	runMaxLoops   int
	runMaxEvals   int
	runMaxTime    time.Duration
	runPopulation int
	runSeed       int64
	runMaximize   bool
	runHistory    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one optimization and print the result as JSON",
	Long: `Run executes a single optimization of a named benchmark objective and
prints the result to stdout. The defaults reproduce the classic demo: the
rastrigin function in eight dimensions over [0, 120], started from 60 in
every dimension.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&runObjective, "objective", "rastrigin", "objective to optimize: "+strings.Join(objectives.Names(), ", "))
	runCmd.Flags().IntVar(&runDimensions, "dimensions", 8, "search space dimensionality")
	runCmd.Flags().Float64Var(&runLower, "lower", 0, "lower bound for every dimension")
	runCmd.Flags().Float64Var(&runUpper, "upper", 120, "upper bound for every dimension")
	runCmd.Flags().Float64SliceVar(&runInitial, "initial", nil, "explicit initial point, overrides --dimensions and --fill")
	runCmd.Flags().Float64Var(&runFill, "fill", 60, "initial value for every dimension")
	runCmd.Flags().Float64Var(&runInputTol, "input-tolerance", 0.01, "convergence threshold on best-point movement")
	runCmd.Flags().Float64Var(&runOutputTol, "output-tolerance", 0.01, "convergence threshold on best-value change")
	runCmd.Flags().IntVar(&runMaxLoops, "max-loops", 1000, "iteration budget")
	runCmd.Flags().IntVar(&runMaxEvals, "max-evaluations", 4000, "objective call budget")
	runCmd.Flags().DurationVar(&runMaxTime, "max-time", 120*time.Second, "wall clock budget")
	runCmd.Flags().IntVar(&runPopulation, "population", 0, "points sampled per iteration (0 means 10 per dimension)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "random seed (0 means time-derived)")
	runCmd.Flags().BoolVar(&runMaximize, "maximize", false, "maximize instead of minimize")
	runCmd.Flags().BoolVar(&runHistory, "history", false, "include per-iteration history in the output")

	rootCmd.AddCommand(runCmd)
}

type runOutput struct {
	Objective      string      `json:"objective"`
	Goal           string      `json:"goal"`
	Dimensions     int         `json:"dimensions"`
	BestPoint      []float64   `json:"best_point"`
	BestValue      float64     `json:"best_value"`
	Evaluations    int         `json:"evaluations"`
	Iterations     int         `json:"iterations"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
	Reason         string      `json:"reason"`
	History        []iteration `json:"history,omitempty"`
}

type iteration struct {
	Iteration   int     `json:"iteration"`
	BestValue   float64 `json:"best_value"`
	Radius      float64 `json:"radius"`
	Improved    bool    `json:"improved"`
	Evaluations int     `json:"evaluations"`
}

func runOptimization(cmd *cobra.Command, args []string) error {
	objective, ok := objectives.Lookup(runObjective)
	if !ok {
		return fmt.Errorf("unknown objective %q, known: %s", runObjective, strings.Join(objectives.Names(), ", "))
	}

	var initial optimization.Point
	if len(runInitial) > 0 {
		initial = optimization.NewPoint(runInitial)
	} else {
		initial = optimization.Fill(runDimensions, runFill)
	}

	opt, err := hypercube.New(hypercube.Config{
		InitialPoint:    initial,
		Lower:           runLower,
		Upper:           runUpper,
		InputTolerance:  runInputTol,
		OutputTolerance: runOutputTol,
		MaxLoops:        runMaxLoops,
		MaxEvaluations:  runMaxEvals,
		MaxTime:         runMaxTime,
		PopulationSize:  runPopulation,
		RandomSeed:      runSeed,
		Logger:          logging.NewZapLogger(logger),
	})
	if err != nil {
		return err
	}

	goal := "minimize"
	run := opt.Minimize
	if runMaximize {
		goal = "maximize"
		run = opt.Maximize
	}

	logger.Info("starting optimization", map[string]interface{}{
		"objective":  runObjective,
		"goal":       goal,
		"dimensions": len(initial),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := run(ctx, objective)
	if err != nil {
		return err
	}

	out := runOutput{
		Objective:      strings.ToLower(runObjective),
		Goal:           goal,
		Dimensions:     len(initial),
		BestPoint:      result.BestPoint,
		BestValue:      result.BestValue,
		Evaluations:    result.Evaluations,
		Iterations:     result.Iterations,
		ElapsedSeconds: result.Elapsed.Seconds(),
		Reason:         string(result.Reason),
	}
	if runHistory {
		out.History = make([]iteration, 0, len(result.History))
		for _, rec := range result.History {
			out.History = append(out.History, iteration{
				Iteration:   rec.Iteration,
				BestValue:   rec.BestValue,
				Radius:      rec.Radius,
				Improved:    rec.Improved,
				Evaluations: rec.Evaluations,
			})
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
