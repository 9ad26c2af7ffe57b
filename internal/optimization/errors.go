package optimization

import (
	"fmt"
	"strings"
)

// ViolationKind classifies which constraint a configuration field violated.
type ViolationKind string

const (
	// InvalidBounds means the lower bound is not strictly below the upper bound.
	InvalidBounds ViolationKind = "invalid_bounds"

	// InvalidTolerance means a convergence tolerance is not strictly positive.
	InvalidTolerance ViolationKind = "invalid_tolerance"

	// InvalidBudget means an iteration, evaluation, or time budget is not
	// strictly positive.
	InvalidBudget ViolationKind = "invalid_budget"

	// InitialPointOutOfBounds means the initial point is empty or has a
	// coordinate outside the feasible interval.
	InitialPointOutOfBounds ViolationKind = "initial_point_out_of_bounds"
)

// FieldViolation describes a single configuration field that failed
// validation.
type FieldViolation struct {
	// Field is the name of the offending configuration field.
	Field string
	// Kind classifies the violated constraint.
	Kind ViolationKind
	// Message explains the violation in terms of the supplied value.
	Message string
}

func (v FieldViolation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ConfigError reports every configuration violation found at construction
// time. An optimizer is never created from a configuration that produced one.
type ConfigError struct {
	Violations []FieldViolation
}

// Error returns the string representation of the error.
func (e *ConfigError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "invalid configuration"
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Has reports whether the error contains a violation of the given kind.
func (e *ConfigError) Has(kind ViolationKind) bool {
	if e == nil {
		return false
	}
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// IsConfigError checks if an error is of type ConfigError.
// If it is, it returns the error and true. Otherwise, it returns nil and
// false.
func IsConfigError(err error) (*ConfigError, bool) {
	if err == nil {
		return nil, false
	}
	if e, ok := err.(*ConfigError); ok {
		return e, true
	}
	return nil, false
}
