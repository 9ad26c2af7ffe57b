package optimization

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConfigError
		expected string
	}{
		{
			name: "single violation",
			err: &ConfigError{Violations: []FieldViolation{
				{Field: "MaxLoops", Kind: InvalidBudget, Message: "must be positive, got 0"},
			}},
			expected: "invalid configuration: MaxLoops: must be positive, got 0",
		},
		{
			name: "multiple violations",
			err: &ConfigError{Violations: []FieldViolation{
				{Field: "Bounds", Kind: InvalidBounds, Message: "lower bound 1 must be strictly below upper bound 0"},
				{Field: "InputTolerance", Kind: InvalidTolerance, Message: "must be positive, got -1"},
			}},
			expected: "invalid configuration: Bounds: lower bound 1 must be strictly below upper bound 0; InputTolerance: must be positive, got -1",
		},
		{
			name:     "empty",
			err:      &ConfigError{},
			expected: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestConfigErrorHas(t *testing.T) {
	err := &ConfigError{Violations: []FieldViolation{
		{Field: "Bounds", Kind: InvalidBounds, Message: "lower bound 1 must be strictly below upper bound 0"},
		{Field: "MaxTime", Kind: InvalidBudget, Message: "must be positive, got 0s"},
	}}

	assert.True(t, err.Has(InvalidBounds))
	assert.True(t, err.Has(InvalidBudget))
	assert.False(t, err.Has(InvalidTolerance))
	assert.False(t, err.Has(InitialPointOutOfBounds))
}

func TestIsConfigError(t *testing.T) {
	cfgErr := &ConfigError{Violations: []FieldViolation{
		{Field: "MaxEvaluations", Kind: InvalidBudget, Message: "must be positive, got -5"},
	}}

	got, ok := IsConfigError(cfgErr)
	require.True(t, ok)
	assert.Equal(t, cfgErr, got)

	_, ok = IsConfigError(errors.New("something else"))
	assert.False(t, ok)

	_, ok = IsConfigError(nil)
	assert.False(t, ok)

	// Works through errors.As as well.
	wrapped := fmt.Errorf("constructing optimizer: %w", cfgErr)
	var target *ConfigError
	require.True(t, errors.As(wrapped, &target))
	assert.True(t, target.Has(InvalidBudget))
}
