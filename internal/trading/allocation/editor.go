package allocation

import (
	"fmt"
	"math"
	"sync"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"
)

var (
	ErrEmptyVector        = fmt.Errorf("%w: empty vector", apperrors.ErrInvalidWeights)
	ErrWeightOutOfRange   = fmt.Errorf("%w: weight must be within [0, 100]", apperrors.ErrInvalidWeights)
	ErrIndexOutOfRange    = fmt.Errorf("%w: index out of range", apperrors.ErrInvalidWeights)
	ErrWeightSumExceeded  = fmt.Errorf("%w: weights sum above 100", apperrors.ErrInvalidWeights)
	ErrNothingToRebalance = fmt.Errorf("%w: other entries are all zero, only 100 is reachable", apperrors.ErrInvalidWeights)
)

// Validate accepts a vector whose weights lie in [0, 100] and sum to at most 100. A sum below
// 100 is clamp drift left by Rebalance and is allowed.
func Validate(v core.WeightVector) error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	for i, e := range v {
		if math.IsNaN(e.Weight) || e.Weight < 0 || e.Weight > 100 {
			return fmt.Errorf("entry %d (%s) = %v: %w", i, e.Asset.Symbol, e.Weight, ErrWeightOutOfRange)
		}
	}
	if sum := v.Sum(); sum > 100+core.WeightTolerance {
		return fmt.Errorf("sum %.6f: %w", sum, ErrWeightSumExceeded)
	}
	return nil
}

// Editor holds a working copy of a basket allocation for interactive edits
type Editor struct {
	mu       sync.RWMutex
	defaults core.WeightVector
	current  core.WeightVector
}

// NewEditor starts from the basket's default allocation
func NewEditor(defaults core.WeightVector) (*Editor, error) {
	if err := Validate(defaults); err != nil {
		return nil, err
	}
	return &Editor{
		defaults: defaults.Clone(),
		current:  defaults.Clone(),
	}, nil
}

// Set moves entry i to v and rebalances the others
func (e *Editor) Set(i int, v float64) (core.WeightVector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= len(e.current) {
		return nil, fmt.Errorf("index %d of %d: %w", i, len(e.current), ErrIndexOutOfRange)
	}
	if math.IsNaN(v) || v < 0 || v > 100 {
		return nil, fmt.Errorf("value %v: %w", v, ErrWeightOutOfRange)
	}
	if othersTotal(e.current, i) == 0 && math.Abs(v-100) > core.WeightTolerance {
		return nil, ErrNothingToRebalance
	}

	e.current = Rebalance(e.current, i, v)
	return e.current.Clone(), nil
}

// Reset restores the default allocation
func (e *Editor) Reset() core.WeightVector {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = e.defaults.Clone()
	return e.current.Clone()
}

// Snapshot returns a copy of the current allocation
func (e *Editor) Snapshot() core.WeightVector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current.Clone()
}
