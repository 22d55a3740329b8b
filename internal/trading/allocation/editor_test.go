package allocation

import (
	"errors"
	"testing"

	apperrors "basket_swap/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		wantErr error
	}{
		{"balanced", []float64{50, 30, 20}, nil},
		{"clamp drift below 100", []float64{95, 0, 0}, nil},
		{"empty", nil, ErrEmptyVector},
		{"negative", []float64{110, -10}, ErrWeightOutOfRange},
		{"above 100", []float64{60, 50}, ErrWeightSumExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(vector(tt.weights...))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, apperrors.ErrInvalidWeights)
		})
	}
}

func TestEditor_SetAndReset(t *testing.T) {
	ed, err := NewEditor(vector(50, 30, 20))
	require.NoError(t, err)

	got, err := ed.Set(0, 70)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{70, 18, 12}, got.Weights(), 1e-9)

	// The returned vector is a copy
	got[0].Weight = 1
	assert.Equal(t, 70.0, ed.Snapshot()[0].Weight)

	assert.Equal(t, []float64{50, 30, 20}, ed.Reset().Weights())
	assert.Equal(t, []float64{50, 30, 20}, ed.Snapshot().Weights())
}

func TestEditor_RejectsBadInput(t *testing.T) {
	ed, err := NewEditor(vector(50, 50))
	require.NoError(t, err)

	_, err = ed.Set(2, 10)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = ed.Set(0, 101)
	assert.ErrorIs(t, err, ErrWeightOutOfRange)

	_, err = ed.Set(0, -1)
	assert.ErrorIs(t, err, ErrWeightOutOfRange)

	assert.Equal(t, []float64{50, 50}, ed.Snapshot().Weights())
}

func TestEditor_ZeroOthersOnlyAcceptsHundred(t *testing.T) {
	ed, err := NewEditor(vector(50, 50))
	require.NoError(t, err)

	_, err = ed.Set(0, 100)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 0}, ed.Snapshot().Weights())

	_, err = ed.Set(0, 60)
	assert.True(t, errors.Is(err, ErrNothingToRebalance))
	assert.Equal(t, []float64{100, 0}, ed.Snapshot().Weights())

	// Editing a zero entry still works, the dragged-from entry absorbs it
	got, err := ed.Set(1, 40)
	require.NoError(t, err)
	assert.Equal(t, []float64{60, 40}, got.Weights())
}

func TestNewEditor_RejectsInvalidDefaults(t *testing.T) {
	_, err := NewEditor(vector(80, 80))
	assert.ErrorIs(t, err, ErrWeightSumExceeded)
}
