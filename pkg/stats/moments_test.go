package stats

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStats_Estimate(t *testing.T) {
	returns, err := FromRows([][]float64{
		{0.01, 0.02},
		{0.03, 0.00},
		{0.02, 0.04},
	})
	require.NoError(t, err)

	m, err := Estimate(returns)
	require.NoError(t, err)
	require.Equal(t, 2, m.Assets())

	assert.InDelta(t, 0.02, m.Mean[0], 1e-15)
	assert.InDelta(t, 0.02, m.Mean[1], 1e-15)

	// Deviations: a = [-0.01, 0.01, 0], b = [0, -0.02, 0.02]; divide by T-1 = 2.
	assert.InDelta(t, 0.0001, m.Covariance.At(0, 0), 1e-15)
	assert.InDelta(t, 0.0004, m.Covariance.At(1, 1), 1e-15)
	assert.InDelta(t, -0.0001, m.Covariance.At(0, 1), 1e-15)
	assert.Equal(t, m.Covariance.At(0, 1), m.Covariance.At(1, 0))
}

func TestStats_EstimateSingleAsset(t *testing.T) {
	returns, err := FromRows([][]float64{{0.1}, {0.3}})
	require.NoError(t, err)

	m, err := Estimate(returns)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, m.Mean[0], 1e-15)
	assert.InDelta(t, 0.02, m.Covariance.At(0, 0), 1e-15)
}

func TestStats_EstimateErrors(t *testing.T) {
	tests := []struct {
		name    string
		returns mat.Matrix
		want    error
	}{
		{
			name:    "nil matrix",
			returns: nil,
			want:    ErrMalformedInput,
		},
		{
			name:    "single period",
			returns: mat.NewDense(1, 3, []float64{0.1, 0.2, 0.3}),
			want:    ErrInsufficientData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Estimate(tt.returns)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestStats_FromRows(t *testing.T) {
	tests := []struct {
		name string
		rows [][]float64
		want error
	}{
		{name: "empty", rows: nil, want: ErrInsufficientData},
		{name: "no columns", rows: [][]float64{{}}, want: ErrMalformedInput},
		{name: "ragged", rows: [][]float64{{1, 2}, {3}}, want: ErrMalformedInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRows(tt.rows)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	d, err := FromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	r, c := d.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 3.0, d.At(1, 0))
}
