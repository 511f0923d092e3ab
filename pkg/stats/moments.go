package stats

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInsufficientData = errors.New("insufficient data: at least two periods are required")
	ErrMalformedInput   = errors.New("malformed input")
)

// Moments are the first two sample moments of a returns matrix.
type Moments struct {
	Mean       []float64
	Covariance *mat.SymDense
}

// Assets returns the number of assets the moments describe.
func (m Moments) Assets() int {
	return len(m.Mean)
}

// Estimate reduces a T×N returns matrix (rows are periods, columns are assets)
// to the per-asset arithmetic mean and the unbiased sample covariance.
func Estimate(returns mat.Matrix) (Moments, error) {
	if returns == nil {
		return Moments{}, fmt.Errorf("returns matrix is nil: %w", ErrMalformedInput)
	}

	periods, assets := returns.Dims()
	if assets < 1 {
		return Moments{}, fmt.Errorf("returns matrix has no assets: %w", ErrMalformedInput)
	}
	if periods < 2 {
		return Moments{}, fmt.Errorf("returns matrix has %d periods: %w", periods, ErrInsufficientData)
	}

	mean := make([]float64, assets)
	col := make([]float64, periods)
	for j := 0; j < assets; j++ {
		mat.Col(col, j, returns)
		mean[j] = stat.Mean(col, nil)
	}

	cov := mat.NewSymDense(assets, nil)
	stat.CovarianceMatrix(cov, returns, nil)

	return Moments{
		Mean:       mean,
		Covariance: cov,
	}, nil
}

// FromRows builds a returns matrix from per-period rows. Every row must have
// the same, non-zero number of columns.
func FromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no periods: %w", ErrInsufficientData)
	}

	assets := len(rows[0])
	if assets == 0 {
		return nil, fmt.Errorf("no assets: %w", ErrMalformedInput)
	}

	data := make([]float64, 0, len(rows)*assets)
	for i, row := range rows {
		if len(row) != assets {
			return nil, fmt.Errorf("row %d has %d columns, expected %d: %w", i, len(row), assets, ErrMalformedInput)
		}
		data = append(data, row...)
	}

	return mat.NewDense(len(rows), assets, data), nil
}
