// Package market holds the price side of a frontier run: providers load
// close series per symbol, Align turns them into a dense date by symbol
// matrix and PctChange converts that into per-period returns.
package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNoData        = errors.New("no price data")
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// Provider supplies close prices for a set of symbols over [from, to); a
// close stamped exactly at to is left out.
type Provider interface {
	Prices(ctx context.Context, symbols []string, from, to time.Time) (*Prices, error)
}

type Close struct {
	TimeStamp time.Time
	Price     float64
}

// Prices is a date ordered matrix of closes, one column per symbol. Missing
// observations are NaN.
type Prices struct {
	Symbols []string
	Dates   []time.Time
	Values  *mat.Dense
}

// Align merges per symbol close series on their timestamps. Dates missing
// from a series are filled with NaN.
func Align(symbols []string, series map[string][]Close) (*Prices, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols requested: %w", ErrNoData)
	}

	var dates []time.Time
	for _, symbol := range symbols {
		closes, ok := series[symbol]
		if !ok {
			return nil, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
		}
		for _, c := range closes {
			dates = append(dates, c.TimeStamp)
		}
	}
	if len(dates) == 0 {
		return nil, ErrNoData
	}

	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })
	dates = slices.CompactFunc(dates, func(a, b time.Time) bool { return a.Equal(b) })

	values := mat.NewDense(len(dates), len(symbols), nil)
	for i := range dates {
		for j := range symbols {
			values.Set(i, j, math.NaN())
		}
	}

	for j, symbol := range symbols {
		for _, c := range series[symbol] {
			i, found := slices.BinarySearchFunc(dates, c.TimeStamp, func(d, t time.Time) int { return d.Compare(t) })
			if found {
				values.Set(i, j, c.Price)
			}
		}
	}

	return &Prices{
		Symbols: slices.Clone(symbols),
		Dates:   dates,
		Values:  values,
	}, nil
}

// PctChange returns the per-period fractional change of every column. A
// period is dropped when any of its inputs is missing, non-positive or not
// finite. The returned dates are the period end dates.
func PctChange(p *Prices) (*mat.Dense, []time.Time, error) {
	if p == nil || p.Values == nil {
		return nil, nil, ErrNoData
	}

	rows, cols := p.Values.Dims()
	if rows < 2 {
		return nil, nil, fmt.Errorf("%d price rows: %w", rows, ErrNoData)
	}

	data := make([]float64, 0, (rows-1)*cols)
	dates := make([]time.Time, 0, rows-1)

	row := make([]float64, cols)
	for t := 1; t < rows; t++ {
		ok := true
		for j := 0; j < cols && ok; j++ {
			prev, cur := p.Values.At(t-1, j), p.Values.At(t, j)
			if !valid(prev) || !valid(cur) {
				ok = false
				continue
			}
			row[j] = cur/prev - 1
		}
		if !ok {
			continue
		}
		data = append(data, row...)
		if t < len(p.Dates) {
			dates = append(dates, p.Dates[t])
		}
	}

	if len(data) == 0 {
		return nil, nil, fmt.Errorf("every period has a missing price: %w", ErrNoData)
	}

	return mat.NewDense(len(data)/cols, cols, data), dates, nil
}

func valid(price float64) bool {
	return price > 0 && !math.IsInf(price, 0)
}
