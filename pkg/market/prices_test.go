package market

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func day(d int) time.Time {
	return time.Date(2024, time.January, d, 0, 0, 0, 0, time.UTC)
}

func TestMarket_Align(t *testing.T) {
	series := map[string][]Close{
		"AAA": {{day(1), 10}, {day(2), 11}, {day(3), 12}},
		"BBB": {{day(3), 22}, {day(1), 20}},
	}

	p, err := Align([]string{"BBB", "AAA"}, series)
	require.NoError(t, err)

	assert.Equal(t, []string{"BBB", "AAA"}, p.Symbols)
	assert.Equal(t, []time.Time{day(1), day(2), day(3)}, p.Dates)

	assert.Equal(t, 20.0, p.Values.At(0, 0))
	assert.True(t, math.IsNaN(p.Values.At(1, 0)))
	assert.Equal(t, 22.0, p.Values.At(2, 0))
	assert.Equal(t, []float64{10, 11, 12}, mat.Col(nil, 1, p.Values))
}

func TestMarket_AlignErrors(t *testing.T) {
	tests := []struct {
		name    string
		symbols []string
		series  map[string][]Close
		want    error
	}{
		{name: "no symbols", symbols: nil, want: ErrNoData},
		{name: "unknown symbol", symbols: []string{"AAA"}, series: map[string][]Close{}, want: ErrUnknownSymbol},
		{name: "empty series", symbols: []string{"AAA"}, series: map[string][]Close{"AAA": nil}, want: ErrNoData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Align(tt.symbols, tt.series)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMarket_PctChange(t *testing.T) {
	p := &Prices{
		Symbols: []string{"AAA", "BBB"},
		Dates:   []time.Time{day(1), day(2), day(3), day(4), day(5)},
		Values: mat.NewDense(5, 2, []float64{
			100, 50,
			110, 55,
			121, math.NaN(),
			110, 44,
			121, 44,
		}),
	}

	returns, dates, err := PctChange(p)
	require.NoError(t, err)

	rows, cols := returns.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 2, cols)
	assert.Equal(t, []time.Time{day(2), day(5)}, dates)

	assert.InDelta(t, 0.1, returns.At(0, 0), 1e-12)
	assert.InDelta(t, 0.1, returns.At(0, 1), 1e-12)
	assert.InDelta(t, 0.1, returns.At(1, 0), 1e-12)
	assert.InDelta(t, 0, returns.At(1, 1), 1e-12)
}

func TestMarket_PctChangeErrors(t *testing.T) {
	tests := []struct {
		name   string
		prices *Prices
	}{
		{name: "nil", prices: nil},
		{name: "single row", prices: &Prices{Values: mat.NewDense(1, 2, []float64{1, 2})}},
		{name: "all periods missing", prices: &Prices{Values: mat.NewDense(2, 1, []float64{1, math.NaN()})}},
		{name: "zero price", prices: &Prices{Values: mat.NewDense(2, 1, []float64{0, 1})}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := PctChange(tt.prices)
			assert.ErrorIs(t, err, ErrNoData)
		})
	}
}
