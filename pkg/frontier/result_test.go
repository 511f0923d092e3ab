package frontier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFrontier_Efficient(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
		want   []float64
	}{
		{
			name: "lower branch is dropped",
			points: []Point{
				{Return: 0.05, Variance: 0.010},
				{Return: 0.04, Variance: 0.012},
				{Return: 0.06, Variance: 0.013},
				{Return: 0.03, Variance: 0.020},
				{Return: 0.08, Variance: 0.025},
			},
			want: []float64{0.05, 0.06, 0.08},
		},
		{
			name: "equal returns keep the cheaper point",
			points: []Point{
				{Return: 0.05, Variance: 0.010},
				{Return: 0.05, Variance: 0.011},
				{Return: 0.07, Variance: 0.020},
			},
			want: []float64{0.05, 0.07},
		},
		{
			name: "empty",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Result{Points: tt.points}

			var got []float64
			for _, p := range res.Efficient() {
				got = append(got, p.Return)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFrontier_MinimumVariance(t *testing.T) {
	_, ok := Result{}.MinimumVariance()
	assert.False(t, ok)

	points := []Point{
		{Target: 2, Return: 0.06, Variance: 0.02},
		{Target: 1, Return: 0.04, Variance: 0.01},
		{Target: 3, Return: 0.05, Variance: 0.01},
	}
	sortByRisk(points)

	mv, ok := Result{Points: points}.MinimumVariance()
	require.True(t, ok)
	assert.Equal(t, 3.0, mv.Target)
	assert.Equal(t, []float64{3, 1, 2}, []float64{points[0].Target, points[1].Target, points[2].Target})
}

func TestFrontier_Complete(t *testing.T) {
	assert.True(t, Result{Targets: []float64{1}, Points: []Point{{}}}.Complete())
	assert.False(t, Result{Targets: []float64{1, 2}, Points: []Point{{}}, Failures: []Failure{{}}}.Complete())
}

func TestFrontier_NewReport(t *testing.T) {
	res := Result{
		Points: []Point{
			{Target: 0.0015, Weights: []float64{0.5, 0.5}, Return: 0.0015, Variance: 0.000125, Volatility: 0.0111803398875},
		},
		Failures: []Failure{
			{Target: 0.0019, Reason: "non_convergence"},
		},
	}

	rep, err := NewReport(res, []string{"AAA", "BBB"})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Accepted)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Rows, 1)

	row := rep.Rows[0]
	assert.Equal(t, "0.1500", row.Target.String())
	assert.Equal(t, "0.1500", row.ReturnPct.String())
	assert.Equal(t, "1.1180", row.VolatilityPct.String())
	assert.Equal(t, "0.0001250000", row.Variance.String())
	require.Len(t, row.WeightsPct, 2)
	assert.Equal(t, "50.00", row.WeightsPct[0].String())
	assert.Equal(t, "50.00", row.WeightsPct[1].String())

	require.Len(t, rep.Gaps, 1)
	assert.Equal(t, "0.1900", rep.Gaps[0].Target.String())
	assert.Equal(t, "non_convergence", rep.Gaps[0].Reason)

	_, err = NewReport(res, []string{"AAA"})
	assert.Error(t, err)

	numbered, err := NewReport(res, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"asset_0", "asset_1"}, numbered.Assets)
}

func TestFrontier_ReportPrint(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	res := Result{
		Points: []Point{
			{Target: 0.001, Weights: []float64{1, 0}, Return: 0.001, Variance: 0.0001, Volatility: 0.01},
		},
		Failures: []Failure{{Target: 0.002, Reason: "numerical_instability"}},
	}

	rep, err := NewReport(res, []string{"AAA", "BBB"})
	require.NoError(t, err)
	rep.Print(zap.New(core))

	points := logs.FilterMessage("frontier point").All()
	require.Len(t, points, 1)
	assert.Equal(t, "0.1000%", points[0].ContextMap()["return"])
	assert.Equal(t, "1.0000%", points[0].ContextMap()["volatility"])
	assert.Equal(t, []interface{}{"AAA=100.00%"}, points[0].ContextMap()["weights"])

	gaps := logs.FilterMessage("frontier gap").All()
	require.Len(t, gaps, 1)
	assert.Equal(t, "numerical_instability", gaps[0].ContextMap()["reason"])
}
