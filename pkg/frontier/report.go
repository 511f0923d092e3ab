package frontier

import (
	"fmt"

	"github.com/govalues/decimal"
	"go.uber.org/zap"
)

const (
	percentScale  = 4
	varianceScale = 10
	weightScale   = 2
)

var hundred = decimal.MustNew(100, 0)

type ReportRow struct {
	Target        decimal.Decimal
	ReturnPct     decimal.Decimal
	VolatilityPct decimal.Decimal
	Variance      decimal.Decimal
	WeightsPct    []decimal.Decimal
}

type ReportGap struct {
	Target decimal.Decimal
	Reason string
}

// Report is the human readable rendering of a frontier run. Returns,
// volatilities and weights are expressed in percent.
type Report struct {
	RunID    string
	Assets   []string
	Accepted int
	Failed   int
	Rows     []ReportRow
	Gaps     []ReportGap
}

// NewReport renders res. assets names the weight columns; when it is empty the
// columns are numbered.
func NewReport(res Result, assets []string) (Report, error) {
	rep := Report{
		RunID:    res.RunID.String(),
		Accepted: len(res.Points),
		Failed:   len(res.Failures),
		Rows:     make([]ReportRow, 0, len(res.Points)),
	}

	if len(res.Points) > 0 {
		n := len(res.Points[0].Weights)
		if len(assets) == 0 {
			for i := 0; i < n; i++ {
				assets = append(assets, fmt.Sprintf("asset_%d", i))
			}
		}
		if len(assets) != n {
			return Report{}, fmt.Errorf("%d asset names for %d weights", len(assets), n)
		}
	}
	rep.Assets = assets

	for _, p := range res.Points {
		row := ReportRow{WeightsPct: make([]decimal.Decimal, len(p.Weights))}

		var err error
		if row.Target, err = toPercent(p.Target, percentScale); err != nil {
			return Report{}, err
		}
		if row.ReturnPct, err = toPercent(p.Return, percentScale); err != nil {
			return Report{}, err
		}
		if row.VolatilityPct, err = toPercent(p.Volatility, percentScale); err != nil {
			return Report{}, err
		}
		if row.Variance, err = toDecimal(p.Variance, varianceScale); err != nil {
			return Report{}, err
		}
		for i, w := range p.Weights {
			if row.WeightsPct[i], err = toPercent(w, weightScale); err != nil {
				return Report{}, err
			}
		}

		rep.Rows = append(rep.Rows, row)
	}

	for _, f := range res.Failures {
		target, err := toPercent(f.Target, percentScale)
		if err != nil {
			return Report{}, err
		}
		rep.Gaps = append(rep.Gaps, ReportGap{Target: target, Reason: f.Reason})
	}

	return rep, nil
}

func (r Report) Print(logger *zap.Logger) {
	logger.Info("frontier report",
		zap.String("run_id", r.RunID),
		zap.Int("accepted", r.Accepted),
		zap.Int("failed", r.Failed))

	for _, row := range r.Rows {
		allocation := make([]string, 0, len(row.WeightsPct))
		for i, w := range row.WeightsPct {
			if w.IsZero() {
				continue
			}
			allocation = append(allocation, fmt.Sprintf("%s=%s%%", r.Assets[i], w))
		}

		logger.Info("frontier point",
			zap.String("target", fmt.Sprintf("%s%%", row.Target)),
			zap.String("return", fmt.Sprintf("%s%%", row.ReturnPct)),
			zap.String("volatility", fmt.Sprintf("%s%%", row.VolatilityPct)),
			zap.Stringer("variance", row.Variance),
			zap.Strings("weights", allocation))
	}

	for _, gap := range r.Gaps {
		logger.Warn("frontier gap",
			zap.String("target", fmt.Sprintf("%s%%", gap.Target)),
			zap.String("reason", gap.Reason))
	}
}

func toDecimal(v float64, scale int) (decimal.Decimal, error) {
	d, err := decimal.NewFromFloat64(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unable to convert %g to decimal: %w", v, err)
	}
	return d.Rescale(scale), nil
}

func toPercent(v float64, scale int) (decimal.Decimal, error) {
	d, err := decimal.NewFromFloat64(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("unable to convert %g to decimal: %w", v, err)
	}
	if d, err = d.Mul(hundred); err != nil {
		return decimal.Decimal{}, fmt.Errorf("unable to scale %g to percent: %w", v, err)
	}
	return d.Rescale(scale), nil
}
