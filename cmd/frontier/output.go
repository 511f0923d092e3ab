package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/peter-kozarec/frontier/pkg/frontier"
)

type outputPoint struct {
	Target     float64            `json:"target"`
	Return     float64            `json:"return"`
	Variance   float64            `json:"variance"`
	Volatility float64            `json:"volatility"`
	Weights    map[string]float64 `json:"weights"`
	Iterations int                `json:"iterations"`
}

type outputFailure struct {
	Target float64 `json:"target"`
	Reason string  `json:"reason"`
	Error  string  `json:"error"`
}

type output struct {
	RunID    string          `json:"run_id"`
	Symbols  []string        `json:"symbols"`
	Periods  int             `json:"periods"`
	Points   []outputPoint   `json:"points"`
	Failures []outputFailure `json:"failures"`
}

func newOutput(res frontier.Result, symbols []string, periods int) output {
	out := output{
		RunID:    res.RunID.String(),
		Symbols:  symbols,
		Periods:  periods,
		Points:   make([]outputPoint, 0, len(res.Points)),
		Failures: make([]outputFailure, 0, len(res.Failures)),
	}

	for _, p := range res.Points {
		weights := make(map[string]float64, len(symbols))
		for i, w := range p.Weights {
			weights[symbols[i]] = w
		}
		out.Points = append(out.Points, outputPoint{
			Target:     p.Target,
			Return:     p.Return,
			Variance:   p.Variance,
			Volatility: p.Volatility,
			Weights:    weights,
			Iterations: p.Iterations,
		})
	}

	for _, f := range res.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		out.Failures = append(out.Failures, outputFailure{Target: f.Target, Reason: f.Reason, Error: msg})
	}

	return out
}

func writeOutput(path string, out output) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode frontier: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	return nil
}
