package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/peter-kozarec/frontier/pkg/market/mapped"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "frontier.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestMain_LoadConfig(t *testing.T) {
	path := writeConfig(t, `
provider: mapped
data_dir: /tmp/closes
symbols: [AAA, BBB, CCC]
from: "2023-01-01"
to: "2023-12-31"
grid_size: 40
solver:
  max_iterations: 150
  max_duration: 250ms
log:
  mode: prod
`)
	t.Setenv("FRONTIER_GRID_SIZE", "25")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderMapped, cfg.Provider)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, cfg.Symbols)
	assert.Equal(t, 25, cfg.GridSize)
	assert.Equal(t, "prod", cfg.Log.Mode)

	opts := cfg.SolverOptions()
	assert.Equal(t, 150, opts.MaxIterations)
	assert.Equal(t, 250*time.Millisecond, opts.MaxDuration)
	assert.Equal(t, 1e-8, opts.Tolerance)

	from, to, err := cfg.Period()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), from)
	// The end is exclusive and covers the whole of the last day.
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestMain_LoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no symbols", body: "provider: duckdb\n"},
		{name: "unknown provider", body: "provider: csv\nsymbols: [AAA]\n"},
		{name: "reversed period", body: "symbols: [AAA]\nfrom: \"2024-01-01\"\nto: \"2023-01-01\"\n"},
		{name: "bad date", body: "symbols: [AAA]\nfrom: yesterday\n"},
		{name: "empty grid", body: "symbols: [AAA]\ngrid_size: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMain_RunMapped(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Three deterministic price paths with different drifts and wiggles.
	drift := []float64{0.0002, 0.0005, 0.0009}
	wiggle := []float64{0.004, 0.009, 0.015}
	symbols := []string{"AAA", "BBB", "CCC"}

	for j, symbol := range symbols {
		records := make([]mapped.Record, 0, 120)
		price := 100.0
		for d := 0; d < 120; d++ {
			step := drift[j] + wiggle[j]*float64((d*(j+3))%7-3)/3
			price *= 1 + step
			records = append(records, mapped.Record{TimeStamp: start.AddDate(0, 0, d).UnixNano(), Close: price})
		}

		f, err := os.Create(filepath.Join(dir, symbol+mapped.FileExtension))
		require.NoError(t, err)
		require.NoError(t, mapped.Write(f, records))
		require.NoError(t, f.Close())
	}

	cfg := Config{
		Provider: ProviderMapped,
		DataDir:  dir,
		Symbols:  symbols,
		From:     "2024-01-01",
		To:       "2024-12-31",
		GridSize: 20,
		Output:   filepath.Join(dir, "frontier.json"),
	}

	require.NoError(t, run(context.Background(), zap.NewNop(), cfg))

	data, err := os.ReadFile(cfg.Output)
	require.NoError(t, err)

	var out output
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, symbols, out.Symbols)
	assert.Equal(t, 119, out.Periods)
	assert.Equal(t, 20, len(out.Points)+len(out.Failures))
	require.NotEmpty(t, out.Points)
	for _, p := range out.Points {
		sum := 0.0
		for _, w := range p.Weights {
			sum += w
		}
		assert.InDelta(t, 1, sum, 1e-6)
	}
}
