package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peter-kozarec/frontier/pkg/market"
	"github.com/peter-kozarec/frontier/pkg/market/mapped"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDumpIt_ReadCloses(t *testing.T) {
	csv := "date,close\n2024-01-03,12.5\n2024-01-01,10\n2024-01-02 00:00:00,11\n"

	records, err := readCloses(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano(), records[0].TimeStamp)
	assert.Equal(t, 10.0, records[0].Close)
	assert.Equal(t, 12.5, records[2].Close)
}

func TestDumpIt_ReadClosesErrors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{name: "empty", csv: ""},
		{name: "bad timestamp", csv: "date,close\nmonday,1\n"},
		{name: "bad close", csv: "date,close\n2024-01-01,abc\n"},
		{name: "missing column", csv: "date,close\n2024-01-01\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readCloses(strings.NewReader(tt.csv))
			assert.Error(t, err)
		})
	}
}

func TestDumpIt_Dump(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "AAA.csv"), []byte("date,close\n2024-01-01,10\n2024-01-02,11\n"), 0o600))

	require.NoError(t, dump(zap.NewNop(), in, out, []string{"AAA"}))

	var got []market.Close
	err := mapped.NewStore(out).LoadCloses(context.Background(), "AAA",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		func(c market.Close) error {
			got = append(got, c)
			return nil
		})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 11.0, got[1].Price)

	assert.Error(t, dump(zap.NewNop(), in, out, []string{"BBB"}))
}
