package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/peter-kozarec/frontier/internal/dbg"
	"github.com/peter-kozarec/frontier/pkg/market/mapped"
	"go.uber.org/zap"
)

// Accepted timestamp layouts for the first CSV column.
var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// readCloses parses a headed CSV of timestamp,close rows.
func readCloses(r io.Reader) ([]mapped.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("unable to read header: %w", err)
	}

	var records []mapped.Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) < 2 {
			return nil, fmt.Errorf("line %d: expected timestamp and close", line)
		}

		ts, err := parseTime(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid close: %w", line, err)
		}

		records = append(records, mapped.Record{TimeStamp: ts.UnixNano(), Close: price})
	}

	slices.SortStableFunc(records, func(a, b mapped.Record) int {
		switch {
		case a.TimeStamp < b.TimeStamp:
			return -1
		case a.TimeStamp > b.TimeStamp:
			return 1
		default:
			return 0
		}
	})

	return records, nil
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// dump converts <symbol>.csv files in inDir into <symbol>.bin files in outDir.
func dump(logger *zap.Logger, inDir, outDir string, symbols []string) error {
	store := mapped.NewStore(outDir)

	for _, symbol := range symbols {
		src := filepath.Join(inDir, symbol+".csv")

		in, err := os.Open(src)
		if err != nil {
			return err
		}
		records, err := readCloses(in)
		_ = in.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", src, err)
		}

		out, err := os.Create(store.Path(symbol))
		if err != nil {
			return err
		}
		if err := mapped.Write(out, records); err != nil {
			_ = out.Close()
			_ = os.Remove(store.Path(symbol))
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}

		logger.Info("dump finished", zap.String("symbol", symbol), zap.Int("records", len(records)))
	}

	return nil
}

func main() {
	inDir := flag.String("in", ".", "directory holding <symbol>.csv files")
	outDir := flag.String("out", "data", "directory receiving <symbol>.bin files")
	symbols := flag.String("symbols", "", "comma separated symbols")
	flag.Parse()

	logger, err := dbg.NewLogger(dbg.ModeDev, "")
	if err != nil {
		panic(err)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	if *symbols == "" {
		logger.Error("symbols are required")
		return
	}

	if err := dump(logger, *inDir, *outDir, strings.Split(*symbols, ",")); err != nil {
		logger.Error("failed to dump", zap.Error(err))
		return
	}
	logger.Info("done")
}
