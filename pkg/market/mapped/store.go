package mapped

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/peter-kozarec/frontier/pkg/market"
)

const FileExtension = ".bin"

// Store serves close series from <dir>/<symbol>.bin files.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Path(symbol string) string {
	return filepath.Join(s.dir, symbol+FileExtension)
}

// LoadCloses streams the closes of symbol within [from, to) to handler.
func (s *Store) LoadCloses(ctx context.Context, symbol string, from, to time.Time, handler func(market.Close) error) error {
	if symbol == "" || filepath.Base(symbol) != symbol {
		return fmt.Errorf("invalid symbol %q", symbol)
	}

	source := NewSource(s.Path(symbol))
	if err := source.Open(); err != nil {
		return err
	}
	defer source.Close()

	idx, err := source.Seek(from.UnixNano())
	if err != nil {
		return err
	}

	end := to.UnixNano()
	count := source.EntryCount()

	var record Record
	for ; idx < count; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := source.Read(idx, &record); err != nil {
			return fmt.Errorf("error reading entry at index %d: %w", idx, err)
		}
		if record.TimeStamp >= end {
			break
		}
		if err := handler(record.ToClose()); err != nil {
			return fmt.Errorf("error processing close: %w", err)
		}
	}

	return nil
}

// Prices implements market.Provider.
func (s *Store) Prices(ctx context.Context, symbols []string, from, to time.Time) (*market.Prices, error) {
	series := make(map[string][]market.Close, len(symbols))

	for _, symbol := range symbols {
		var closes []market.Close
		err := s.LoadCloses(ctx, symbol, from, to, func(c market.Close) error {
			closes = append(closes, c)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("unable to load %s: %w", symbol, err)
		}
		series[symbol] = closes
	}

	return market.Align(symbols, series)
}
