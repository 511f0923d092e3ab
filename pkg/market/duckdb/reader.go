package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/peter-kozarec/frontier/pkg/market"
)

var ErrInvalidSymbol = errors.New("invalid symbol")

// Close series live in one table per symbol, named <symbol>_closes with
// columns ts TIMESTAMP and close DOUBLE.
var symbolPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

type Reader struct {
	dataSourceName string
	db             *sql.DB
}

func NewReader(dataSourceName string) *Reader {
	return &Reader{
		dataSourceName: dataSourceName,
	}
}

func (r *Reader) Connect() error {
	db, err := sql.Open("duckdb", r.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open duckdb %q: %w", r.dataSourceName, err)
	}
	r.db = db
	return nil
}

func (r *Reader) Close() {
	if r.db != nil {
		_ = r.db.Close()
	}
}

// LoadCloses streams the closes of symbol within [from, to) to handler.
func (r *Reader) LoadCloses(ctx context.Context, symbol string, from, to time.Time, handler func(market.Close) error) error {
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("%q: %w", symbol, ErrInvalidSymbol)
	}

	query := fmt.Sprintf(`SELECT ts, close FROM %s_closes WHERE ts >= ? AND ts < ? ORDER BY ts`, symbol)

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return fmt.Errorf("error preparing query: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	for rows.Next() {
		var c market.Close
		if err := rows.Scan(&c.TimeStamp, &c.Price); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		if err := handler(c); err != nil {
			return fmt.Errorf("error processing close: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error scanning rows: %w", err)
	}

	return nil
}

// Prices implements market.Provider.
func (r *Reader) Prices(ctx context.Context, symbols []string, from, to time.Time) (*market.Prices, error) {
	series := make(map[string][]market.Close, len(symbols))

	for _, symbol := range symbols {
		var closes []market.Close
		err := r.LoadCloses(ctx, symbol, from, to, func(c market.Close) error {
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
